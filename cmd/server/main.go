package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sayup/server/internal/authkit"
	"github.com/sayup/server/internal/authkitpg"
	"github.com/sayup/server/internal/authkitredis"
	"github.com/sayup/server/internal/friendship"
	"github.com/sayup/server/internal/storage"
	"github.com/sayup/server/internal/web"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

var buildGoogleTokenValidator = func(ctx context.Context) (authkit.GoogleTokenValidator, error) {
	return authkit.NewGoogleTokenValidator(ctx)
}

var buildLogger = func() (*zap.Logger, error) {
	return zap.NewProduction()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "sayup-server",
		Short:   "SayUp auth and friendship API with JWT sessions and token revocation",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	rootCmd.PersistentFlags().String("revocation_url", "", "Revocation store URL (redis://, rediss:// or postgres://; empty for in-memory)")

	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("jwt_signing_key", "", "HS256 signing secret, at least 32 bytes")
	rootCmd.Flags().String("jwt_issuer", "sayup", "Issuer claim stamped on and required of every token")
	rootCmd.Flags().String("access_ttl_ms", "3600000", "Access token lifetime in milliseconds, at most 86400000")
	rootCmd.Flags().String("refresh_ttl_ms", "86400000", "Refresh token lifetime in milliseconds, at most 86400000")
	rootCmd.Flags().Bool("revoke_consumed_refresh", false, "Revoke a refresh token once it has been exchanged")
	rootCmd.Flags().String("database_url", "sqlite://file:sayup?mode=memory&cache=shared", "Database URL for identities and friendships (postgres:// or sqlite://)")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for cross-origin clients")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled (required if enable_cors is true)")
	rootCmd.Flags().String("google_web_client_id", "", "Google Web OAuth Client ID; empty disables Google Sign-In")
	rootCmd.Flags().String("kakao_client_id", "", "Kakao REST API key; empty disables Kakao login")
	rootCmd.Flags().String("kakao_client_secret", "", "Kakao client secret")
	rootCmd.Flags().String("kakao_redirect_url", "", "Kakao OAuth redirect URL")
	rootCmd.Flags().Duration("nonce_ttl", 5*time.Minute, "Lifetime of Kakao OAuth state values")
	rootCmd.Flags().Int("login_rate_per_minute", 20, "Credential requests allowed per client IP per minute")
	rootCmd.Flags().Int("login_rate_burst", 5, "Credential request burst per client IP")

	_ = viper.BindPFlag("revocation_url", rootCmd.PersistentFlags().Lookup("revocation_url"))
	for _, name := range []string{
		"listen_addr",
		"jwt_signing_key",
		"jwt_issuer",
		"access_ttl_ms",
		"refresh_ttl_ms",
		"revoke_consumed_refresh",
		"database_url",
		"enable_cors",
		"cors_allowed_origins",
		"google_web_client_id",
		"kakao_client_id",
		"kakao_client_secret",
		"kakao_redirect_url",
		"nonce_ttl",
		"login_rate_per_minute",
		"login_rate_burst",
	} {
		_ = viper.BindPFlag(name, rootCmd.Flags().Lookup(name))
	}

	viper.SetEnvPrefix("SAYUP")
	viper.AutomaticEnv()

	rootCmd.AddCommand(newPruneRevocationsCommand())
	return rootCmd
}

const (
	configCodeMissingJWTSigningKey    = "config.missing_jwt_signing_key"
	configCodeInvalidAccessTTL        = "config.invalid_access_ttl"
	configCodeInvalidRefreshTTL       = "config.invalid_refresh_ttl"
	configCodeUninitializedServerConf = "config.uninitialized_server_config"
	configCodeGoogleValidatorInit     = "config.google_validator_init"
	configCodeUnsupportedRevocation   = "config.unsupported_revocation_url"
)

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	serverConfig, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, serverConfig))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// LoadServerConfig reads signing and provider settings from viper and fails on the first invalid value.
func LoadServerConfig() (authkit.ServerConfig, error) {
	jwtSigningKey := viper.GetString("jwt_signing_key")
	if jwtSigningKey == "" {
		return authkit.ServerConfig{}, configError(configCodeMissingJWTSigningKey, "jwt_signing_key must be provided")
	}

	accessTTL, err := parseMilliseconds(viper.GetString("access_ttl_ms"))
	if err != nil {
		return authkit.ServerConfig{}, configError(configCodeInvalidAccessTTL, "access_ttl_ms must be a positive integer number of milliseconds")
	}
	refreshTTL, err := parseMilliseconds(viper.GetString("refresh_ttl_ms"))
	if err != nil {
		return authkit.ServerConfig{}, configError(configCodeInvalidRefreshTTL, "refresh_ttl_ms must be a positive integer number of milliseconds")
	}

	serverConfig := authkit.ServerConfig{
		SigningKey:            []byte(jwtSigningKey),
		Issuer:                viper.GetString("jwt_issuer"),
		AccessTTL:             accessTTL,
		RefreshTTL:            refreshTTL,
		RevokeConsumedRefresh: viper.GetBool("revoke_consumed_refresh"),
		GoogleWebClientID:     strings.TrimSpace(viper.GetString("google_web_client_id")),
		Kakao: authkit.KakaoConfig{
			ClientID:     strings.TrimSpace(viper.GetString("kakao_client_id")),
			ClientSecret: viper.GetString("kakao_client_secret"),
			RedirectURL:  strings.TrimSpace(viper.GetString("kakao_redirect_url")),
		},
	}
	if err := serverConfig.Validate(); err != nil {
		return authkit.ServerConfig{}, err
	}
	return serverConfig, nil
}

func parseMilliseconds(raw string) (time.Duration, error) {
	milliseconds, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, err
	}
	if milliseconds <= 0 {
		return 0, errors.New("non-positive duration")
	}
	return time.Duration(milliseconds) * time.Millisecond, nil
}

// openRevocationStore selects the revocation backend by URL scheme. The returned closer may be nil.
func openRevocationStore(ctx context.Context, revocationURL string) (authkit.RevocationStore, io.Closer, string, error) {
	if strings.TrimSpace(revocationURL) == "" {
		return authkit.NewMemoryRevocationStore(), nil, "memory", nil
	}
	parsed, err := url.Parse(revocationURL)
	if err != nil {
		return nil, nil, "", configError(configCodeUnsupportedRevocation, err.Error())
	}
	switch strings.ToLower(parsed.Scheme) {
	case "redis", "rediss":
		store, openErr := authkitredis.Open(ctx, revocationURL)
		if openErr != nil {
			return nil, nil, "", openErr
		}
		return store, store, "redis", nil
	case "postgres", "postgresql":
		store, pool, openErr := authkitpg.Open(ctx, revocationURL)
		if openErr != nil {
			return nil, nil, "", openErr
		}
		return store, closerFunc(func() error { pool.Close(); return nil }), "postgres", nil
	default:
		return nil, nil, "", configError(configCodeUnsupportedRevocation, fmt.Sprintf("scheme %q is not supported", parsed.Scheme))
	}
}

type closerFunc func() error

func (closer closerFunc) Close() error {
	return closer()
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := buildLogger()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	serverConfig, ok := contextValue.(authkit.ServerConfig)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}

	listenAddr := viper.GetString("listen_addr")
	databaseURL := viper.GetString("database_url")
	enableCORS := viper.GetBool("enable_cors")
	corsAllowedOrigins := viper.GetStringSlice("cors_allowed_origins")

	database, databaseErr := storage.Open(commandContext, databaseURL)
	if databaseErr != nil {
		return databaseErr
	}
	defer func() { _ = database.Close() }()
	logger.Info("using database", zap.String("driver", database.Driver()))

	revocations, revocationCloser, revocationDriver, revocationErr := openRevocationStore(commandContext, viper.GetString("revocation_url"))
	if revocationErr != nil {
		return revocationErr
	}
	if revocationCloser != nil {
		defer func() { _ = revocationCloser.Close() }()
	}
	logger.Info("using revocation store", zap.String("driver", revocationDriver))

	registry := prometheus.NewRegistry()
	metricsRecorder, metricsErr := authkit.NewPrometheusMetrics(registry)
	if metricsErr != nil {
		return metricsErr
	}

	identities := database.Identities()
	tokens, tokensErr := authkit.NewTokenService(serverConfig, identities, revocations,
		authkit.WithLogger(logger),
		authkit.WithMetrics(metricsRecorder),
	)
	if tokensErr != nil {
		return tokensErr
	}

	accountOptions := []authkit.AccountsOption{}
	if serverConfig.Kakao.Enabled() {
		accountOptions = append(accountOptions, authkit.WithKakao(authkit.NewKakaoClient(serverConfig.Kakao, &http.Client{Timeout: 10 * time.Second})))
		logger.Info("kakao login enabled")
	}
	if serverConfig.GoogleWebClientID != "" {
		validator, validatorErr := buildGoogleTokenValidator(commandContext)
		if validatorErr != nil {
			return fmt.Errorf("%s: %w", configCodeGoogleValidatorInit, validatorErr)
		}
		accountOptions = append(accountOptions, authkit.WithGoogle(validator, serverConfig.GoogleWebClientID))
		logger.Info("google sign-in enabled")
	}
	accounts := authkit.NewAccounts(identities, tokens, accountOptions...)

	nonceTTL := 5 * time.Minute
	if configuredNonceTTL := viper.GetDuration("nonce_ttl"); configuredNonceTTL > 0 {
		nonceTTL = configuredNonceTTL
	}
	nonceStore := authkit.NewMemoryNonceStore(nonceTTL)

	friendships := friendship.NewService(identities, database.Relationships(), friendship.WithLogger(logger))

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if enableCORS {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, corsAllowedOrigins)
		if corsErr != nil {
			return corsErr
		}
		router.Use(corsMiddleware)
	}

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	credentialLimiter := web.NewIPRateLimiter(viper.GetInt("login_rate_per_minute"), time.Minute, viper.GetInt("login_rate_burst"), 10*time.Minute)
	api := router.Group("/api")
	authkit.MountAuthRoutes(api, accounts, tokens, nonceStore, web.RateLimitMiddleware(logger, credentialLimiter))

	protected := api.Group("")
	protected.Use(authkit.RequireSession(tokens))
	protected.GET("/me", web.HandleWhoAmI(logger))
	friendship.MountRoutes(protected, friendships)

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(stopSignals)
		select {
		case <-stopSignals:
		case <-shutdownCtx.Done():
			return
		}
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", listenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
