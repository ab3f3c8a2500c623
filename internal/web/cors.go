package web

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	errEmptyAllowedOrigins = errors.New("web.cors.empty_origins")
	errInvalidOrigin       = errors.New("web.cors.invalid_origin")
	errMixedWildcardOrigin = errors.New("web.cors.mixed_wildcard")
)

const wildcardOrigin = "*"

// apiMethods and apiHeaders cover the SayUp JSON API: bearer tokens in Authorization and JSON bodies.
var (
	apiMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}
	apiHeaders = []string{"Authorization", "Content-Type"}
)

// ConfigureCORS enables cross-origin API calls from allowedOrigins. Sessions travel as bearer
// tokens, never cookies, so credentials are not allowed and a lone "*" opens the API to any origin.
func ConfigureCORS(logger *zap.Logger, allowedOrigins []string) (gin.HandlerFunc, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	origins, err := normalizeOrigins(logger, allowedOrigins)
	if err != nil {
		return nil, err
	}
	config := cors.Config{
		AllowMethods: apiMethods,
		AllowHeaders: apiHeaders,
		MaxAge:       time.Hour,
	}
	if len(origins) == 1 && origins[0] == wildcardOrigin {
		logger.Warn("cors open to every origin", zap.String("code", "web.cors.wildcard"))
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	return cors.New(config), nil
}

func normalizeOrigins(logger *zap.Logger, allowed []string) ([]string, error) {
	normalized := make([]string, 0, len(allowed))
	wildcard := false
	for _, origin := range allowed {
		trimmed := strings.TrimSpace(origin)
		switch {
		case trimmed == "":
			continue
		case trimmed == wildcardOrigin:
			wildcard = true
			continue
		}
		canonical, err := canonicalOrigin(trimmed)
		if err != nil {
			return nil, err
		}
		if strings.HasPrefix(canonical, "http://") && !isDevelopmentHost(canonical) {
			logger.Warn("plain http cors origin configured",
				zap.String("code", "web.cors.insecure_origin"),
				zap.String("origin", canonical))
		}
		if !slices.Contains(normalized, canonical) {
			normalized = append(normalized, canonical)
		}
	}

	switch {
	case wildcard && len(normalized) > 0:
		return nil, errMixedWildcardOrigin
	case wildcard:
		return []string{wildcardOrigin}, nil
	case len(normalized) == 0:
		return nil, errEmptyAllowedOrigins
	}
	slices.Sort(normalized)
	return normalized, nil
}

// canonicalOrigin reduces origin to lower-case scheme://host[:port] and rejects anything a
// browser would never send in an Origin header.
func canonicalOrigin(origin string) (string, error) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("%w: %s", errInvalidOrigin, origin)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "https" && scheme != "http" {
		return "", fmt.Errorf("%w: %s uses unsupported scheme", errInvalidOrigin, origin)
	}
	if (parsed.Path != "" && parsed.Path != "/") || parsed.RawQuery != "" || parsed.Fragment != "" || parsed.User != nil {
		return "", fmt.Errorf("%w: %s must be scheme://host[:port]", errInvalidOrigin, origin)
	}
	return scheme + "://" + strings.ToLower(parsed.Host), nil
}

func isDevelopmentHost(origin string) bool {
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}
