package main

import (
	"context"
	"net/url"
	"strings"

	"github.com/sayup/server/internal/authkitpg"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type revocationPruner interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

var openRevocationPruner = func(ctx context.Context, revocationURL string) (revocationPruner, func(), error) {
	store, pool, err := authkitpg.Open(ctx, revocationURL)
	if err != nil {
		return nil, nil, err
	}
	return store, pool.Close, nil
}

func newPruneRevocationsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "prune-revocations",
		Short: "Delete expired rows from the postgres revocation table",
		RunE:  runPruneRevocations,
	}
}

func runPruneRevocations(command *cobra.Command, arguments []string) error {
	revocationURL := viper.GetString("revocation_url")
	parsed, err := url.Parse(revocationURL)
	if err != nil || (strings.ToLower(parsed.Scheme) != "postgres" && strings.ToLower(parsed.Scheme) != "postgresql") {
		return configError(configCodeUnsupportedRevocation, "prune-revocations requires a postgres:// revocation_url")
	}

	logger, loggerErr := buildLogger()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	ctx := command.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	pruner, closePruner, openErr := openRevocationPruner(ctx, revocationURL)
	if openErr != nil {
		return openErr
	}
	defer closePruner()

	removed, purgeErr := pruner.PurgeExpired(ctx)
	if purgeErr != nil {
		logger.Error("revocation prune failed", zap.String("code", "revocation.prune.failed"), zap.Error(purgeErr))
		return purgeErr
	}
	logger.Info("revocations pruned", zap.String("code", "revocation.prune.done"), zap.Int64("removed", removed))
	return nil
}
