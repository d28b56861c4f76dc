package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flowboard/flowboard/pkg/store"
	"github.com/flowboard/flowboard/pkg/store/file"
	"github.com/flowboard/flowboard/pkg/store/postgres"
)

// NewStore selects the store implementation from the database URL scheme.
// Anything that is not a postgres URL is treated as a file-store root path.
func NewStore(ctx context.Context, logger *slog.Logger, databaseURL string) store.Store {
	switch parseStoreProvider(databaseURL) {
	case "postgres":
		s, err := postgres.NewStore(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to create postgres store: %w", err))
		}

		return s
	default:
		return file.NewStore(databaseURL)
	}
}

func parseStoreProvider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	if scheme == "postgres" || scheme == "postgresql" {
		return "postgres"
	}

	return "file"
}
