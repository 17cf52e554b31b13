package tests

import (
	"context"
	"fmt"

	"github.com/snackstand/catalog-services/e2e/client"
	"github.com/snackstand/catalog-services/e2e/runner"
)

func init() {
	runner.Register(&runner.Test{
		Name:        "health",
		Description: "All three services answer their health endpoints",
		Run:         runHealthTest,
	})
}

func runHealthTest(ctx context.Context, cfg *runner.Config) error {
	services := map[string]string{
		"command": cfg.CommandURL,
		"query":   cfg.QueryURL,
		"sync":    cfg.SyncURL,
	}
	for name, url := range services {
		if err := client.CheckHealth(ctx, url); err != nil {
			return fmt.Errorf("%s service unhealthy: %w", name, err)
		}
	}
	return nil
}
