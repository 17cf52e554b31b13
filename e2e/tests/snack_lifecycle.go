package tests

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/snackstand/catalog-services/e2e/client"
	"github.com/snackstand/catalog-services/e2e/runner"
)

func init() {
	runner.Register(&runner.Test{
		Name:        "snack-lifecycle",
		Description: "Create, rename with version check, stale-writer conflict, remove",
		Run:         runSnackLifecycleTest,
	})
}

func runSnackLifecycleTest(ctx context.Context, cfg *runner.Config) error {
	c := &client.Config{CommandURL: cfg.CommandURL, QueryURL: cfg.QueryURL, SyncURL: cfg.SyncURL}

	// 1. Create a snack
	created, err := client.Initialize(ctx, c, "snack", map[string]interface{}{
		"name":        uniqueName("Soda"),
		"picture_url": "http://example.com/soda.png",
	})
	if err != nil {
		return fmt.Errorf("failed to create snack: %w", err)
	}
	if created.Version != 1 {
		return fmt.Errorf("expected version 1 after create, got %d", created.Version)
	}
	snackID := created.ID

	// 2. Rename against the observed version
	v1 := int64(1)
	renamed, err := client.Execute(ctx, c, "snack", snackID, "change_name", &v1, map[string]interface{}{
		"name": uniqueName("Cola"),
	})
	if err != nil {
		return fmt.Errorf("failed to rename snack: %w", err)
	}
	if renamed.Version != 2 {
		return fmt.Errorf("expected version 2 after rename, got %d", renamed.Version)
	}

	// 3. A stale writer that still believes version 1 must get a conflict
	_, err = client.Execute(ctx, c, "snack", snackID, "change_name", &v1, map[string]interface{}{
		"name": "Stale",
	})
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("expected APIError for stale rename, got %v", err)
	}
	if apiErr.Code != 409 {
		return fmt.Errorf("expected conflict code 409, got %d", apiErr.Code)
	}

	// 4. Projection catches up and reflects the successful rename only
	rec, err := client.WaitForRecord(ctx, c, "snack", snackID, 2, 5*time.Second)
	if err != nil {
		return fmt.Errorf("snack projection not updated: %w", err)
	}
	var state struct {
		Name      string `json:"name"`
		Lifecycle string `json:"lifecycle"`
	}
	if err := json.Unmarshal(rec.State, &state); err != nil {
		return fmt.Errorf("failed to unmarshal snack state: %w", err)
	}
	if state.Lifecycle != "active" {
		return fmt.Errorf("expected active lifecycle, got %q", state.Lifecycle)
	}
	if state.Name == "Stale" {
		return fmt.Errorf("stale rename leaked into the projection")
	}

	// 5. Remove, then further changes are rejected
	removed, err := client.Remove(ctx, c, "snack", snackID, &renamed.Version)
	if err != nil {
		return fmt.Errorf("failed to remove snack: %w", err)
	}

	_, err = client.Execute(ctx, c, "snack", snackID, "change_name", nil, map[string]interface{}{
		"name": "Zombie",
	})
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("expected APIError for change after remove, got %v", err)
	}
	if apiErr.Code != 400 {
		return fmt.Errorf("expected validation code 400 after remove, got %d", apiErr.Code)
	}

	// 6. The tombstone reaches the projection
	rec, err = client.WaitForRecord(ctx, c, "snack", snackID, removed.Version, 5*time.Second)
	if err != nil {
		return fmt.Errorf("removed snack projection not updated: %w", err)
	}
	if err := json.Unmarshal(rec.State, &state); err != nil {
		return fmt.Errorf("failed to unmarshal snack state: %w", err)
	}
	if state.Lifecycle != "removed" {
		return fmt.Errorf("expected removed lifecycle, got %q", state.Lifecycle)
	}

	return nil
}

// uniqueName suffixes a name for test isolation across runs.
func uniqueName(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
