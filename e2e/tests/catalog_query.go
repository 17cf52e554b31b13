package tests

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/snackstand/catalog-services/e2e/client"
	"github.com/snackstand/catalog-services/e2e/runner"
)

func init() {
	runner.Register(&runner.Test{
		Name:        "catalog-query",
		Description: "List snacks with contains filter, descending sort, and paging",
		Run:         runCatalogQueryTest,
	})
}

func runCatalogQueryTest(ctx context.Context, cfg *runner.Config) error {
	c := &client.Config{CommandURL: cfg.CommandURL, QueryURL: cfg.QueryURL, SyncURL: cfg.SyncURL}

	// Names share a unique marker so this run's snacks are filterable apart
	// from everything else in the store.
	marker := fmt.Sprintf("e2e%d", time.Now().UnixNano())
	names := []string{"Candy " + marker, "Chips " + marker, "Cola " + marker}

	var lastID string
	for _, name := range names {
		resp, err := client.Initialize(ctx, c, "snack", map[string]interface{}{"name": name})
		if err != nil {
			return fmt.Errorf("failed to create snack %q: %w", name, err)
		}
		lastID = resp.ID
	}

	if _, err := client.WaitForRecord(ctx, c, "snack", lastID, 1, 5*time.Second); err != nil {
		return fmt.Errorf("snack projections not synced: %w", err)
	}

	// Page 1 of 2, sorted by name descending
	list, err := client.ListRecords(ctx, c, "snack", url.Values{
		"filter": []string{"name:contains:" + marker},
		"sort":   []string{"-name"},
		"limit":  []string{"2"},
	})
	if err != nil {
		return fmt.Errorf("failed to list snacks: %w", err)
	}
	if list.Total != len(names) {
		return fmt.Errorf("expected total %d, got %d", len(names), list.Total)
	}
	if len(list.Items) != 2 {
		return fmt.Errorf("expected 2 items on first page, got %d", len(list.Items))
	}

	got := make([]string, 0, len(list.Items))
	for _, rec := range list.Items {
		var state struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(rec.State, &state); err != nil {
			return fmt.Errorf("failed to unmarshal snack state: %w", err)
		}
		got = append(got, state.Name)
	}
	if !strings.HasPrefix(got[0], "Cola") || !strings.HasPrefix(got[1], "Chips") {
		return fmt.Errorf("expected descending order [Cola, Chips], got %v", got)
	}

	// Page 2 holds the remainder
	list, err = client.ListRecords(ctx, c, "snack", url.Values{
		"filter": []string{"name:contains:" + marker},
		"sort":   []string{"-name"},
		"limit":  []string{"2"},
		"offset": []string{"2"},
	})
	if err != nil {
		return fmt.Errorf("failed to list second page: %w", err)
	}
	if len(list.Items) != 1 {
		return fmt.Errorf("expected 1 item on second page, got %d", len(list.Items))
	}

	return nil
}
