package tests

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/snackstand/catalog-services/e2e/client"
	"github.com/snackstand/catalog-services/e2e/runner"
)

func init() {
	runner.Register(&runner.Test{
		Name:        "buy-snack",
		Description: "Buy from a machine; purchase record and stats counters follow",
		Run:         runBuySnackTest,
	})
}

func runBuySnackTest(ctx context.Context, cfg *runner.Config) error {
	c := &client.Config{CommandURL: cfg.CommandURL, QueryURL: cfg.QueryURL, SyncURL: cfg.SyncURL}

	// 1. Create the snack and a machine stocked with it
	snackResp, err := client.Initialize(ctx, c, "snack", map[string]interface{}{
		"name": uniqueName("Chips"),
	})
	if err != nil {
		return fmt.Errorf("failed to create snack: %w", err)
	}
	snackID := snackResp.ID

	machineResp, err := client.Initialize(ctx, c, "machine", map[string]interface{}{
		"slots": map[string]interface{}{
			"1": map[string]interface{}{
				"snack_id": snackID,
				"quantity": 5,
				"price":    "2.50",
			},
		},
		"money_inside": map[string]interface{}{"ones": 5, "twos": 5},
	})
	if err != nil {
		return fmt.Errorf("failed to create machine: %w", err)
	}
	machineID := machineResp.ID

	// 2. Insert money and buy
	for _, denomination := range []string{"two", "one"} {
		if _, err := client.Execute(ctx, c, "machine", machineID, "insert_money", nil, map[string]interface{}{
			"denomination": denomination,
		}); err != nil {
			return fmt.Errorf("failed to insert %s: %w", denomination, err)
		}
	}

	bought, err := client.Execute(ctx, c, "machine", machineID, "buy_snack", nil, map[string]interface{}{
		"position":  1,
		"bought_by": "e2e-buyer",
	})
	if err != nil {
		return fmt.Errorf("failed to buy snack: %w", err)
	}

	// 3. Machine projection shows the remaining balance of 0.50
	machineRec, err := client.WaitForRecord(ctx, c, "machine", machineID, bought.Version, 5*time.Second)
	if err != nil {
		return fmt.Errorf("machine projection not updated: %w", err)
	}
	var machineState struct {
		AmountInTransaction json.RawMessage `json:"amount_in_transaction"`
	}
	if err := json.Unmarshal(machineRec.State, &machineState); err != nil {
		return fmt.Errorf("failed to unmarshal machine state: %w", err)
	}
	if got := num(machineState.AmountInTransaction); got != 0.5 {
		return fmt.Errorf("expected amount_in_transaction 0.5, got %v", got)
	}

	// 4. The reactor recorded exactly one purchase for this machine
	if _, err := client.TriggerSync(ctx, c, "purchase", "all"); err != nil {
		return fmt.Errorf("failed to sync purchases: %w", err)
	}
	purchases, err := client.ListRecords(ctx, c, "purchase", url.Values{
		"filter": []string{"machine_id:eq:" + machineID},
	})
	if err != nil {
		return fmt.Errorf("failed to list purchases: %w", err)
	}
	if purchases.Total != 1 {
		return fmt.Errorf("expected 1 purchase for machine, got %d", purchases.Total)
	}
	var purchaseState struct {
		SnackID     string          `json:"snack_id"`
		BoughtBy    string          `json:"bought_by"`
		BoughtPrice json.RawMessage `json:"bought_price"`
	}
	if err := json.Unmarshal(purchases.Items[0].State, &purchaseState); err != nil {
		return fmt.Errorf("failed to unmarshal purchase state: %w", err)
	}
	if purchaseState.SnackID != snackID {
		return fmt.Errorf("purchase snack_id mismatch: %s != %s", purchaseState.SnackID, snackID)
	}
	if purchaseState.BoughtBy != "e2e-buyer" {
		return fmt.Errorf("expected bought_by e2e-buyer, got %q", purchaseState.BoughtBy)
	}
	if got := num(purchaseState.BoughtPrice); got != 2.5 {
		return fmt.Errorf("expected bought_price 2.5, got %v", got)
	}

	// 5. Both stats counters moved: one sale, 2.50 taken
	for _, kind := range []string{"snack_stats", "machine_stats"} {
		id := snackID
		if kind == "machine_stats" {
			id = machineID
		}
		rec, err := client.WaitForRecord(ctx, c, kind, id, 2, 5*time.Second)
		if err != nil {
			return fmt.Errorf("%s projection not updated: %w", kind, err)
		}
		var stats struct {
			BoughtCount  json.RawMessage `json:"bought_count"`
			BoughtAmount json.RawMessage `json:"bought_amount"`
		}
		if err := json.Unmarshal(rec.State, &stats); err != nil {
			return fmt.Errorf("failed to unmarshal %s state: %w", kind, err)
		}
		if got := num(stats.BoughtCount); got != 1 {
			return fmt.Errorf("expected %s bought_count 1, got %v", kind, got)
		}
		if got := num(stats.BoughtAmount); got != 2.5 {
			return fmt.Errorf("expected %s bought_amount 2.5, got %v", kind, got)
		}
	}

	return nil
}

// num parses a JSON number that may or may not be quoted.
func num(raw json.RawMessage) float64 {
	f, err := strconv.ParseFloat(strings.Trim(string(raw), `"`), 64)
	if err != nil {
		return -1
	}
	return f
}
