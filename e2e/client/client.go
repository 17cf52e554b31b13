// Package client is a thin HTTP client for the catalog APIs, used by the e2e
// test runner.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Config holds client configuration.
type Config struct {
	CommandURL string
	QueryURL   string
	SyncURL    string
}

// CommandRequest is the uniform command envelope. A nil ExpectedVersion opts
// out of the optimistic concurrency check.
type CommandRequest struct {
	ExpectedVersion *int64      `json:"expected_version,omitempty"`
	Payload         interface{} `json:"payload,omitempty"`
}

// CommandResponse represents a successful command result.
type CommandResponse struct {
	ID      string `json:"id,omitempty"`
	Version int64  `json:"version"`
}

// APIError is the structured failure the command API returns. Its Code
// doubles as the HTTP status.
type APIError struct {
	Code    int      `json:"code"`
	Reasons []string `json:"reasons"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("command failed (code %d): %v", e.Code, e.Reasons)
}

// Record represents one projection row from the query API.
type Record struct {
	Kind         string          `json:"kind"`
	AggregateID  string          `json:"aggregate_id"`
	Version      int64           `json:"version"`
	State        json.RawMessage `json:"state"`
	LastSyncedAt string          `json:"last_synced_at"`
}

// RecordList represents a paged list of records from the query API.
type RecordList struct {
	Items  []Record `json:"items"`
	Total  int      `json:"total"`
	Limit  int      `json:"limit"`
	Offset int      `json:"offset"`
}

// SyncResult summarizes one sync pass.
type SyncResult struct {
	Kind    string `json:"kind"`
	Total   int    `json:"total"`
	Synced  int    `json:"synced"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed"`
}

// Initialize creates a new aggregate of the given kind and returns its
// generated id.
func Initialize(ctx context.Context, cfg *Config, kind string, payload interface{}) (*CommandResponse, error) {
	return doCommand(ctx, http.MethodPost,
		fmt.Sprintf("%s/api/v1/%s", cfg.CommandURL, kind),
		&CommandRequest{Payload: payload})
}

// Execute sends a command to an existing aggregate.
func Execute(ctx context.Context, cfg *Config, kind, id, command string, expectedVersion *int64, payload interface{}) (*CommandResponse, error) {
	return doCommand(ctx, http.MethodPost,
		fmt.Sprintf("%s/api/v1/%s/%s/%s", cfg.CommandURL, kind, id, command),
		&CommandRequest{ExpectedVersion: expectedVersion, Payload: payload})
}

// Remove tombstones an aggregate.
func Remove(ctx context.Context, cfg *Config, kind, id string, expectedVersion *int64) (*CommandResponse, error) {
	return doCommand(ctx, http.MethodDelete,
		fmt.Sprintf("%s/api/v1/%s/%s", cfg.CommandURL, kind, id),
		&CommandRequest{ExpectedVersion: expectedVersion})
}

func doCommand(ctx context.Context, method, url string, req *CommandRequest) (*CommandResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Operated-By", "e2e")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr APIError
		if err := json.Unmarshal(respBody, &apiErr); err != nil || apiErr.Code == 0 {
			return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, respBody)
		}
		return nil, &apiErr
	}

	var cmdResp CommandResponse
	if err := json.Unmarshal(respBody, &cmdResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &cmdResp, nil
}

// GetRecord retrieves one projection row. A nil record means not found.
func GetRecord(ctx context.Context, cfg *Config, kind, id string) (*Record, error) {
	url := fmt.Sprintf("%s/api/v1/catalog/%s/%s", cfg.QueryURL, kind, id)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil // Not found is not an error
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, respBody)
	}

	var rec Record
	if err := json.Unmarshal(respBody, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &rec, nil
}

// ListRecords lists projection rows with the given query parameters
// (repeated filter=field:op:value, sort, limit, offset).
func ListRecords(ctx context.Context, cfg *Config, kind string, params url.Values) (*RecordList, error) {
	listURL := fmt.Sprintf("%s/api/v1/catalog/%s", cfg.QueryURL, kind)
	if len(params) > 0 {
		listURL += "?" + params.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, respBody)
	}

	var list RecordList
	if err := json.Unmarshal(respBody, &list); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &list, nil
}

// TriggerSync runs one sync pass ("differences" or "all") for a kind.
func TriggerSync(ctx context.Context, cfg *Config, kind, mode string) (*SyncResult, error) {
	url := fmt.Sprintf("%s/api/v1/sync/%s/%s", cfg.SyncURL, kind, mode)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, respBody)
	}

	var result SyncResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

// WaitForRecord polls for a projection row at or beyond minVersion until it
// appears or timeout. Triggers a differences pass between polls so the test
// does not have to wait for the schedule.
func WaitForRecord(ctx context.Context, cfg *Config, kind, id string, minVersion int64, timeout time.Duration) (*Record, error) {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if _, err := TriggerSync(ctx, cfg, kind, "differences"); err != nil {
			return nil, err
		}

		rec, err := GetRecord(ctx, cfg, kind, id)
		if err != nil {
			return nil, err
		}
		if rec != nil && rec.Version >= minVersion {
			return rec, nil
		}

		time.Sleep(100 * time.Millisecond)
	}

	return nil, fmt.Errorf("timeout waiting for projection %s/%s at version %d", kind, id, minVersion)
}

// CheckHealth checks the health endpoint of a service.
func CheckHealth(ctx context.Context, url string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}

	return nil
}
