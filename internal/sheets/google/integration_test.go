//go:build integration

package google

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"scadenze/internal/core"
	ports "scadenze/internal/sheets"
)

// Integration tests require real Google Sheets credentials.
// Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_SheetsFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	if os.Getenv("GOOGLE_SPREADSHEET_ID") == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}

	saJSON := os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")
	saFile := os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE")
	clientJSON := os.Getenv("GOOGLE_OAUTH_CLIENT_JSON")
	clientFile := os.Getenv("GOOGLE_OAUTH_CLIENT_FILE")
	tokenJSON := os.Getenv("GOOGLE_OAUTH_TOKEN_JSON")
	tokenFile := os.Getenv("GOOGLE_OAUTH_TOKEN_FILE")

	hasServiceAccount := saJSON != "" || saFile != ""
	hasOAuth := (clientJSON != "" || clientFile != "") && (tokenJSON != "" || tokenFile != "")
	if !hasServiceAccount && !hasOAuth {
		t.Skip("Google credentials not configured, skipping integration test")
	}

	ctx := context.Background()
	client, err := NewFromEnv(ctx)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	now := time.Now()
	marker := fmt.Sprintf("integration-%d", now.UnixNano())

	t.Run("AppendPayment", func(t *testing.T) {
		ref, err := client.Append(ctx, ports.ExportRow{
			EntryName: marker,
			Date:      core.DateOnly(now),
			Amount:    core.Money{Amount: decimal.RequireFromString("0.01"), Currency: "EUR"},
			Mode:      core.ModeRecurring,
			Status:    "in_progress",
		})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		t.Logf("Appended row: %s", ref)
		if !strings.Contains(ref, "!A") {
			t.Errorf("unexpected row reference: %s", ref)
		}
	})

	t.Run("ListPayments", func(t *testing.T) {
		rows, err := client.ListPayments(ctx, now.Year(), int(now.Month()))
		if err != nil {
			t.Fatalf("ListPayments failed: %v", err)
		}
		t.Logf("Found %d payment rows for %d-%02d", len(rows), now.Year(), int(now.Month()))

		found := false
		for _, row := range rows {
			if row.EntryName == marker {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("appended row %s not listed back", marker)
		}
	})

	t.Run("ListEntries", func(t *testing.T) {
		entries, err := client.ListEntries(ctx)
		if err != nil {
			t.Fatalf("ListEntries failed: %v", err)
		}
		t.Logf("Found %d seed entries", len(entries))

		// IDs must be stable and unique per name.
		seen := make(map[string]bool)
		for _, e := range entries {
			if seen[e.ID.String()] {
				t.Errorf("duplicate entry ID for %s", e.Name)
			}
			seen[e.ID.String()] = true
		}
	})
}
