package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"
)

// E2E tests assume the service stack is running locally with a Fabric
// network behind it. They are skipped unless E2E=1.
const (
	LendingServiceURL    = "http://localhost:8082"
	RemittanceServiceURL = "http://localhost:8083"
)

func requireStack(t *testing.T) {
	if os.Getenv("E2E") != "1" {
		t.Skip("set E2E=1 to run against a live stack")
	}
}

func TestRemittanceFlow(t *testing.T) {
	requireStack(t)

	recipient := fmt.Sprintf("bob-%d", time.Now().Unix())

	// Quote first, then initiate for the quoted amount.
	resp, err := http.Get(RemittanceServiceURL + "/remittance/quote?from=US&to=MX&amount=1000")
	if err != nil {
		t.Fatalf("quote request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("quote failed with status %d", resp.StatusCode)
	}

	status := postJSON(t, RemittanceServiceURL+"/remittance/transfers", map[string]interface{}{
		"recipient":   recipient,
		"asset":       "USDC",
		"amount":      1000,
		"origin":      "US",
		"destination": "MX",
	})
	if status != http.StatusCreated {
		t.Fatalf("initiate failed with status %d", status)
	}
}

func TestLendingDepositWithdraw(t *testing.T) {
	requireStack(t)

	if status := postJSON(t, LendingServiceURL+"/lending/deposit", map[string]interface{}{
		"asset":  "USDC",
		"amount": 500,
	}); status != http.StatusOK {
		t.Fatalf("deposit failed with status %d", status)
	}

	if status := postJSON(t, LendingServiceURL+"/lending/withdraw", map[string]interface{}{
		"asset":  "USDC",
		"amount": 200,
	}); status != http.StatusOK {
		t.Fatalf("withdraw failed with status %d", status)
	}

	resp, err := http.Get(LendingServiceURL + "/lending/pool/USDC")
	if err != nil {
		t.Fatalf("pool query failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pool query failed with status %d", resp.StatusCode)
	}
}

func postJSON(t *testing.T, url string, payload map[string]interface{}) int {
	body, _ := json.Marshal(payload)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := os.Getenv("E2E_TOKEN"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request to %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	return resp.StatusCode
}
