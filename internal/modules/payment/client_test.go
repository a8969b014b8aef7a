package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"marketpace/internal/types"
)

func TestCaptureSendsIdempotencyKey(t *testing.T) {
	var gotKey, gotAuth, gotPath string
	var got transferRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(Receipt{Success: true, Reference: "cap_1"})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/", APIKey: "sk_test"})
	rec, err := c.Capture(context.Background(), types.USD(4163), "driver-1", "d1:driver_payout")
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if !rec.Success || rec.Reference != "cap_1" {
		t.Fatalf("unexpected receipt: %+v", rec)
	}
	if gotKey != "d1:driver_payout" {
		t.Fatalf("expected idempotency key, got %q", gotKey)
	}
	if gotAuth != "Bearer sk_test" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
	if gotPath != "/v1/captures" {
		t.Fatalf("expected /v1/captures, got %q", gotPath)
	}
	if got.AmountCents != 4163 || got.Party != "driver-1" || got.Currency != types.CurrencyUSD {
		t.Fatalf("unexpected body: %+v", got)
	}
}

func TestChargeRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(Receipt{Success: true, Reference: "chg_1"})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	rec, err := c.Charge(context.Background(), types.USD(963), "buyer-1", "d1:buyer_charge")
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if rec.Reference != "chg_1" {
		t.Fatalf("unexpected receipt: %+v", rec)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestChargeDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "card declined", http.StatusPaymentRequired)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	if _, err := c.Charge(context.Background(), types.USD(100), "buyer-1", "k"); err == nil {
		t.Fatalf("expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestMissingIdempotencyKey(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:0"})
	if _, err := c.Capture(context.Background(), types.USD(1), "d", ""); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMaxCallDurationCoversRetries(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://processor", Timeout: 10 * time.Second})
	// three 10s attempts plus 200ms and 400ms of backoff
	if got, want := c.MaxCallDuration(), 30*time.Second+600*time.Millisecond; got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}
