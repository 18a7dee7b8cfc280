package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/avdeenkov/qapay-system/internal/model"
)

func TestCardCreateCharge_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/charges" {
			t.Fatalf("path = %s, want /api/charges", r.URL.Path)
		}

		var req cardChargeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.AmountCents != 5000 {
			t.Fatalf("amount = %d, want 5000", req.AmountCents)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(cardChargeResponse{
			ID:          "ch_123",
			Status:      "created",
			RedirectURL: "https://pay.example/ch_123",
		})
	}))
	defer ts.Close()

	client := NewCardClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	handle, err := client.CreateCharge(ctx, 5000, "payer@example.com")
	if err != nil {
		t.Fatalf("CreateCharge error: %v", err)
	}
	if handle.ID != "ch_123" {
		t.Fatalf("charge id = %q, want ch_123", handle.ID)
	}
	if handle.RedirectURL != "https://pay.example/ch_123" {
		t.Fatalf("unexpected redirect url: %q", handle.RedirectURL)
	}
}

func TestCardConfirmCharge_StatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		want     ChargeState
	}{
		{name: "confirmed", provider: "confirmed", want: StateConfirmed},
		{name: "paid alias", provider: "paid", want: StateConfirmed},
		{name: "pending", provider: "pending", want: StatePending},
		{name: "processing alias", provider: "processing", want: StatePending},
		{name: "declined", provider: "declined", want: StateFailed},
		{name: "expired", provider: "expired", want: StateFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/charges/ch_1" {
					t.Fatalf("path = %s", r.URL.Path)
				}
				_ = json.NewEncoder(w).Encode(cardChargeResponse{ID: "ch_1", Status: tt.provider})
			}))
			defer ts.Close()

			client := NewCardClient(ts.URL)

			state, err := client.ConfirmCharge(context.Background(), "ch_1")
			if err != nil {
				t.Fatalf("ConfirmCharge error: %v", err)
			}
			if state != tt.want {
				t.Fatalf("state = %q, want %q", state, tt.want)
			}
		})
	}
}

func TestCardConfirmCharge_Idempotent(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(cardChargeResponse{ID: "ch_1", Status: "confirmed"})
	}))
	defer ts.Close()

	client := NewCardClient(ts.URL)

	for i := 0; i < 3; i++ {
		state, err := client.ConfirmCharge(context.Background(), "ch_1")
		if err != nil {
			t.Fatalf("ConfirmCharge error: %v", err)
		}
		if state != StateConfirmed {
			t.Fatalf("state = %q, want confirmed", state)
		}
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestCardCreatePayout_TerminalDecline(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(cardPayoutResponse{Error: "invalid bank account"})
	}))
	defer ts.Close()

	client := NewCardClient(ts.URL)

	_, err := client.CreatePayout(context.Background(), 1800, Destination{BankCode: "001"})
	var gwErr *Error
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if gwErr.Retryable {
		t.Fatalf("422 must be terminal, got retryable")
	}
}

func TestPixCreateCharge_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/deposits" {
			t.Fatalf("path = %s, want /v1/deposits", r.URL.Path)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(pixDepositResponse{
			DepositID:   "dep_42",
			Status:      "pending",
			CheckoutURL: "https://pix.example/dep_42",
		})
	}))
	defer ts.Close()

	client := NewPixClient(ts.URL)

	handle, err := client.CreateCharge(context.Background(), 5000, "payer@example.com")
	if err != nil {
		t.Fatalf("CreateCharge error: %v", err)
	}
	if handle.ID != "dep_42" {
		t.Fatalf("charge id = %q, want dep_42", handle.ID)
	}
}

func TestPixConfirmCharge_ServerErrorRetryable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	client := NewPixClient(ts.URL)

	_, err := client.ConfirmCharge(context.Background(), "dep_42")
	var gwErr *Error
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if !gwErr.Retryable {
		t.Fatalf("5xx must be retryable")
	}
}

func TestClientsNotConfigured(t *testing.T) {
	card := NewCardClient("")
	if _, err := card.CreateCharge(context.Background(), 100, ""); err == nil {
		t.Fatalf("expected error for unconfigured card gateway")
	}

	pix := NewPixClient("")
	if _, err := pix.CreatePayout(context.Background(), 100, Destination{}); err == nil {
		t.Fatalf("expected error for unconfigured pix gateway")
	}
}

func TestSelectorByKind(t *testing.T) {
	card := NewCardClient("card:8080")
	pix := NewPixClient("pix:8080")
	sel := NewSelector(card, pix)

	if sel.ByKind(model.GatewayCard) != Gateway(card) {
		t.Fatalf("expected card gateway for kind card")
	}
	if sel.ByKind(model.GatewayPix) != Gateway(pix) {
		t.Fatalf("expected pix gateway for kind pix")
	}
	if sel.ByKind(model.GatewayKind("")) != Gateway(card) {
		t.Fatalf("expected card gateway as default")
	}
}
