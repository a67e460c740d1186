package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ivstefano/personal-finance-manager/internal/ledger"
	"github.com/ivstefano/personal-finance-manager/internal/services"
	"github.com/ivstefano/personal-finance-manager/internal/storage/memory"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := memory.NewStore()
	engine := ledger.NewEngine(store)
	return NewServer(":0",
		services.NewAccountService(store),
		services.NewTransactionService(store, engine, nil),
		services.NewCategoryService(store, nil),
	)
}

func doJSON(t *testing.T, s *Server, method, path, owner string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if owner != "" {
		req.Header.Set(ownerHeader, owner)
	}
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", rec.Code)
	}
}

func TestMissingOwnerHeaderIsRejected(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/api/accounts", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestAccountAndTransactionFlow(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/accounts", "owner-1", map[string]any{
		"name":    "Checking",
		"type":    "checking",
		"balance": "1000.00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create account status = %d: %s", rec.Code, rec.Body.String())
	}
	var account accountPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &account); err != nil {
		t.Fatalf("decode account: %v", err)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/transactions", "owner-1", map[string]any{
		"account_id":  account.ID,
		"amount":      "45.50",
		"kind":        "expense",
		"description": "groceries",
		"date":        "2026-03-14",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create transaction status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s, http.MethodGet, "/api/accounts/"+account.ID, "owner-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get account status = %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &account); err != nil {
		t.Fatalf("decode account: %v", err)
	}
	if account.Balance != "954.50" {
		t.Errorf("balance = %q, want 954.50", account.Balance)
	}

	// The account is invisible to anyone else.
	rec = doJSON(t, s, http.MethodGet, "/api/accounts/"+account.ID, "owner-2", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign get status = %d, want 404", rec.Code)
	}
}

func TestCreateTransactionRejectsBadAmount(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/transactions", "owner-1", map[string]any{
		"account_id":  "whatever",
		"amount":      "-5.00",
		"kind":        "expense",
		"description": "bad",
		"date":        "2026-03-14",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCreateTransactionRejectsLongDescription(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/transactions", "owner-1", map[string]any{
		"account_id":  "whatever",
		"amount":      "5.00",
		"kind":        "expense",
		"description": strings.Repeat("x", 201),
		"date":        "2026-03-14",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	var out errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(out.Error, "description too long") {
		t.Errorf("error = %q, want the validation message", out.Error)
	}
}

func TestCategoriesSeededOnFirstList(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/categories?kind=expense", "owner-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var categories []categoryPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &categories); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(categories) != 15 {
		t.Errorf("expected 15 expense categories, got %d", len(categories))
	}
}

func TestNetWorthEndpoint(t *testing.T) {
	s := newTestServer(t)

	for _, a := range []map[string]any{
		{"name": "Checking", "type": "checking", "balance": "2500.00"},
		{"name": "Card", "type": "credit_card", "balance": "-400.00", "credit_limit": "500.00"},
	} {
		if rec := doJSON(t, s, http.MethodPost, "/api/accounts", "owner-1", a); rec.Code != http.StatusCreated {
			t.Fatalf("create account status = %d: %s", rec.Code, rec.Body.String())
		}
	}

	rec := doJSON(t, s, http.MethodGet, "/api/net-worth", "owner-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["net_worth"] != "2100.00" {
		t.Errorf("net_worth = %q, want 2100.00", out["net_worth"])
	}
}
