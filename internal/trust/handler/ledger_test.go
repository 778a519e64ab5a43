package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/impactlens/trustledger/internal/ledger"
	"github.com/impactlens/trustledger/internal/trust/handler"
)

func newLedgerRouter(t *testing.T) (*gin.Engine, *ledger.Chain, *ledger.MemoryRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := ledger.NewMemoryRepository()
	chain := ledger.NewChain(repo, zap.NewNop())

	router := gin.New()
	v1 := router.Group("/trust/v1")
	handler.NewLedgerHandler(chain, zap.NewNop()).Register(v1)
	return router, chain, repo
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var decoded map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response %q: %v", w.Body.String(), err)
		}
	}
	return w, decoded
}

func TestAppendEndpoint(t *testing.T) {
	router, _, _ := newLedgerRouter(t)

	w, body := doJSON(t, router, http.MethodPost, "/trust/v1/ledger/rpt_2024_q3/append", gin.H{
		"eventType": "REPORT_GENERATED",
		"actor":     "system",
		"metadata":  gin.H{"model": "gpt-4-turbo", "tokens": 1532},
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if body["reportId"] != "rpt_2024_q3" || body["chainValid"] != true {
		t.Errorf("unexpected body: %v", body)
	}

	entry, ok := body["entry"].(map[string]any)
	if !ok {
		t.Fatalf("missing entry in %v", body)
	}
	if entry["sequence"] != float64(0) {
		t.Errorf("sequence = %v, want 0", entry["sequence"])
	}
	if entry["previousHash"] != ledger.GenesisHash {
		t.Errorf("previousHash = %v", entry["previousHash"])
	}
	if hash, _ := entry["hash"].(string); len(hash) != 64 {
		t.Errorf("hash = %v", entry["hash"])
	}
}

func TestAppendEndpoint_invalidEventType(t *testing.T) {
	router, _, _ := newLedgerRouter(t)

	w, body := doJSON(t, router, http.MethodPost, "/trust/v1/ledger/rpt_1/append", gin.H{
		"eventType": "REPORT_DELETED",
		"actor":     "system",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if body["error"] == nil {
		t.Error("expected an error message")
	}
}

func TestAppendEndpoint_malformedJSON(t *testing.T) {
	router, _, _ := newLedgerRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/trust/v1/ledger/rpt_1/append",
		bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestGetChainEndpoint_notFound(t *testing.T) {
	router, _, _ := newLedgerRouter(t)

	w, body := doJSON(t, router, http.MethodGet, "/trust/v1/ledger/rpt_missing", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	if body["error"] != "Report not found" || body["reportId"] != "rpt_missing" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestLedgerLifecycle(t *testing.T) {
	router, _, _ := newLedgerRouter(t)

	w, _ := doJSON(t, router, http.MethodPost, "/trust/v1/ledger/rpt_2024_q3/append", gin.H{
		"eventType": "REPORT_GENERATED",
		"actor":     "system",
		"metadata":  gin.H{"model": "gpt-4-turbo"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("first append: %d %s", w.Code, w.Body.String())
	}
	w, _ = doJSON(t, router, http.MethodPost, "/trust/v1/ledger/rpt_2024_q3/append", gin.H{
		"eventType": "REPORT_APPROVED",
		"actor":     "jane@example.com",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("second append: %d %s", w.Code, w.Body.String())
	}

	w, body := doJSON(t, router, http.MethodGet, "/trust/v1/ledger/rpt_2024_q3/verify", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("verify: %d", w.Code)
	}
	if body["chainValid"] != true || body["entryCount"] != float64(2) {
		t.Errorf("verify body: %v", body)
	}
	if body["genesisHash"] != ledger.GenesisHash {
		t.Errorf("genesisHash = %v", body["genesisHash"])
	}
	if head, _ := body["headHash"].(string); len(head) != 64 || head == ledger.GenesisHash {
		t.Errorf("headHash = %v", body["headHash"])
	}
	if body["verifiedAt"] == nil {
		t.Error("verifiedAt missing")
	}
	if _, present := body["integrityViolation"]; present {
		t.Error("valid chain must not report a violation")
	}

	w, body = doJSON(t, router, http.MethodGet, "/trust/v1/ledger/rpt_2024_q3", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get chain: %d", w.Code)
	}
	entries, _ := body["entries"].([]any)
	if len(entries) != 2 {
		t.Errorf("entries = %d, want 2", len(entries))
	}
	if body["chainValid"] != true {
		t.Errorf("chainValid = %v", body["chainValid"])
	}
}

func TestVerifyEndpoint_emptyChain(t *testing.T) {
	router, _, _ := newLedgerRouter(t)

	w, body := doJSON(t, router, http.MethodGet, "/trust/v1/ledger/rpt_fresh/verify", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["chainValid"] != true || body["entryCount"] != float64(0) {
		t.Errorf("unexpected body: %v", body)
	}
	if body["genesisHash"] != ledger.GenesisHash || body["headHash"] != ledger.GenesisHash {
		t.Errorf("empty chain anchors: %v / %v", body["genesisHash"], body["headHash"])
	}
}

func TestTamperedChainEndpoints(t *testing.T) {
	router, _, repo := newLedgerRouter(t)
	ctx := context.Background()

	w, _ := doJSON(t, router, http.MethodPost, "/trust/v1/ledger/rpt_tamper/append", gin.H{
		"eventType": "REPORT_GENERATED",
		"actor":     "system",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("append: %d", w.Code)
	}

	entries, err := repo.ReadAll(ctx, "rpt_tamper")
	if err != nil {
		t.Fatal(err)
	}
	entries[0].Actor = "mallory"
	tamperedID := entries[0].ID.String()

	// The chain endpoint reports the violation inline.
	w, body := doJSON(t, router, http.MethodGet, "/trust/v1/ledger/rpt_tamper", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get chain: %d", w.Code)
	}
	if body["chainValid"] != false {
		t.Error("tampered chain reported valid")
	}
	violation, ok := body["integrityViolation"].(map[string]any)
	if !ok {
		t.Fatalf("missing integrityViolation in %v", body)
	}
	if violation["entryId"] != tamperedID || violation["sequence"] != float64(0) {
		t.Errorf("violation = %v", violation)
	}

	// Appending to the broken chain is refused with a conflict.
	w, body = doJSON(t, router, http.MethodPost, "/trust/v1/ledger/rpt_tamper/append", gin.H{
		"eventType": "REPORT_PUBLISHED",
		"actor":     "system",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("append on broken chain: %d", w.Code)
	}
	if body["error"] != "Cannot append to broken ledger chain" || body["chainValid"] != false {
		t.Errorf("conflict body: %v", body)
	}
}
