package handler_test

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/impactlens/trustledger/internal/evidence"
	"github.com/impactlens/trustledger/internal/ledger"
	"github.com/impactlens/trustledger/internal/trust/handler"
)

// newTrustRouter mounts both handlers the way cmd/trustd does, so evidence
// lookups can consult ledger chains for report existence.
func newTrustRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	chain := ledger.NewChain(ledger.NewMemoryRepository(), zap.NewNop())
	store := evidence.NewStore(evidence.NewMemoryRepository(), zap.NewNop())

	router := gin.New()
	v1 := router.Group("/trust/v1")
	handler.NewLedgerHandler(chain, zap.NewNop()).Register(v1)
	handler.NewEvidenceHandler(store, chain, zap.NewNop()).Register(v1)
	return router
}

func attachCitation(t *testing.T, router *gin.Engine, reportID string) string {
	t.Helper()
	w, body := doJSON(t, router, http.MethodPost, "/trust/v1/evidence/"+reportID+"/attach", gin.H{
		"snippetId":      "snip_1",
		"sourceId":       "kintell_sessions",
		"text":           "150 participants completed the program",
		"relevanceScore": 0.92,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("attach: %d %s", w.Code, w.Body.String())
	}
	citation, ok := body["citation"].(map[string]any)
	if !ok {
		t.Fatalf("missing citation in %v", body)
	}
	id, _ := citation["id"].(string)
	if id == "" {
		t.Fatal("citation id missing")
	}
	return id
}

func TestAttachEndpoint(t *testing.T) {
	router := newTrustRouter(t)

	w, body := doJSON(t, router, http.MethodPost, "/trust/v1/evidence/rpt_2024_q3/attach", gin.H{
		"snippetId":      "snip_1",
		"sourceId":       "kintell_sessions",
		"text":           "150 participants completed the program",
		"relevanceScore": 0.92,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if body["reportId"] != "rpt_2024_q3" {
		t.Errorf("reportId = %v", body["reportId"])
	}

	citation := body["citation"].(map[string]any)
	if hash, _ := citation["snippetHash"].(string); len(hash) != 64 {
		t.Errorf("snippetHash = %v", citation["snippetHash"])
	}
	if citation["sourceId"] != "kintell_sessions" {
		t.Errorf("sourceId = %v", citation["sourceId"])
	}
}

func TestAttachEndpoint_rejectsEmptyText(t *testing.T) {
	router := newTrustRouter(t)

	w, body := doJSON(t, router, http.MethodPost, "/trust/v1/evidence/rpt_1/attach", gin.H{
		"sourceId":       "src",
		"text":           "   ",
		"relevanceScore": 0.5,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if body["error"] == nil {
		t.Error("expected an error message")
	}
}

func TestGetEvidenceEndpoint(t *testing.T) {
	router := newTrustRouter(t)
	attachCitation(t, router, "rpt_2024_q3")

	w, body := doJSON(t, router, http.MethodGet, "/trust/v1/evidence/rpt_2024_q3", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["evidenceCount"] != float64(1) {
		t.Errorf("evidenceCount = %v", body["evidenceCount"])
	}
	citations, _ := body["citations"].([]any)
	if len(citations) != 1 {
		t.Errorf("citations = %d, want 1", len(citations))
	}
	meta, ok := body["metadata"].(map[string]any)
	if !ok || meta["version"] != "1.0" || meta["generatedAt"] == nil {
		t.Errorf("metadata = %v", body["metadata"])
	}
}

func TestGetEvidenceEndpoint_unknownReport(t *testing.T) {
	router := newTrustRouter(t)

	w, body := doJSON(t, router, http.MethodGet, "/trust/v1/evidence/rpt_missing", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	if body["error"] != "Report not found" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestGetEvidenceEndpoint_reportWithChainButNoCitations(t *testing.T) {
	router := newTrustRouter(t)

	w, _ := doJSON(t, router, http.MethodPost, "/trust/v1/ledger/rpt_bare/append", gin.H{
		"eventType": "REPORT_GENERATED",
		"actor":     "system",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("append: %d", w.Code)
	}

	w, body := doJSON(t, router, http.MethodGet, "/trust/v1/evidence/rpt_bare", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if body["evidenceCount"] != float64(0) {
		t.Errorf("evidenceCount = %v", body["evidenceCount"])
	}
	citations, ok := body["citations"].([]any)
	if !ok || len(citations) != 0 {
		t.Errorf("citations = %v, want empty array", body["citations"])
	}
}

func TestVerifyEvidenceEndpoint(t *testing.T) {
	router := newTrustRouter(t)
	id := attachCitation(t, router, "rpt_2024_q3")

	w, body := doJSON(t, router, http.MethodPost, "/trust/v1/evidence/verify", gin.H{
		"reportId":    "rpt_2024_q3",
		"citationIds": []string{id},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if body["verified"] != true {
		t.Errorf("verified = %v", body["verified"])
	}
	if body["verifiedAt"] == nil {
		t.Error("verifiedAt missing")
	}

	results, _ := body["results"].([]any)
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	r := results[0].(map[string]any)
	if r["citationId"] != id || r["valid"] != true || r["matchesSource"] != true {
		t.Errorf("result = %v", r)
	}
}

func TestVerifyEvidenceEndpoint_unknownCitation(t *testing.T) {
	router := newTrustRouter(t)
	attachCitation(t, router, "rpt_2024_q3")

	w, body := doJSON(t, router, http.MethodPost, "/trust/v1/evidence/verify", gin.H{
		"reportId":    "rpt_2024_q3",
		"citationIds": []string{"no-such-citation"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["verified"] != false {
		t.Errorf("verified = %v, want false", body["verified"])
	}
	r := body["results"].([]any)[0].(map[string]any)
	if r["valid"] != false || r["reason"] != "citation not found" {
		t.Errorf("result = %v", r)
	}
}

func TestVerifyEvidenceEndpoint_reportWithChainButNoCitations(t *testing.T) {
	router := newTrustRouter(t)

	w, _ := doJSON(t, router, http.MethodPost, "/trust/v1/ledger/rpt_bare/append", gin.H{
		"eventType": "REPORT_GENERATED",
		"actor":     "system",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("append: %d", w.Code)
	}

	w, body := doJSON(t, router, http.MethodPost, "/trust/v1/evidence/verify", gin.H{
		"reportId":    "rpt_bare",
		"citationIds": []string{"cit_unknown"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if body["verified"] != false {
		t.Errorf("verified = %v, want false", body["verified"])
	}
	results, _ := body["results"].([]any)
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	r := results[0].(map[string]any)
	if r["citationId"] != "cit_unknown" || r["valid"] != false || r["reason"] != "citation not found" {
		t.Errorf("result = %v", r)
	}
}

func TestVerifyEvidenceEndpoint_unknownReport(t *testing.T) {
	router := newTrustRouter(t)

	w, body := doJSON(t, router, http.MethodPost, "/trust/v1/evidence/verify", gin.H{
		"reportId":    "rpt_missing",
		"citationIds": []string{"any"},
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	if body["error"] != "Report not found" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestVerifyEvidenceEndpoint_missingReportID(t *testing.T) {
	router := newTrustRouter(t)

	w, body := doJSON(t, router, http.MethodPost, "/trust/v1/evidence/verify", gin.H{
		"citationIds": []string{"any"},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if body["error"] != "reportId is required" {
		t.Errorf("error = %v", body["error"])
	}
}
