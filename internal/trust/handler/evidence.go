package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/impactlens/trustledger/internal/evidence"
	"go.uber.org/zap"
)

// evidenceAPIVersion is reported in evidence response metadata.
const evidenceAPIVersion = "1.0"

// chainChecker reports whether a report has a ledger chain. A report with a
// chain but no citations is known to the system, so GET /evidence on it
// returns an empty list rather than 404.
type chainChecker interface {
	HasChain(ctx context.Context, reportID string) (bool, error)
}

// EvidenceHandler handles HTTP requests for citation evidence.
type EvidenceHandler struct {
	store  *evidence.Store
	chains chainChecker
	logger *zap.Logger
}

// NewEvidenceHandler creates a new EvidenceHandler. chains may be nil, in
// which case only reports with citations are considered known.
func NewEvidenceHandler(store *evidence.Store, chains chainChecker, logger *zap.Logger) *EvidenceHandler {
	return &EvidenceHandler{store: store, chains: chains, logger: logger}
}

// Register mounts the evidence routes on the given router group.
func (h *EvidenceHandler) Register(rg *gin.RouterGroup) {
	e := rg.Group("/evidence")
	{
		e.GET("/:reportId", h.GetEvidence)
		e.POST("/:reportId/attach", h.AttachEvidence)
		e.POST("/verify", h.VerifyEvidence)
	}
}

// attachRequest is the body of POST /evidence/:reportId/attach.
type attachRequest struct {
	SnippetID      string  `json:"snippetId"`
	SourceID       string  `json:"sourceId"`
	Text           string  `json:"text"`
	RelevanceScore float64 `json:"relevanceScore"`
}

// GetEvidence handles GET /evidence/:reportId — lists a report's citations.
func (h *EvidenceHandler) GetEvidence(c *gin.Context) {
	reportID := c.Param("reportId")
	ctx := c.Request.Context()

	citations, err := h.store.ListForReport(ctx, reportID)
	if err != nil {
		h.logger.Error("list citations", zap.String("report_id", reportID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read evidence"})
		return
	}

	if len(citations) == 0 && !h.reportKnown(ctx, reportID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Report not found", "reportId": reportID})
		return
	}
	if citations == nil {
		citations = []*evidence.Citation{}
	}

	c.JSON(http.StatusOK, gin.H{
		"reportId":      reportID,
		"citations":     citations,
		"evidenceCount": len(citations),
		"metadata": gin.H{
			"generatedAt": time.Now().UTC(),
			"version":     evidenceAPIVersion,
		},
	})
}

// verifyRequest is the body of POST /evidence/verify.
type verifyRequest struct {
	ReportID    string   `json:"reportId"`
	CitationIDs []string `json:"citationIds"`
}

// VerifyEvidence handles POST /evidence/verify — recomputes snippet hashes
// for the requested citations and reports each outcome.
func (h *EvidenceHandler) VerifyEvidence(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ReportID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reportId is required"})
		return
	}

	ctx := c.Request.Context()
	results, err := h.store.Verify(ctx, req.ReportID, req.CitationIDs)
	switch {
	case err == nil:
	case errors.Is(err, evidence.ErrNotFound):
		// A report can exist in the ledger before any citation is attached.
		// Only a reportId unknown everywhere is a 404; a known report with
		// no citations answers per-citation misses.
		if !h.reportKnown(ctx, req.ReportID) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Report not found", "reportId": req.ReportID})
			return
		}
		results = make([]evidence.VerificationResult, 0, len(req.CitationIDs))
		for _, id := range req.CitationIDs {
			results = append(results, evidence.VerificationResult{
				CitationID: id,
				Reason:     "citation not found",
			})
		}
	default:
		h.logger.Error("verify evidence", zap.String("report_id", req.ReportID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify evidence"})
		return
	}

	verified := true
	for _, r := range results {
		if !r.Valid {
			verified = false
			break
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"reportId":   req.ReportID,
		"verified":   verified,
		"results":    results,
		"verifiedAt": time.Now().UTC(),
	})
}

// AttachEvidence handles POST /evidence/:reportId/attach — stores a snippet
// and returns the content-addressed citation. Used by the report-generation
// collaborator when it cites source material.
func (h *EvidenceHandler) AttachEvidence(c *gin.Context) {
	reportID := c.Param("reportId")

	var req attachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	citation, err := h.store.Attach(c.Request.Context(), reportID, req.SnippetID, req.SourceID, req.Text, req.RelevanceScore)
	if err != nil {
		var valErr *evidence.ErrValidation
		if errors.As(err, &valErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": valErr.Msg})
			return
		}
		h.logger.Error("attach citation", zap.String("report_id", reportID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to attach citation"})
		return
	}

	RecordCitationAttached()
	c.JSON(http.StatusCreated, gin.H{
		"reportId": reportID,
		"citation": citation,
	})
}

func (h *EvidenceHandler) reportKnown(ctx context.Context, reportID string) bool {
	if h.chains == nil {
		return false
	}
	known, err := h.chains.HasChain(ctx, reportID)
	if err != nil {
		h.logger.Warn("chain existence check failed", zap.String("report_id", reportID), zap.Error(err))
		return false
	}
	return known
}
