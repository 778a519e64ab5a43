// Package handler exposes the Trust API: the HTTP surface over the ledger
// chain and the evidence store. Field names in responses are part of the
// external compatibility contract and must not change.
package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/impactlens/trustledger/internal/ledger"
	"go.uber.org/zap"
)

// LedgerHandler handles HTTP requests for the per-report audit chains.
type LedgerHandler struct {
	chain  *ledger.Chain
	logger *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(chain *ledger.Chain, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{chain: chain, logger: logger}
}

// Register mounts the ledger routes on the given router group.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	l := rg.Group("/ledger")
	{
		l.GET("/:reportId", h.GetChain)
		l.POST("/:reportId/append", h.Append)
		l.GET("/:reportId/verify", h.Verify)
	}
}

// appendRequest is the body of POST /ledger/:reportId/append. Timestamps are
// deliberately absent: the ledger assigns them.
type appendRequest struct {
	EventType string         `json:"eventType"`
	Actor     string         `json:"actor"`
	Metadata  map[string]any `json:"metadata"`
}

// Append handles POST /ledger/:reportId/append — records a lifecycle event.
func (h *LedgerHandler) Append(c *gin.Context) {
	reportID := c.Param("reportId")

	var req appendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	entry, err := h.chain.Append(ctx, reportID, ledger.EventType(req.EventType), req.Actor, req.Metadata)
	if err != nil {
		var valErr *ledger.ErrValidation
		switch {
		case errors.As(err, &valErr):
			c.JSON(http.StatusBadRequest, gin.H{"error": valErr.Msg})
		case errors.Is(err, ledger.ErrChainConflict):
			RecordAppend(false)
			h.logger.Warn("append conflict", zap.String("report_id", reportID), zap.Error(err))
			c.JSON(http.StatusConflict, gin.H{
				"error":      "Cannot append to broken ledger chain",
				"reportId":   reportID,
				"chainValid": false,
			})
		default:
			h.logger.Error("ledger append", zap.String("report_id", reportID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to append ledger entry"})
		}
		return
	}

	RecordAppend(true)
	c.JSON(http.StatusCreated, gin.H{
		"reportId":   reportID,
		"entry":      entry,
		"chainValid": true,
	})
}

// GetChain handles GET /ledger/:reportId — returns the full entry history
// together with the chain's current verification status.
func (h *LedgerHandler) GetChain(c *gin.Context) {
	reportID := c.Param("reportId")
	ctx := c.Request.Context()

	entries, err := h.chain.History(ctx, reportID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Report not found", "reportId": reportID})
			return
		}
		h.logger.Error("ledger history", zap.String("report_id", reportID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read ledger"})
		return
	}

	// Verify the snapshot we already hold so entries and the verdict cannot
	// come from different reads under a concurrent append.
	res := ledger.VerifyEntries(entries)
	RecordVerification(res.ChainValid)

	body := gin.H{
		"reportId":   reportID,
		"entries":    entries,
		"chainValid": res.ChainValid,
		"entryCount": len(entries),
	}
	if res.Violation != nil {
		body["integrityViolation"] = res.Violation
	}
	c.JSON(http.StatusOK, body)
}

// Verify handles GET /ledger/:reportId/verify — walks the chain and reports
// integrity. A detected violation is a 200, not an error: finding corruption
// is this endpoint's job.
func (h *LedgerHandler) Verify(c *gin.Context) {
	reportID := c.Param("reportId")

	res := verifySnapshot(h.chain, c, reportID)
	if res == nil {
		return
	}

	body := gin.H{
		"reportId":    reportID,
		"chainValid":  res.ChainValid,
		"entryCount":  res.EntryCount,
		"verifiedAt":  time.Now().UTC(),
		"genesisHash": res.GenesisHash,
		"headHash":    res.HeadHash,
	}
	if res.Violation != nil {
		body["integrityViolation"] = res.Violation
	}
	c.JSON(http.StatusOK, body)
}

// verifySnapshot runs a chain verification and handles the error path,
// returning nil after writing a response when the read itself failed.
func verifySnapshot(chain *ledger.Chain, c *gin.Context, reportID string) *ledger.VerifyResult {
	res, err := chain.Verify(c.Request.Context(), reportID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify ledger"})
		return nil
	}
	RecordVerification(res.ChainValid)
	return res
}
