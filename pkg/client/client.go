// Package client provides the Go SDK for the trust ledger service: appending
// report lifecycle events, reading and verifying audit chains, and attaching
// and verifying citation evidence.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// APIError is returned when the service responds with a non-2xx status.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("trust API error %d: %s", e.Status, e.Message)
}

// LedgerEntry mirrors one audit record as returned by the service.
type LedgerEntry struct {
	ID           string         `json:"id"`
	ReportID     string         `json:"reportId"`
	Sequence     int            `json:"sequence"`
	EventType    string         `json:"eventType"`
	Actor        string         `json:"actor"`
	Metadata     map[string]any `json:"metadata"`
	Timestamp    time.Time      `json:"timestamp"`
	PreviousHash string         `json:"previousHash"`
	Hash         string         `json:"hash"`
}

// IntegrityViolation pinpoints the earliest broken entry in a chain.
type IntegrityViolation struct {
	EntryID  string `json:"entryId"`
	Sequence int    `json:"sequence"`
	Reason   string `json:"reason"`
}

// AppendResult is the response of AppendEvent.
type AppendResult struct {
	ReportID   string       `json:"reportId"`
	Entry      *LedgerEntry `json:"entry"`
	ChainValid bool         `json:"chainValid"`
}

// ChainResult is the response of GetLedger.
type ChainResult struct {
	ReportID           string              `json:"reportId"`
	Entries            []LedgerEntry       `json:"entries"`
	ChainValid         bool                `json:"chainValid"`
	EntryCount         int                 `json:"entryCount"`
	IntegrityViolation *IntegrityViolation `json:"integrityViolation,omitempty"`
}

// VerifyChainResult is the response of VerifyChain.
type VerifyChainResult struct {
	ReportID           string              `json:"reportId"`
	ChainValid         bool                `json:"chainValid"`
	EntryCount         int                 `json:"entryCount"`
	VerifiedAt         time.Time           `json:"verifiedAt"`
	GenesisHash        string              `json:"genesisHash"`
	HeadHash           string              `json:"headHash"`
	IntegrityViolation *IntegrityViolation `json:"integrityViolation,omitempty"`
}

// Citation mirrors one stored snippet as returned by the service.
type Citation struct {
	ID             string    `json:"id"`
	ReportID       string    `json:"reportId"`
	SnippetID      string    `json:"snippetId"`
	SourceID       string    `json:"sourceId"`
	Text           string    `json:"text"`
	RelevanceScore float64   `json:"relevanceScore"`
	SnippetHash    string    `json:"snippetHash"`
	CreatedAt      time.Time `json:"createdAt"`
}

// EvidenceResult is the response of GetEvidence.
type EvidenceResult struct {
	ReportID      string     `json:"reportId"`
	Citations     []Citation `json:"citations"`
	EvidenceCount int        `json:"evidenceCount"`
}

// CitationVerification is one per-citation outcome from VerifyEvidence.
type CitationVerification struct {
	CitationID    string `json:"citationId"`
	Valid         bool   `json:"valid"`
	SnippetHash   string `json:"snippetHash,omitempty"`
	MatchesSource bool   `json:"matchesSource"`
	Reason        string `json:"reason,omitempty"`
}

// EvidenceVerifyResult is the response of VerifyEvidence.
type EvidenceVerifyResult struct {
	ReportID   string                 `json:"reportId"`
	Verified   bool                   `json:"verified"`
	Results    []CitationVerification `json:"results"`
	VerifiedAt time.Time              `json:"verifiedAt"`
}

// Client is the SDK entry point.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the request timeout on the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithBearerToken attaches a gateway-issued bearer token to every request.
// The trust service itself does not validate tokens; the fronting gateway does.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.bearerToken = token }
}

// New creates a Client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AppendEvent records a lifecycle event on the report's audit chain.
func (c *Client) AppendEvent(ctx context.Context, reportID, eventType, actor string, metadata map[string]any) (*AppendResult, error) {
	body := map[string]any{
		"eventType": eventType,
		"actor":     actor,
		"metadata":  metadata,
	}
	var out AppendResult
	if err := c.do(ctx, http.MethodPost, "/trust/v1/ledger/"+reportID+"/append", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetLedger returns the report's full audit chain and its integrity status.
func (c *Client) GetLedger(ctx context.Context, reportID string) (*ChainResult, error) {
	var out ChainResult
	if err := c.do(ctx, http.MethodGet, "/trust/v1/ledger/"+reportID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyChain walks the report's chain and returns its integrity status.
func (c *Client) VerifyChain(ctx context.Context, reportID string) (*VerifyChainResult, error) {
	var out VerifyChainResult
	if err := c.do(ctx, http.MethodGet, "/trust/v1/ledger/"+reportID+"/verify", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetEvidence lists the report's citations.
func (c *Client) GetEvidence(ctx context.Context, reportID string) (*EvidenceResult, error) {
	var out EvidenceResult
	if err := c.do(ctx, http.MethodGet, "/trust/v1/evidence/"+reportID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AttachCitation stores a snippet and returns the content-addressed citation.
func (c *Client) AttachCitation(ctx context.Context, reportID, snippetID, sourceID, text string, relevanceScore float64) (*Citation, error) {
	body := map[string]any{
		"snippetId":      snippetID,
		"sourceId":       sourceID,
		"text":           text,
		"relevanceScore": relevanceScore,
	}
	var out struct {
		Citation *Citation `json:"citation"`
	}
	if err := c.do(ctx, http.MethodPost, "/trust/v1/evidence/"+reportID+"/attach", body, &out); err != nil {
		return nil, err
	}
	return out.Citation, nil
}

// VerifyEvidence re-verifies the given citations against their stored state.
func (c *Client) VerifyEvidence(ctx context.Context, reportID string, citationIDs []string) (*EvidenceVerifyResult, error) {
	body := map[string]any{
		"reportId":    reportID,
		"citationIds": citationIDs,
	}
	var out EvidenceVerifyResult
	if err := c.do(ctx, http.MethodPost, "/trust/v1/evidence/verify", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if json.Unmarshal(raw, &apiErr) != nil || apiErr.Error == "" {
			apiErr.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{Status: resp.StatusCode, Message: apiErr.Error}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
