//go:build ignore

// seed-demo-ledger.go drives a running trust service through a full report
// lifecycle: generate, attach citations, approve, publish, then verify both
// the chain and the evidence. Useful for smoke-testing a fresh deployment.
//
// Run with: go run scripts/seed-demo-ledger.go [baseURL]
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/impactlens/trustledger/pkg/client"
)

func main() {
	baseURL := "http://localhost:8080"
	if len(os.Args) > 1 {
		baseURL = os.Args[1]
	}

	c := client.New(baseURL, client.WithTimeout(10*time.Second))
	ctx := context.Background()
	reportID := fmt.Sprintf("rpt_demo_%d", time.Now().Unix())

	fmt.Printf("seeding report %s against %s\n\n", reportID, baseURL)

	step := func(name string, fn func() error) {
		if err := fn(); err != nil {
			fmt.Fprintf(os.Stderr, "  FAIL %s: %v\n", name, err)
			os.Exit(1)
		}
		fmt.Printf("  ok   %s\n", name)
	}

	step("append REPORT_GENERATED", func() error {
		_, err := c.AppendEvent(ctx, reportID, "REPORT_GENERATED", "system",
			map[string]any{"model": "gpt-4-turbo", "tokens": 1532})
		return err
	})

	var citationIDs []string
	snippets := []struct{ source, text string }{
		{"kintell_sessions", "150 participants completed the program"},
		{"survey_results", "overall satisfaction rose 12% year over year"},
	}
	for i, s := range snippets {
		step("attach citation "+s.source, func() error {
			cit, err := c.AttachCitation(ctx, reportID,
				fmt.Sprintf("snip_%d", i+1), s.source, s.text, 0.9)
			if err != nil {
				return err
			}
			citationIDs = append(citationIDs, cit.ID)
			_, err = c.AppendEvent(ctx, reportID, "CITATION_ATTACHED", "system",
				map[string]any{"citationId": cit.ID, "sourceId": s.source})
			return err
		})
	}

	step("append REPORT_APPROVED", func() error {
		_, err := c.AppendEvent(ctx, reportID, "REPORT_APPROVED", "demo@example.com", nil)
		return err
	})
	step("append REPORT_PUBLISHED", func() error {
		_, err := c.AppendEvent(ctx, reportID, "REPORT_PUBLISHED", "system", nil)
		return err
	})

	step("verify chain", func() error {
		res, err := c.VerifyChain(ctx, reportID)
		if err != nil {
			return err
		}
		if !res.ChainValid {
			return fmt.Errorf("chain invalid: %+v", res.IntegrityViolation)
		}
		fmt.Printf("       %d entries, head %s…\n", res.EntryCount, res.HeadHash[:12])
		return nil
	})

	step("verify evidence", func() error {
		res, err := c.VerifyEvidence(ctx, reportID, citationIDs)
		if err != nil {
			return err
		}
		if !res.Verified {
			return fmt.Errorf("evidence failed verification: %+v", res.Results)
		}
		return nil
	})

	fmt.Printf("\ndone — inspect with: trustctl history %s\n", reportID)
}
