package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/impactlens/trustledger/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden at release time via -ldflags "-X main.version=...".
var version = "dev"

var (
	serviceURL string
	cfgFile    string
	asJSON     bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "trustctl",
	Short: "Trust ledger operator CLI",
	Long: `trustctl is the command-line interface for the trust ledger service.

It appends report lifecycle events, inspects and verifies per-report audit
chains, and re-verifies citation evidence against its content hashes.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.trustctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serviceURL == "" {
			serviceURL = viper.GetString("service_url")
		}
		if serviceURL == "" {
			serviceURL = "http://localhost:8080"
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.trustctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serviceURL, "service", "", "trust service base URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print raw JSON instead of tables")

	rootCmd.AddCommand(appendCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(evidenceCmd)
	rootCmd.AddCommand(versionCmd)
}

func api() *client.Client {
	opts := []client.Option{client.WithTimeout(15 * time.Second)}
	if tok := viper.GetString("bearer_token"); tok != "" {
		opts = append(opts, client.WithBearerToken(tok))
	}
	return client.New(serviceURL, opts...)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ── append ───────────────────────────────────────────────────────────────────

var (
	appendActor    string
	appendMetadata string
)

var appendCmd = &cobra.Command{
	Use:   "append <reportId> <eventType>",
	Short: "Append a lifecycle event to a report's audit chain",
	Long: `Append records one lifecycle event, e.g.:

  trustctl append rpt_2024_q3 REPORT_GENERATED --actor system --metadata '{"model":"gpt-4-turbo"}'
  trustctl append rpt_2024_q3 REPORT_APPROVED --actor jane@example.com`,
	Args: cobra.ExactArgs(2),
	RunE: runAppend,
}

func init() {
	appendCmd.Flags().StringVar(&appendActor, "actor", "system", "who or what produced the event")
	appendCmd.Flags().StringVar(&appendMetadata, "metadata", "", "event metadata as a JSON object")
}

func runAppend(cmd *cobra.Command, args []string) error {
	reportID, eventType := args[0], args[1]

	var metadata map[string]any
	if appendMetadata != "" {
		if err := json.Unmarshal([]byte(appendMetadata), &metadata); err != nil {
			return fmt.Errorf("invalid --metadata JSON: %w", err)
		}
	}

	res, err := api().AppendEvent(context.Background(), reportID, eventType, appendActor, metadata)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(res)
	}

	fmt.Printf("appended %s to %s\n", res.Entry.EventType, res.ReportID)
	fmt.Printf("  sequence: %d\n", res.Entry.Sequence)
	fmt.Printf("  hash:     %s\n", res.Entry.Hash)
	return nil
}

// ── history ──────────────────────────────────────────────────────────────────

var historyCmd = &cobra.Command{
	Use:   "history <reportId>",
	Short: "Show a report's full audit chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := api().GetLedger(context.Background(), args[0])
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(res)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SEQ\tEVENT\tACTOR\tTIMESTAMP\tHASH")
		for _, e := range res.Entries {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s…\n",
				e.Sequence, e.EventType, e.Actor,
				e.Timestamp.Format(time.RFC3339), e.Hash[:12])
		}
		w.Flush()

		if !res.ChainValid {
			fmt.Printf("\nCHAIN BROKEN at sequence %d: %s\n",
				res.IntegrityViolation.Sequence, res.IntegrityViolation.Reason)
		}
		return nil
	},
}

// ── verify ───────────────────────────────────────────────────────────────────

var verifyCmd = &cobra.Command{
	Use:   "verify <reportId>",
	Short: "Verify the integrity of a report's audit chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := api().VerifyChain(context.Background(), args[0])
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(res)
		}

		fmt.Printf("report:   %s\n", res.ReportID)
		fmt.Printf("entries:  %d\n", res.EntryCount)
		fmt.Printf("head:     %s\n", res.HeadHash)
		if res.ChainValid {
			fmt.Println("chain:    VALID")
			return nil
		}
		fmt.Printf("chain:    BROKEN at sequence %d (%s): %s\n",
			res.IntegrityViolation.Sequence,
			res.IntegrityViolation.EntryID,
			res.IntegrityViolation.Reason)
		os.Exit(1)
		return nil
	},
}

// ── evidence ─────────────────────────────────────────────────────────────────

var evidenceCmd = &cobra.Command{
	Use:   "evidence",
	Short: "Inspect and verify citation evidence",
}

var evidenceListCmd = &cobra.Command{
	Use:   "list <reportId>",
	Short: "List a report's citations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := api().GetEvidence(context.Background(), args[0])
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(res)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSOURCE\tSCORE\tHASH")
		for _, c := range res.Citations {
			fmt.Fprintf(w, "%s\t%s\t%.2f\t%s…\n",
				c.ID, c.SourceID, c.RelevanceScore, c.SnippetHash[:12])
		}
		w.Flush()
		fmt.Printf("%d citation(s)\n", res.EvidenceCount)
		return nil
	},
}

var evidenceVerifyCmd = &cobra.Command{
	Use:   "verify <reportId> <citationId> [citationId...]",
	Short: "Re-verify citations against their content hashes",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := api().VerifyEvidence(context.Background(), args[0], args[1:])
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(res)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CITATION\tVALID\tSOURCE OK\tREASON")
		for _, r := range res.Results {
			reason := r.Reason
			if reason == "" {
				reason = "-"
			}
			fmt.Fprintf(w, "%s\t%t\t%t\t%s\n", r.CitationID, r.Valid, r.MatchesSource, reason)
		}
		w.Flush()

		if !res.Verified {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	evidenceCmd.AddCommand(evidenceListCmd)
	evidenceCmd.AddCommand(evidenceVerifyCmd)
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the trustctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("trustctl", version)
	},
}
