package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/admission/pkg/cli"
	"mercator-hq/admission/pkg/config"
	"mercator-hq/admission/pkg/limits/journal"
)

var journalFlags struct {
	policy    string
	key       string
	since     string
	until     string
	decision  string
	limit     int
	format    string
	olderThan time.Duration
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect the decision journal",
	Long: `Query and prune the SQLite decision journal offline.

The journal records every admission decision for audit. It is never
consulted when deciding.

Subcommands:
  query  - List recorded decisions with filters
  prune  - Delete decisions older than the retention period`,
}

var journalQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "List recorded decisions",
	Long: `List recorded decisions, newest first.

Time bounds accept RFC3339 timestamps or a duration meaning "that long ago".

Examples:
  # Denials of the last hour
  admission journal query --since 1h --decision denied

  # Everything one identity did under a policy, as CSV
  admission journal query --policy login --key alice --format csv`,
	RunE: queryJournal,
}

var journalPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old decisions",
	Long: `Delete decisions older than --older-than, or the configured retention
period when the flag is not set.

Examples:
  admission journal prune --older-than 72h`,
	RunE: pruneJournal,
}

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalQueryCmd, journalPruneCmd)

	journalQueryCmd.Flags().StringVar(&journalFlags.policy, "policy", "", "filter by policy name")
	journalQueryCmd.Flags().StringVar(&journalFlags.key, "key", "", "filter by identity")
	journalQueryCmd.Flags().StringVar(&journalFlags.since, "since", "", "oldest decision to include (RFC3339 or duration)")
	journalQueryCmd.Flags().StringVar(&journalFlags.until, "until", "", "exclude decisions from this time on (RFC3339 or duration)")
	journalQueryCmd.Flags().StringVar(&journalFlags.decision, "decision", "", "filter by outcome: allowed, denied")
	journalQueryCmd.Flags().IntVar(&journalFlags.limit, "limit", journal.DefaultQueryLimit, "max results")
	journalQueryCmd.Flags().StringVar(&journalFlags.format, "format", "text", "output format: text, json, csv")

	journalPruneCmd.Flags().DurationVar(&journalFlags.olderThan, "older-than", 0, "age of the newest decision to delete (default: retention period)")
}

// journalListing is the output of journal query.
type journalListing struct {
	Entries []*journal.Entry `json:"entries"`
	Total   int64            `json:"total"`
}

func (l journalListing) String() string {
	if len(l.Entries) == 0 {
		return "No decisions found\n"
	}

	var b strings.Builder
	for _, e := range l.Entries {
		outcome := "✓ allowed"
		if !e.Allowed {
			outcome = fmt.Sprintf("× denied (retry after %s)", e.RetryAfter)
		}
		fmt.Fprintf(&b, "%s  %-16s %-24s %s\n", e.Timestamp.Format(time.RFC3339), e.Policy, e.Key, outcome)
	}
	fmt.Fprintf(&b, "Showing %d of %d decisions\n", len(l.Entries), l.Total)
	return b.String()
}

func (l journalListing) Header() []string {
	return []string{"id", "timestamp", "policy", "key", "allowed", "retry_after_ms"}
}

func (l journalListing) Rows() [][]string {
	rows := make([][]string, 0, len(l.Entries))
	for _, e := range l.Entries {
		rows = append(rows, []string{
			e.ID,
			e.Timestamp.Format(time.RFC3339Nano),
			e.Policy,
			e.Key,
			strconv.FormatBool(e.Allowed),
			strconv.FormatInt(e.RetryAfter.Milliseconds(), 10),
		})
	}
	return rows
}

func queryJournal(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(journalFlags.format)
	if err != nil {
		return err
	}
	query, err := buildJournalQuery(time.Now())
	if err != nil {
		return err
	}

	store, _, err := openJournalStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()

	entries, err := store.Query(ctx, query)
	if err != nil {
		return cli.NewCommandError("journal", err)
	}
	total, err := store.Count(ctx, query)
	if err != nil {
		return cli.NewCommandError("journal", err)
	}

	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), journalListing{Entries: entries, Total: total})
}

func pruneJournal(cmd *cobra.Command, args []string) error {
	store, cfg, err := openJournalStore()
	if err != nil {
		return err
	}
	defer store.Close()

	retention := journalFlags.olderThan
	if retention == 0 {
		retention = cfg.Retention.Period
	}
	if retention <= 0 {
		return fmt.Errorf("--older-than must be positive")
	}

	ctx := cmd.Context()

	// An unscheduled scheduler runs a single retention pass.
	deleted, err := journal.NewScheduler(store, "", retention).RunOnce(ctx)
	if err != nil {
		return cli.NewCommandError("journal", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Pruned %d decisions older than %s\n", deleted, retention)
	return nil
}

// openJournalStore opens the configured SQLite journal.
func openJournalStore() (journal.Store, *config.JournalConfig, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, nil, cli.NewConfigError(cfgFile, err)
	}
	if cfg.Journal.Backend != "sqlite" {
		return nil, nil, cli.NewCommandError("journal",
			fmt.Errorf("journal backend %q keeps no state between runs; only sqlite can be inspected", cfg.Journal.Backend))
	}

	store, err := journal.NewSQLiteStore(&journal.SQLiteConfig{
		Path:        cfg.Journal.SQLite.Path,
		WALMode:     cfg.Journal.SQLite.WALMode,
		BusyTimeout: cfg.Journal.SQLite.BusyTimeout,
	})
	if err != nil {
		return nil, nil, cli.NewCommandError("journal", fmt.Errorf("failed to open journal: %w", err))
	}
	return store, &cfg.Journal, nil
}

func buildJournalQuery(now time.Time) (*journal.Query, error) {
	query := &journal.Query{
		Policy: journalFlags.policy,
		Key:    journalFlags.key,
		Limit:  journalFlags.limit,
	}

	var err error
	if query.Since, err = parseTimeBound(journalFlags.since, now); err != nil {
		return nil, fmt.Errorf("invalid --since: %w", err)
	}
	if query.Until, err = parseTimeBound(journalFlags.until, now); err != nil {
		return nil, fmt.Errorf("invalid --until: %w", err)
	}

	switch journalFlags.decision {
	case "":
	case "allowed":
		allowed := true
		query.Allowed = &allowed
	case "denied":
		allowed := false
		query.Allowed = &allowed
	default:
		return nil, fmt.Errorf("invalid --decision %q (valid: allowed, denied)", journalFlags.decision)
	}

	return query, nil
}

// parseTimeBound accepts an RFC3339 timestamp or a duration before now.
func parseTimeBound(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Time{}, errors.New("expected RFC3339 time or duration")
	}
	if d < 0 {
		return time.Time{}, errors.New("duration must not be negative")
	}
	return now.Add(-d), nil
}
