package cli

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"soundbridge.dev/internal/journal"
)

// newStatsCommand creates the stats command with its subcommands
func newStatsCommand() *cobra.Command {
	var days int
	var preset string
	var since string
	var session string
	var limit int

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show playback statistics from the journal",
		Long: `Show playback statistics from the journal database.

The journal records every playback event the bridge emits: loads, plays,
finishes, failures. This command summarizes that history so you can see
what actually played and what went wrong.

Examples:
  soundbridge stats                    # last 7 days
  soundbridge stats --days 30          # last 30 days
  soundbridge stats --preset today     # today only
  soundbridge stats --since "2 weeks ago"
  soundbridge stats failures           # recent failures, newest first
  soundbridge stats scopes             # event counts per scope label`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatsOverview(cmd, days, preset, since, session, limit)
		},
	}

	statsCmd.Flags().IntVar(&days, "days", 7, "Number of days to cover (0 = all time)")
	statsCmd.Flags().StringVar(&preset, "preset", "", "Date preset (today, yesterday, last-week, this-month, all-time)")
	statsCmd.Flags().StringVar(&since, "since", "", "Natural-language start time (\"yesterday\", \"2 weeks ago\")")
	statsCmd.Flags().StringVar(&session, "session", "", "Filter by session id")
	statsCmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of sounds to list")

	statsCmd.AddCommand(newStatsFailuresCommand())
	statsCmd.AddCommand(newStatsScopesCommand())

	return statsCmd
}

// runStatsOverview executes the stats overview
func runStatsOverview(cmd *cobra.Command, days int, preset, since, session string, limit int) error {
	slog.Debug("running stats overview", "days", days, "preset", preset, "since", since, "session", session, "limit", limit)

	c := cliFromContext(cmd.Context())
	if c == nil {
		return fmt.Errorf("CLI instance not found in context")
	}

	c.initializeJournal()
	if c.journalDB == nil {
		printJournalDisabled(cmd.OutOrStdout())
		return nil
	}

	filter, err := timeFilter(days, preset, since)
	if err != nil {
		return err
	}
	filter.SessionID = session
	filter.Limit = limit

	summary, err := journal.GetSummary(c.journalDB, filter)
	if err != nil {
		return fmt.Errorf("failed to get journal summary: %w", err)
	}

	kinds, err := journal.GetKindCounts(c.journalDB, filter)
	if err != nil {
		return fmt.Errorf("failed to get event kind counts: %w", err)
	}

	sounds, err := journal.GetTopSounds(c.journalDB, filter)
	if err != nil {
		return fmt.Errorf("failed to get top sounds: %w", err)
	}

	return outputStatsOverview(cmd.OutOrStdout(), summary, kinds, sounds, filter)
}

// newStatsFailuresCommand creates the stats failures subcommand
func newStatsFailuresCommand() *cobra.Command {
	var days int
	var preset string
	var since string
	var session string
	var limit int
	var offset int

	failuresCmd := &cobra.Command{
		Use:   "failures",
		Short: "List recent playback failures",
		Long: `List recent playback failures and command errors, newest first.

Both runtime failures (a sound that died mid-stream) and error-variant
events (unresolvable sources, unknown sound ids) are included.

Examples:
  soundbridge stats failures             # recent failures
  soundbridge stats failures --days 30   # last 30 days
  soundbridge stats failures --limit 5   # only the newest five`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatsFailures(cmd, days, preset, since, session, limit, offset)
		},
	}

	failuresCmd.Flags().IntVar(&days, "days", 7, "Number of days to cover (0 = all time)")
	failuresCmd.Flags().StringVar(&preset, "preset", "", "Date preset (today, yesterday, last-week, this-month, all-time)")
	failuresCmd.Flags().StringVar(&since, "since", "", "Natural-language start time (\"yesterday\", \"2 weeks ago\")")
	failuresCmd.Flags().StringVar(&session, "session", "", "Filter by session id")
	failuresCmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of failures to list")
	failuresCmd.Flags().IntVar(&offset, "offset", 0, "Skip this many results (for paging)")

	return failuresCmd
}

// runStatsFailures executes the stats failures subcommand
func runStatsFailures(cmd *cobra.Command, days int, preset, since, session string, limit, offset int) error {
	slog.Debug("running stats failures", "days", days, "preset", preset, "since", since, "session", session, "limit", limit, "offset", offset)

	c := cliFromContext(cmd.Context())
	if c == nil {
		return fmt.Errorf("CLI instance not found in context")
	}

	c.initializeJournal()
	if c.journalDB == nil {
		printJournalDisabled(cmd.OutOrStdout())
		return nil
	}

	filter, err := timeFilter(days, preset, since)
	if err != nil {
		return err
	}
	filter.SessionID = session
	filter.Limit = limit
	filter.Offset = offset

	failures, err := journal.GetRecentFailures(c.journalDB, filter)
	if err != nil {
		return fmt.Errorf("failed to get recent failures: %w", err)
	}

	return outputStatsFailures(cmd.OutOrStdout(), failures, filter)
}

// newStatsScopesCommand creates the stats scopes subcommand
func newStatsScopesCommand() *cobra.Command {
	var days int
	var preset string
	var since string
	var limit int

	scopesCmd := &cobra.Command{
		Use:   "scopes",
		Short: "Show event counts per scope label",
		Long: `Show how many journal events carry each scope label.

Scope labels isolate streams of sounds from each other; this view shows
which labels have been active.

Examples:
  soundbridge stats scopes               # busiest labels first
  soundbridge stats scopes --days 30     # last 30 days`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatsScopes(cmd, days, preset, since, limit)
		},
	}

	scopesCmd.Flags().IntVar(&days, "days", 7, "Number of days to cover (0 = all time)")
	scopesCmd.Flags().StringVar(&preset, "preset", "", "Date preset (today, yesterday, last-week, this-month, all-time)")
	scopesCmd.Flags().StringVar(&since, "since", "", "Natural-language start time (\"yesterday\", \"2 weeks ago\")")
	scopesCmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of labels to list")

	return scopesCmd
}

// runStatsScopes executes the stats scopes subcommand
func runStatsScopes(cmd *cobra.Command, days int, preset, since string, limit int) error {
	slog.Debug("running stats scopes", "days", days, "preset", preset, "since", since, "limit", limit)

	c := cliFromContext(cmd.Context())
	if c == nil {
		return fmt.Errorf("CLI instance not found in context")
	}

	c.initializeJournal()
	if c.journalDB == nil {
		printJournalDisabled(cmd.OutOrStdout())
		return nil
	}

	filter, err := timeFilter(days, preset, since)
	if err != nil {
		return err
	}
	filter.Limit = limit

	scopes, err := journal.GetScopeActivity(c.journalDB, filter)
	if err != nil {
		return fmt.Errorf("failed to get scope activity: %w", err)
	}

	return outputStatsScopes(cmd.OutOrStdout(), scopes, filter)
}

// timeFilter builds the time portion of a journal query. A --since
// value overrides --days; --preset overrides both.
func timeFilter(days int, preset, since string) (journal.QueryFilter, error) {
	filter := journal.QueryFilter{
		Days:       days,
		DatePreset: preset,
	}

	if since != "" {
		start, err := journal.ParseNaturalDate(since)
		if err != nil {
			return filter, fmt.Errorf("invalid --since value %q: %w", since, err)
		}
		filter.StartTime = &start
		filter.Days = 0
	}

	return filter, nil
}

// printJournalDisabled explains how to turn the journal on
func printJournalDisabled(w io.Writer) {
	fmt.Fprintln(w, "The playback journal is not enabled or its database is unavailable.")
	fmt.Fprintln(w, "Enable it with SOUNDBRIDGE_JOURNAL=true")
}

// describeTimeWindow renders the active time filter for headers
func describeTimeWindow(filter journal.QueryFilter) string {
	switch {
	case filter.DatePreset != "":
		return filter.DatePreset
	case filter.StartTime != nil:
		return fmt.Sprintf("since %s", filter.StartTime.Format("2006-01-02 15:04"))
	case filter.Days > 0:
		return fmt.Sprintf("last %d days", filter.Days)
	default:
		return "all time"
	}
}

// outputStatsOverview formats and outputs the journal overview
func outputStatsOverview(w io.Writer, summary *journal.Summary, kinds map[string]int, sounds []journal.SoundActivity, filter journal.QueryFilter) error {
	if summary.TotalEvents == 0 {
		fmt.Fprintf(w, "No journal events found (%s).\n", describeTimeWindow(filter))
		fmt.Fprintln(w, "\nThis means either:")
		fmt.Fprintln(w, "  • Nothing has been played yet")
		fmt.Fprintln(w, "  • The journal was enabled after the sounds you are looking for")
		fmt.Fprintln(w, "  • The time filter is narrower than your playback history")
		return nil
	}

	fmt.Fprintln(w, "Playback Journal")
	fmt.Fprintln(w, "================")
	fmt.Fprintf(w, "Time Range: %s\n", describeTimeWindow(filter))
	if filter.SessionID != "" {
		fmt.Fprintf(w, "Session: %s\n", filter.SessionID)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Events: %d total across %d sounds\n", summary.TotalEvents, summary.UniqueSounds)
	fmt.Fprintf(w, "Plays: %d started, %d finished, %d failed\n", summary.PlayCount, summary.FinishCount, summary.FailureCount)
	if summary.FirstTimestamp > 0 {
		fmt.Fprintf(w, "Window: %s to %s\n",
			time.Unix(summary.FirstTimestamp, 0).Format("2006-01-02 15:04"),
			time.Unix(summary.LastTimestamp, 0).Format("2006-01-02 15:04"))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by kind:")
	type kindCount struct {
		name  string
		count int
	}
	sorted := make([]kindCount, 0, len(kinds))
	for name, count := range kinds {
		sorted = append(sorted, kindCount{name: name, count: count})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].count != sorted[j].count {
			return sorted[i].count > sorted[j].count
		}
		return sorted[i].name < sorted[j].name
	})
	for _, kc := range sorted {
		fmt.Fprintf(w, "  %-10s %4d\n", kc.name, kc.count)
	}

	if len(sounds) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Most played:")
		for _, s := range sounds {
			fmt.Fprintf(w, "  %-35s %3d plays, %3d finished (last heard %s)\n",
				s.Src, s.PlayCount, s.FinishCount,
				time.Unix(s.LastHeard, 0).Format("2006-01-02 15:04"))
		}
	}

	return nil
}

// outputStatsFailures formats and outputs the failure listing
func outputStatsFailures(w io.Writer, failures []journal.FailureRecord, filter journal.QueryFilter) error {
	if len(failures) == 0 {
		fmt.Fprintf(w, "No failures recorded (%s). Everything played cleanly.\n", describeTimeWindow(filter))
		return nil
	}

	fmt.Fprintf(w, "Recent Failures (%s):\n\n", describeTimeWindow(filter))
	for _, f := range failures {
		when := time.Unix(f.Timestamp, 0).Format("2006-01-02 15:04:05")
		target := f.Src
		if target == "" {
			target = f.SoundID
		}
		fmt.Fprintf(w, "  %s  %-8s %s", when, f.Kind, target)
		if f.Reason != "" {
			fmt.Fprintf(w, " (%s)", f.Reason)
		}
		fmt.Fprintln(w)
	}

	return nil
}

// outputStatsScopes formats and outputs per-scope event counts
func outputStatsScopes(w io.Writer, scopes []journal.ScopeActivity, filter journal.QueryFilter) error {
	if len(scopes) == 0 {
		fmt.Fprintf(w, "No scoped events recorded (%s).\n", describeTimeWindow(filter))
		fmt.Fprintln(w, "Scope labels appear here once commands carry a scope array.")
		return nil
	}

	fmt.Fprintf(w, "Events by Scope (%s):\n\n", describeTimeWindow(filter))
	for _, s := range scopes {
		fmt.Fprintf(w, "  %-20s %5d events\n", s.Label, s.Count)
	}

	return nil
}
