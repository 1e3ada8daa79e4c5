package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var statsLimit int

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show processed comment statistics",
	Long:  `Show how many comments were processed per action and the most recent records.`,
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().IntVarP(&statsLimit, "limit", "n", 10, "number of recent records to show")
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, _, err := openApp(ctx, nil, false)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.Store().Stats(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	rows := make([][]string, 0, len(stats.ByAction)+5)
	for _, ac := range stats.ByAction {
		rows = append(rows, []string{string(ac.Action), strconv.Itoa(ac.Count)})
	}
	rows = append(rows,
		[]string{"total processed", strconv.Itoa(stats.TotalProcessed)},
		[]string{"messages sent", strconv.Itoa(stats.MessagesSent)},
		[]string{"messages failed", strconv.Itoa(stats.MessagesFailed)},
		[]string{"direct messages", strconv.Itoa(stats.DirectMessages)},
		[]string{"public replies", strconv.Itoa(stats.PublicReplies)},
	)
	fmt.Fprintln(out, renderTable([]string{"Action", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))

	if statsLimit <= 0 {
		return nil
	}
	recent, err := a.Store().RecentProcessed(ctx, statsLimit)
	if err != nil {
		return err
	}
	if len(recent) == 0 {
		return nil
	}

	rows = rows[:0]
	for _, p := range recent {
		rows = append(rows, []string{
			p.ProcessedAt.Local().Format("2006-01-02 15:04:05"),
			"@" + p.AuthorUsername,
			string(p.Action),
			p.Keyword(),
			truncate(p.Text, 40),
		})
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, renderTable([]string{"Processed", "Author", "Action", "Keyword", "Comment"}, rows, nil))
	return nil
}
