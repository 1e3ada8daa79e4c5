package main

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"igdmbot/pkg/models"
	"igdmbot/pkg/ui"
)

// onceCmd represents the once command
var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single polling cycle",
	Long:  `Run exactly one polling cycle, print what happened and exit.`,
	Args:  cobra.NoArgs,
	RunE:  runOnce,
}

func init() {
	rootCmd.AddCommand(onceCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, _, err := openApp(ctx, nil, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Lock(); err != nil {
		return err
	}

	report, err := a.RunOnce(ctx)

	rows := [][]string{
		{"Posts fetched", strconv.Itoa(report.PostsFetched)},
		{"Posts monitored", strconv.Itoa(report.PostsMonitored)},
		{"Comments seen", strconv.Itoa(report.CommentsSeen)},
		{"Dispatched", strconv.Itoa(report.Dispatched)},
		{"Already processed", strconv.Itoa(report.Skipped)},
		{"Failures", strconv.Itoa(report.Failures)},
		{"Duration", report.Duration().Round(10 * time.Millisecond).String()},
	}
	actions := make([]string, 0, len(report.Actions))
	for action := range report.Actions {
		actions = append(actions, string(action))
	}
	sort.Strings(actions)
	for _, action := range actions {
		rows = append(rows, []string{action, strconv.Itoa(report.Actions[models.Action(action)])})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Cycle " + report.ID, ""}, rows, []columnAlignment{alignLeft, alignRight}))

	if err != nil {
		return err
	}
	ui.PrintSuccess("Cycle completed")
	return nil
}
