package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"igdmbot/pkg/ui"
)

// postsCmd represents the posts command
var postsCmd = &cobra.Command{
	Use:   "posts",
	Short: "List recent posts and whether they are monitored",
	Long: `Fetch your most recent posts (up to monitoring.max_posts_to_check) and show
which of them a polling cycle would monitor, and why the others are skipped.`,
	Args: cobra.NoArgs,
	RunE: runPosts,
}

func init() {
	rootCmd.AddCommand(postsCmd)
}

func runPosts(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, _, err := openApp(ctx, nil, false)
	if err != nil {
		return err
	}
	defer a.Close()

	views, err := a.RecentPosts(ctx)
	if err != nil {
		return err
	}
	if len(views) == 0 {
		ui.PrintInfo("No posts", "the account has no recent media")
		return nil
	}

	rows := make([][]string, 0, len(views))
	monitored := 0
	for _, v := range views {
		mark := "no"
		if v.Monitored {
			mark = "yes"
			monitored++
		}
		rows = append(rows, []string{
			v.Post.ID,
			v.Post.TakenAt.Local().Format("2006-01-02 15:04"),
			strconv.Itoa(v.Post.CommentCount),
			mark,
			string(v.Reason),
			truncate(v.Post.Caption, 40),
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"ID", "Posted", "Comments", "Monitored", "Reason", "Caption"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
	))
	ui.PrintInfo("Monitored", fmt.Sprintf("%d of %d", monitored, len(views)))
	return nil
}
