package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"anime-notifier/internal/notify"
	"anime-notifier/internal/service"
	"anime-notifier/internal/timeutil"
)

func newWatchCommand(cc *commandContext) *cobra.Command {
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Manage watch entries",
	}
	watchCmd.AddCommand(newWatchListCommand(cc), newWatchAddCommand(cc), newWatchRemoveCommand(cc))
	return watchCmd
}

func newWatchListCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list <user-id>",
		Short: "List a user's watch entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cc.cfg, cc.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			views, err := a.watchlist.List(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(views) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No watch entries.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderWatchTable(views, timeutil.Now()))
			return nil
		},
	}
}

func newWatchAddCommand(cc *commandContext) *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "add <user-id> <show-id>",
		Short: "Start watching a show",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			showID, err := parseShowID(args[1])
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cc.cfg, cc.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			entry, err := a.watchlist.Add(cmd.Context(), args[0], showID, target)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%d) for user %s\n", entry.ShowTitle, entry.ShowID, entry.UserID)
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "Chat or channel to notify instead of a direct message")
	return cmd
}

func newWatchRemoveCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <user-id> <show-id>",
		Short: "Stop watching a show",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			showID, err := parseShowID(args[1])
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cc.cfg, cc.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.watchlist.Remove(cmd.Context(), args[0], showID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed show %d for user %s\n", showID, args[0])
			return nil
		},
	}
}

func parseShowID(raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid show id %q", raw)
	}
	return id, nil
}

func renderWatchTable(views []service.WatchView, now time.Time) string {
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		target := v.Entry.DeliveryTarget
		if target == "" {
			target = "direct"
		}
		status, next := "-", "-"
		if v.Schedule != nil {
			status = notify.FormatStatus(v.Schedule.Status)
			if v.Schedule.HasNextEpisode() {
				next = fmt.Sprintf("Ep %d, %s", *v.Schedule.NextEpisodeNumber, notify.FormatUntil(v.Schedule.NextAiringTime().Sub(now)))
			}
		}
		rows = append(rows, []string{
			itoa(v.Entry.ShowID), v.Entry.ShowTitle, itoa(v.Entry.LastNotifiedEpisode), status, next, target,
		})
	}
	return renderTable(
		[]string{"ID", "Title", "Notified", "Status", "Next", "Target"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
	)
}
