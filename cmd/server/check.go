package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"anime-notifier/internal/notify"
)

func newCheckCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run one reconciliation pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cc.cfg, cc.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			tgBot, err := a.newBot()
			if err != nil {
				return err
			}
			sink := notify.NewSink(notify.NewTelegramTransport(tgBot), cc.logger.Named("notify"))

			result, err := a.newReconciler(sink).RunPass(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Pass %s finished in %s\n", result.PassID, result.Duration.Round(time.Millisecond))
			fmt.Fprintln(out, renderTable(
				[]string{"Entries", "Checked", "Skipped", "Failed", "Notified", "Undelivered", "Advanced"},
				[][]string{{
					itoa(result.Entries), itoa(result.ShowsChecked), itoa(result.ShowsSkipped), itoa(result.ShowsFailed),
					itoa(result.NotificationsSent), itoa(result.NotificationsFailed), itoa(result.EntriesAdvanced),
				}},
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
}
