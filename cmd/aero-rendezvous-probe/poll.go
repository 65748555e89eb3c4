package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newPollCmd(opts *rootOptions) *cobra.Command {
	var quiet time.Duration

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Bind --role and print what is queued for it",
		Long: `Bind --role, send a poll and print every message the relay returns, one
JSON document per line. The opposite role's queue is left intact.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, cancel, log, err := opts.dial(cmd, true)
			if err != nil {
				return err
			}
			defer cancel()
			defer client.Close()

			if err := client.Init(); err != nil {
				return err
			}
			if err := client.Poll(); err != nil {
				return err
			}

			msgs := client.Collect(ctx, quiet)
			for _, msg := range msgs {
				fmt.Fprintln(cmd.OutOrStdout(), string(msg.Raw))
			}
			log.Info("poll finished", "messages", len(msgs))
			return nil
		},
	}

	cmd.Flags().DurationVar(&quiet, "quiet", 500*time.Millisecond, "stop once no message has arrived for this long")
	return cmd
}
