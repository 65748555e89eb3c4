package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wilsonzlin/aero/proxy/webrtc-rendezvous-relay/internal/relay"
)

func newSendCmd(opts *rootOptions) *cobra.Command {
	var (
		msgType   string
		bindFirst bool
		linger    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send [raw-json]",
		Short: "Send one signaling message",
		Long: `Send one message to the relay. Pass a raw JSON message as the argument, or
use --type for messages without a body (init, poll, clear, close, pong).
Raw messages are sent byte for byte, so malformed input can be tested too.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := buildPayload(opts, args, msgType)
			if err != nil {
				return err
			}

			client, ctx, cancel, log, err := opts.dial(cmd, false)
			if err != nil {
				return err
			}
			defer cancel()
			defer client.Close()

			if bindFirst {
				if err := client.Init(); err != nil {
					return err
				}
			}
			if err := client.SendRaw(payload); err != nil {
				return err
			}
			log.Info("message sent", "bytes", len(payload))

			// Anything the relay answers with before we hang up is printed.
			for _, msg := range client.Collect(ctx, linger) {
				fmt.Fprintln(cmd.OutOrStdout(), string(msg.Raw))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&msgType, "type", "", "message type to send without a body")
	cmd.Flags().BoolVar(&bindFirst, "init", false, "send init for --role before the message")
	cmd.Flags().DurationVar(&linger, "linger", 200*time.Millisecond, "how long to wait for replies before disconnecting")
	return cmd
}

func buildPayload(opts *rootOptions, args []string, msgType string) ([]byte, error) {
	switch {
	case len(args) == 1 && msgType != "":
		return nil, errors.New("pass either a raw message or --type, not both")
	case len(args) == 1:
		return []byte(args[0]), nil
	case msgType == "":
		return nil, errors.New("nothing to send: pass a raw message or --type")
	}

	role, err := opts.parseRole()
	if err != nil {
		return nil, err
	}
	switch t := relay.MessageType(msgType); t {
	case relay.MessageTypeInit, relay.MessageTypePoll, relay.MessageTypeClear, relay.MessageTypeClose, relay.MessageTypePong:
		return json.Marshal(map[string]string{"messageType": string(t), "origin": string(role)})
	default:
		return nil, fmt.Errorf("--type %q needs a body; send it as raw JSON", msgType)
	}
}
