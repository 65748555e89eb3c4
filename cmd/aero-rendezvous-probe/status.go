package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wilsonzlin/aero/proxy/webrtc-rendezvous-relay/internal/relay"
)

// relayStatus mirrors the relay's GET /status document.
type relayStatus struct {
	relay.Status
	Connections int               `json:"connections"`
	Counters    map[string]uint64 `json:"counters"`
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show role bindings, queue depths and counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			endpoint, err := statusURL(opts.url)
			if err != nil {
				return err
			}

			client := &http.Client{Timeout: opts.timeout}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, endpoint, nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", endpoint, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("fetch %s: unexpected status %s", endpoint, resp.Status)
			}

			var st relayStatus
			if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
				return fmt.Errorf("decode status: %w", err)
			}
			if raw {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderStatus(st))
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "json", false, "print the status document instead of tables")
	return cmd
}

func renderStatus(st relayStatus) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s   %s %d\n",
		mutedStyle.Render("mode"), st.Mode,
		mutedStyle.Render("connections"), st.Connections)

	b.WriteString(titleStyle.Render("Roles"))
	b.WriteString("\n")
	var roleRows [][]string
	for _, role := range relay.Roles {
		id, bound := st.Bound(role)
		row := []string{string(role), "-", "-", "-", strconv.Itoa(st.Queues[role])}
		if bound {
			row[1] = id
			for _, bs := range st.Bindings {
				if bs.Role == role {
					row[2] = bs.BoundAt.Format(time.RFC3339)
					row[3] = strconv.FormatBool(bs.Keepalive)
				}
			}
		}
		roleRows = append(roleRows, row)
	}
	b.WriteString(renderTable([]string{"Role", "Channel", "Bound At", "Keepalive", "Queued"}, roleRows))
	b.WriteString("\n")

	b.WriteString(titleStyle.Render("Counters"))
	b.WriteString("\n")
	names := make([]string, 0, len(st.Counters))
	for name := range st.Counters {
		names = append(names, name)
	}
	sort.Strings(names)
	var counterRows [][]string
	for _, name := range names {
		counterRows = append(counterRows, []string{name, strconv.FormatUint(st.Counters[name], 10)})
	}
	b.WriteString(renderTable([]string{"Counter", "Value"}, counterRows))
	return b.String()
}
