package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	lbversion "github.com/codescan-io/lintbridge/internal/version"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show client and daemon versions",
		RunE:  runVersion,
	}
}

func runVersion(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)
	clientVersion := lbversion.String()

	ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
	defer cancel()

	state, daemonErr := newClient(cmd).State(ctx)
	daemonReachable := daemonErr == nil
	daemonVersion := state.Version

	if out.jsonMode {
		data := map[string]any{
			"client": clientVersion,
		}
		if daemonReachable {
			if daemonVersion != "" {
				data["daemon"] = daemonVersion
			} else {
				data["daemon"] = "unknown"
			}
			if w := lbversion.CheckVersionMismatch(daemonVersion); w != "" {
				data["mismatch"] = true
				data["warning"] = w
			}
		} else {
			data["daemon"] = nil
			data["daemon_error"] = daemonErr.Error()
		}
		return out.Print(data)
	}

	fmt.Fprintf(out.out, "Client: %s\n", lbversion.FormatVersion(clientVersion))
	if daemonReachable {
		if daemonVersion != "" {
			fmt.Fprintf(out.out, "Daemon: %s\n", lbversion.FormatVersion(daemonVersion))
		} else {
			fmt.Fprintln(out.out, "Daemon: running (version unknown)")
		}
		if w := lbversion.CheckVersionMismatch(daemonVersion); w != "" {
			fmt.Fprintln(out.out, w)
		}
	} else {
		fmt.Fprintf(out.out, "Daemon: unavailable (%v)\n", daemonErr)
	}
	return nil
}
