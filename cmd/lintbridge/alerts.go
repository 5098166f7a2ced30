package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/codescan-io/lintbridge/internal/client"
	"github.com/codescan-io/lintbridge/internal/sanitize"
)

func newAlertsCommand() *cobra.Command {
	alertsCmd := &cobra.Command{
		Use:   "alerts",
		Short: "List and act on server notification alerts",
		Args:  cobra.NoArgs,
		RunE:  alertsList,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List alerts still pending",
		Args:  cobra.NoArgs,
		RunE:  alertsList,
	}

	openCmd := &cobra.Command{
		Use:   "open <id>",
		Short: "Open the alert's link in the browser",
		Args:  cobra.ExactArgs(1),
		RunE:  alertsOpen,
	}

	configureCmd := &cobra.Command{
		Use:   "configure <id>",
		Short: "Show the notification settings of the alert's connection",
		Args:  cobra.ExactArgs(1),
		RunE:  alertsConfigure,
	}

	alertsCmd.AddCommand(listCmd, openCmd, configureCmd)
	return alertsCmd
}

func alertsList(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)
	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	alerts, err := newClient(cmd).Alerts(ctx)
	if err != nil {
		return out.Error("Failed to list alerts", err)
	}
	if out.jsonMode {
		return out.Print(map[string]any{"alerts": alerts})
	}
	if len(alerts) == 0 {
		return out.Print("No pending alerts")
	}
	w := tabwriter.NewWriter(out.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tRECEIVED\tPROJECT\tSOURCE\tCATEGORY\tMESSAGE")
	for _, a := range alerts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", a.ID, a.ReceivedAt.Local().Format("15:04:05"),
			a.Project, a.Brand, a.Category, sanitize.Ellipsize(a.Message, 60))
	}
	return w.Flush()
}

func alertsOpen(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	if err := newClient(cmd).OpenAlert(ctx, args[0]); err != nil {
		if errors.Is(err, client.ErrAlertNotFound) {
			return out.Error("Alert not found or already handled", nil)
		}
		return out.Error("Failed to open alert", err)
	}
	return out.Success("Alert opened in browser", map[string]any{"id": args[0]})
}

func alertsConfigure(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	target, err := newClient(cmd).ConfigureAlert(ctx, args[0])
	switch {
	case errors.Is(err, client.ErrAlertNotFound):
		return out.Error("Alert not found or already handled", nil)
	case errors.Is(err, client.ErrConnectionRemoved):
		return out.Error("The connection of this alert was removed", nil)
	case err != nil:
		return out.Error("Failed to configure alert", err)
	}
	if out.jsonMode {
		return out.Print(target)
	}
	return out.Print(fmt.Sprintf("Connection %s (%s)\nTo stop these alerts run:\n  lintbridge connections notifications %s off",
		target.Connection, target.HostURL, target.Connection))
}
