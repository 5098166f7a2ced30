package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	apihttp "github.com/codescan-io/lintbridge/internal/api/http"
	"github.com/codescan-io/lintbridge/internal/client"
	"github.com/codescan-io/lintbridge/internal/config"
	"github.com/codescan-io/lintbridge/internal/procutil"
)

const requestTimeout = 5 * time.Second

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, control server and subscription state",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)
	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	state, err := newClient(cmd).State(ctx)
	if err != nil {
		return out.Error("Failed to fetch daemon status", err)
	}
	if out.jsonMode {
		return out.Print(state)
	}

	w := tabwriter.NewWriter(out.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Version:\t%s\n", state.Version)
	fmt.Fprintf(w, "IDE:\t%s\n", state.IDE)
	fmt.Fprintf(w, "Uptime:\t%s\n", time.Since(state.StartedAt).Round(time.Second))
	control := state.Control.State
	if state.Control.Port > 0 {
		control = fmt.Sprintf("%s on 127.0.0.1:%d", control, state.Control.Port)
	}
	if !state.Control.Enabled {
		control += " (disabled)"
	}
	fmt.Fprintf(w, "Control server:\t%s\n", control)
	notifications := "off"
	if state.Notifications.Enabled {
		notifications = fmt.Sprintf("on, every %s, %d registered, %d polls",
			state.Notifications.PollInterval, state.Notifications.Registrations, state.Notifications.Polls)
	}
	fmt.Fprintf(w, "Notifications:\t%s\n", notifications)
	if err := w.Flush(); err != nil {
		return err
	}

	if len(state.Projects) == 0 {
		return nil
	}
	fmt.Fprintln(out.out)
	w = tabwriter.NewWriter(out.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROJECT\tOPEN\tCONNECTION\tSUBSCRIBED\tREGISTERED\tLAST POLL")
	for _, p := range state.Projects {
		fmt.Fprintf(w, "%s\t%t\t%s\t%t\t%t\t%s\n", p.Name, p.Open, dash(p.Connection), p.Subscribed, p.Registered, dash(p.LastPoll))
	}
	return w.Flush()
}

func newWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream alerts, hotspot requests and control server changes",
		Args:  cobra.NoArgs,
		RunE:  runWatch,
	}
}

func runWatch(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := newClient(cmd).Events(ctx, func(entry apihttp.StreamEntry) error {
		if out.jsonMode {
			return out.Print(entry)
		}
		return out.Print(describeEntry(entry))
	})
	if err != nil {
		return out.Error("Event stream failed", err)
	}
	return nil
}

func describeEntry(e apihttp.StreamEntry) string {
	ts := e.Timestamp.Local().Format(time.TimeOnly)
	switch e.Type {
	case apihttp.StreamAlert:
		if e.Alert == nil {
			break
		}
		a := e.Alert
		return fmt.Sprintf("%s [%s] %s: %s (alert %s, project %s)", ts, a.Brand, a.Category, a.Message, a.ID, a.Project)
	case apihttp.StreamAlertState:
		if e.Reason != "" {
			return fmt.Sprintf("%s alert %s %s: %s", ts, e.AlertID, e.State, e.Reason)
		}
		return fmt.Sprintf("%s alert %s %s", ts, e.AlertID, e.State)
	case apihttp.StreamHotspot:
		if e.Hotspot == nil {
			break
		}
		h := e.Hotspot
		return fmt.Sprintf("%s show hotspot %s in %s (%s:%d) %s", ts, h.HotspotKey, h.ProjectKey, h.Component, h.Line, h.Message)
	case apihttp.StreamHotspotFailed:
		if e.Hotspot == nil {
			break
		}
		return fmt.Sprintf("%s hotspot %s could not be shown: %s", ts, e.Hotspot.HotspotKey, e.Hotspot.Error)
	case apihttp.StreamControl:
		if e.Port > 0 {
			return fmt.Sprintf("%s control server %s on port %d", ts, e.State, e.Port)
		}
		return fmt.Sprintf("%s control server %s", ts, e.State)
	}
	return fmt.Sprintf("%s %s", ts, e.Type)
}

func newPollCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Poll servers for events now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := newOutputFormatter(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			if err := newClient(cmd).PollNow(ctx); err != nil {
				return out.Error("Failed to trigger poll", err)
			}
			return out.Success("Poll requested", nil)
		},
	}
}

func newHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Query the daemon health socket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := newOutputFormatter(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			statuses, err := newClient(cmd).Health(ctx)
			if err != nil {
				return out.Error("Health check failed", err)
			}
			if out.jsonMode {
				return out.Print(statuses)
			}
			w := tabwriter.NewWriter(out.out, 0, 0, 2, ' ', 0)
			for _, service := range client.HealthServices {
				name := service
				if name == "" {
					name = "daemon"
				}
				fmt.Fprintf(w, "%s\t%s\n", name, statuses[service])
			}
			return w.Flush()
		},
	}
}

func newTelemetryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "telemetry",
		Short: "Show usage counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := newOutputFormatter(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			counters, err := newClient(cmd).Telemetry(ctx)
			if err != nil {
				return out.Error("Failed to fetch telemetry", err)
			}
			if out.jsonMode {
				return out.Print(counters)
			}
			names := make([]string, 0, len(counters))
			for name := range counters {
				names = append(names, name)
			}
			sort.Strings(names)
			w := tabwriter.NewWriter(out.out, 0, 0, 2, ' ', 0)
			for _, name := range names {
				fmt.Fprintf(w, "%s\t%d\n", name, counters[name])
			}
			return w.Flush()
		},
	}
}

func newStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon",
		Args:  cobra.NoArgs,
		RunE:  daemonStop,
	}
}

func daemonStop(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)
	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	apiErr := newClient(cmd).ShutdownDaemon(ctx)
	if apiErr == nil {
		return out.Success("Shutdown request sent to daemon", map[string]any{"method": "api"})
	}

	paths := config.GetInstancePaths(instanceName(cmd))
	pid, ok := procutil.Running(paths.Lock)
	if !ok {
		if errors.Is(apiErr, client.ErrDaemonUnavailable) {
			return out.Error("Daemon is not running", nil)
		}
		return out.Error("Failed to stop daemon", apiErr)
	}
	if err := procutil.TerminateByPID(pid); err != nil {
		return out.Error("Failed to signal daemon", err)
	}
	return out.Success("Sent termination signal to daemon", map[string]any{
		"pid":          pid,
		"method":       "signal",
		"api_fallback": true,
	})
}
