package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/codescan-io/lintbridge/internal/config"
	configstore "github.com/codescan-io/lintbridge/internal/config/store"
	"github.com/codescan-io/lintbridge/internal/validate"
)

const storeTimeout = 5 * time.Second

func withStore(cmd *cobra.Command, fn func(ctx context.Context, s *configstore.Store) error) error {
	s, err := openStore(cmd)
	if err != nil {
		return newOutputFormatter(cmd).Error("Failed to open config store", err)
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), storeTimeout)
	defer cancel()
	return fn(ctx, s)
}

func newConnectionsCommand() *cobra.Command {
	connCmd := &cobra.Command{
		Use:     "connections",
		Aliases: []string{"conn"},
		Short:   "Manage server connections",
	}

	addCmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add or update a server connection",
		Args:  cobra.ExactArgs(1),
		RunE:  connectionsAdd,
	}
	addCmd.Flags().String("url", "", "Server base URL")
	addCmd.Flags().String("token", "", "Authentication token")
	addCmd.Flags().Bool("ask-token", false, "Read the token from the terminal without echo")
	addCmd.Flags().String("org", "", "Organization key (cloud servers)")
	addCmd.Flags().Bool("cloud", false, "Connection targets the hosted service")
	addCmd.Flags().Bool("disable-notifications", false, "Do not poll this connection for server events")
	addCmd.MarkFlagRequired("url")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List server connections",
		Args:  cobra.NoArgs,
		RunE:  connectionsList,
	}

	removeCmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a server connection",
		Args:  cobra.ExactArgs(1),
		RunE:  connectionsRemove,
	}

	notifyCmd := &cobra.Command{
		Use:       "notifications <name> on|off",
		Short:     "Turn server event notifications on or off for a connection",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"on", "off"},
		RunE:      connectionsNotifications,
	}

	connCmd.AddCommand(addCmd, listCmd, removeCmd, notifyCmd)
	return connCmd
}

func connectionsNotifications(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	var disabled bool
	switch strings.ToLower(args[1]) {
	case "on":
	case "off":
		disabled = true
	default:
		return out.Error(fmt.Sprintf("Expected on or off, got %q", args[1]), nil)
	}
	return withStore(cmd, func(ctx context.Context, s *configstore.Store) error {
		conn, err := s.GetConnection(ctx, args[0])
		if err != nil {
			return out.Error("Unknown connection", err)
		}
		conn.NotificationsDisabled = disabled
		if err := s.SaveConnection(ctx, conn); err != nil {
			return out.Error("Failed to save connection", err)
		}
		return out.Success(fmt.Sprintf("Notifications for %s turned %s", conn.Name, strings.ToLower(args[1])), map[string]any{
			"name":                   conn.Name,
			"notifications_disabled": disabled,
		})
	})
}

func connectionsAdd(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	url, _ := cmd.Flags().GetString("url")
	token, _ := cmd.Flags().GetString("token")
	org, _ := cmd.Flags().GetString("org")
	cloud, _ := cmd.Flags().GetBool("cloud")
	disabled, _ := cmd.Flags().GetBool("disable-notifications")

	if err := validate.Name(args[0]); err != nil {
		return out.Error("Invalid connection name", err)
	}
	hostURL, err := validate.ServerURL(url)
	if err != nil {
		return out.Error("Invalid server URL", err)
	}
	if ask, _ := cmd.Flags().GetBool("ask-token"); ask {
		if token != "" {
			return out.Error("Use either --token or --ask-token", nil)
		}
		if token, err = readToken(cmd); err != nil {
			return out.Error("Failed to read token", err)
		}
	}

	conn := configstore.ServerConnection{
		Name:                  args[0],
		HostURL:               hostURL,
		Token:                 token,
		Organization:          org,
		IsCloud:               cloud,
		NotificationsDisabled: disabled,
	}
	return withStore(cmd, func(ctx context.Context, s *configstore.Store) error {
		if err := s.SaveConnection(ctx, conn); err != nil {
			return out.Error("Failed to save connection", err)
		}
		return out.Success(fmt.Sprintf("Connection %s saved", conn.Name), map[string]any{"name": conn.Name})
	})
}

// readToken prompts on the controlling terminal, or reads one line when
// stdin is not a terminal.
func readToken(cmd *cobra.Command) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), "Token: ")
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(raw)), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func connectionsList(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)
	return withStore(cmd, func(ctx context.Context, s *configstore.Store) error {
		conns, err := s.ListConnections(ctx)
		if err != nil {
			return out.Error("Failed to list connections", err)
		}
		if out.jsonMode {
			return out.Print(map[string]any{"connections": conns})
		}
		if len(conns) == 0 {
			return out.Print("No connections configured")
		}
		w := tabwriter.NewWriter(out.out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tURL\tKIND\tNOTIFICATIONS")
		for _, c := range conns {
			kind := "self-hosted"
			if c.IsCloud {
				kind = "cloud"
			}
			notifications := "on"
			if c.NotificationsDisabled {
				notifications = "off"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Name, c.HostURL, kind, notifications)
		}
		return w.Flush()
	})
}

func connectionsRemove(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	return withStore(cmd, func(ctx context.Context, s *configstore.Store) error {
		if err := s.DeleteConnection(ctx, args[0]); err != nil {
			return out.Error("Failed to remove connection", err)
		}
		return out.Success(fmt.Sprintf("Connection %s removed", args[0]), map[string]any{"name": args[0]})
	})
}

func newProjectsCommand() *cobra.Command {
	projCmd := &cobra.Command{
		Use:   "projects",
		Short: "Manage local projects and their server bindings",
	}

	addCmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add or update a project",
		Args:  cobra.ExactArgs(1),
		RunE:  projectsAdd,
	}
	addCmd.Flags().String("connection", "", "Connection the project is bound to")
	addCmd.Flags().String("key", "", "Remote project key")
	addCmd.Flags().Bool("open", true, "Mark the project as open in the IDE")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE:  projectsList,
	}

	openCmd := &cobra.Command{
		Use:   "open <name>",
		Short: "Mark a project as open",
		Args:  cobra.ExactArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error { return projectsSetOpen(cmd, args[0], true) },
	}
	closeCmd := &cobra.Command{
		Use:   "close <name>",
		Short: "Mark a project as closed",
		Args:  cobra.ExactArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error { return projectsSetOpen(cmd, args[0], false) },
	}

	removeCmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a project and its modules",
		Args:  cobra.ExactArgs(1),
		RunE:  projectsRemove,
	}

	projCmd.AddCommand(addCmd, listCmd, openCmd, closeCmd, removeCmd)
	return projCmd
}

func projectsAdd(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	connection, _ := cmd.Flags().GetString("connection")
	key, _ := cmd.Flags().GetString("key")
	open, _ := cmd.Flags().GetBool("open")

	if err := validate.Name(args[0]); err != nil {
		return out.Error("Invalid project name", err)
	}
	if (connection == "") != (key == "") {
		return out.Error("Binding requires both --connection and --key", nil)
	}

	project := configstore.Project{Name: args[0], Open: open, ConnectionName: connection, ProjectKey: key}
	return withStore(cmd, func(ctx context.Context, s *configstore.Store) error {
		if connection != "" {
			if _, err := s.GetConnection(ctx, connection); err != nil {
				return out.Error("Unknown connection", err)
			}
		}
		if err := s.SaveProject(ctx, project); err != nil {
			return out.Error("Failed to save project", err)
		}
		return out.Success(fmt.Sprintf("Project %s saved", project.Name), map[string]any{
			"name":  project.Name,
			"bound": project.Bound(),
		})
	})
}

func projectsList(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)
	return withStore(cmd, func(ctx context.Context, s *configstore.Store) error {
		projects, err := s.ListProjects(ctx)
		if err != nil {
			return out.Error("Failed to list projects", err)
		}
		if out.jsonMode {
			return out.Print(map[string]any{"projects": projects})
		}
		if len(projects) == 0 {
			return out.Print("No projects configured")
		}
		w := tabwriter.NewWriter(out.out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tOPEN\tCONNECTION\tPROJECT KEY")
		for _, p := range projects {
			fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", p.Name, p.Open, dash(p.ConnectionName), dash(p.ProjectKey))
		}
		return w.Flush()
	})
}

func projectsSetOpen(cmd *cobra.Command, name string, open bool) error {
	out := newOutputFormatter(cmd)
	state := "closed"
	if open {
		state = "opened"
	}
	return withStore(cmd, func(ctx context.Context, s *configstore.Store) error {
		if err := s.SetProjectOpen(ctx, name, open); err != nil {
			return out.Error("Failed to update project", err)
		}
		return out.Success(fmt.Sprintf("Project %s %s", name, state), map[string]any{"name": name, "open": open})
	})
}

func projectsRemove(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	return withStore(cmd, func(ctx context.Context, s *configstore.Store) error {
		if err := s.DeleteProject(ctx, args[0]); err != nil {
			return out.Error("Failed to remove project", err)
		}
		return out.Success(fmt.Sprintf("Project %s removed", args[0]), map[string]any{"name": args[0]})
	})
}

func newModulesCommand() *cobra.Command {
	modCmd := &cobra.Command{
		Use:   "modules",
		Short: "Manage project modules",
	}

	addCmd := &cobra.Command{
		Use:   "add <project> <module>",
		Short: "Add or update a module",
		Args:  cobra.ExactArgs(2),
		RunE:  modulesAdd,
	}
	addCmd.Flags().String("key", "", "Remote project key overriding the project binding")

	listCmd := &cobra.Command{
		Use:   "list <project>",
		Short: "List the modules of a project",
		Args:  cobra.ExactArgs(1),
		RunE:  modulesList,
	}

	removeCmd := &cobra.Command{
		Use:   "remove <project> <module>",
		Short: "Remove a module",
		Args:  cobra.ExactArgs(2),
		RunE:  modulesRemove,
	}

	modCmd.AddCommand(addCmd, listCmd, removeCmd)
	return modCmd
}

func modulesAdd(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	key, _ := cmd.Flags().GetString("key")
	if err := validate.Name(args[1]); err != nil {
		return out.Error("Invalid module name", err)
	}
	module := configstore.Module{Project: args[0], Name: args[1], ProjectKey: key}
	return withStore(cmd, func(ctx context.Context, s *configstore.Store) error {
		if err := s.SaveModule(ctx, module); err != nil {
			return out.Error("Failed to save module", err)
		}
		return out.Success(fmt.Sprintf("Module %s/%s saved", module.Project, module.Name), map[string]any{
			"project": module.Project,
			"name":    module.Name,
		})
	})
}

func modulesList(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	return withStore(cmd, func(ctx context.Context, s *configstore.Store) error {
		modules, err := s.ListModules(ctx, args[0])
		if err != nil {
			return out.Error("Failed to list modules", err)
		}
		if out.jsonMode {
			return out.Print(map[string]any{"modules": modules})
		}
		if len(modules) == 0 {
			return out.Print(fmt.Sprintf("Project %s has no modules", args[0]))
		}
		w := tabwriter.NewWriter(out.out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "MODULE\tPROJECT KEY")
		for _, m := range modules {
			fmt.Fprintf(w, "%s\t%s\n", m.Name, dash(m.ProjectKey))
		}
		return w.Flush()
	})
}

func modulesRemove(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	return withStore(cmd, func(ctx context.Context, s *configstore.Store) error {
		if err := s.DeleteModule(ctx, args[0], args[1]); err != nil {
			return out.Error("Failed to remove module", err)
		}
		return out.Success(fmt.Sprintf("Module %s/%s removed", args[0], args[1]), nil)
	})
}

func newSettingsCommand() *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change daemon settings",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings",
		Args:  cobra.NoArgs,
		RunE:  settingsShow,
	}

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting; a running daemon reloads it",
		Long: `Change one setting. Supported keys:
  ide.name, ide.version, ide.edition
  control.enabled, control.port_start, control.port_end
  notifications.enabled, notifications.poll_interval`,
		Args: cobra.ExactArgs(2),
		RunE: settingsSet,
	}

	settingsCmd.AddCommand(showCmd, setCmd)
	return settingsCmd
}

func settingsShow(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)
	settings, err := config.LoadSettings(config.GetInstancePaths(instanceName(cmd)).Settings)
	if err != nil {
		return out.Error("Failed to load settings", err)
	}
	if out.jsonMode {
		return out.Print(settings)
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return out.Error("Failed to render settings", err)
	}
	return out.Print(strings.TrimRight(string(data), "\n"))
}

func settingsSet(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	path := config.GetInstancePaths(instanceName(cmd)).Settings
	settings, err := config.LoadSettings(path)
	if err != nil {
		return out.Error("Failed to load settings", err)
	}
	if err := applySetting(&settings, args[0], args[1]); err != nil {
		return out.Error("Invalid setting", err)
	}
	if err := settings.Validate(); err != nil {
		return out.Error("Invalid setting", err)
	}
	if _, err := config.EnsureInstanceDirs(instanceName(cmd)); err != nil {
		return out.Error("Failed to prepare instance directories", err)
	}
	if err := config.WriteSettings(path, settings); err != nil {
		return out.Error("Failed to write settings", err)
	}
	return out.Success(fmt.Sprintf("%s set to %s", args[0], args[1]), map[string]any{"key": args[0], "value": args[1]})
}

func applySetting(s *config.Settings, key, value string) error {
	parseBool := func() (bool, error) { return strconv.ParseBool(value) }
	parseInt := func() (int, error) { return strconv.Atoi(value) }

	var err error
	switch key {
	case "ide.name":
		s.IDE.Name = value
	case "ide.version":
		s.IDE.Version = value
	case "ide.edition":
		s.IDE.Edition = value
	case "control.enabled":
		s.Control.Enabled, err = parseBool()
	case "control.port_start":
		s.Control.PortStart, err = parseInt()
	case "control.port_end":
		s.Control.PortEnd, err = parseInt()
	case "notifications.enabled":
		s.Notifications.Enabled, err = parseBool()
	case "notifications.poll_interval":
		s.Notifications.PollInterval, err = time.ParseDuration(value)
	default:
		return fmt.Errorf("unknown key %q", key)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

func dash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}
