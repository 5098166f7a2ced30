package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/codescan-io/lintbridge/internal/client"
	"github.com/codescan-io/lintbridge/internal/config"
	configstore "github.com/codescan-io/lintbridge/internal/config/store"
	lbversion "github.com/codescan-io/lintbridge/internal/version"
)

// OutputFormatter handles output in JSON or human-readable format
type OutputFormatter struct {
	jsonMode bool
	out      io.Writer
	errOut   io.Writer
}

// newOutputFormatter creates a new formatter based on the command's --json flag
func newOutputFormatter(cmd *cobra.Command) *OutputFormatter {
	jsonMode, _ := cmd.Flags().GetBool("json")
	return &OutputFormatter{jsonMode: jsonMode, out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr()}
}

// Print outputs data in the appropriate format
func (f *OutputFormatter) Print(data any) error {
	if s, ok := data.(string); ok && !f.jsonMode {
		fmt.Fprintln(f.out, s)
		return nil
	}
	jsonBytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Fprintln(f.out, string(jsonBytes))
	return nil
}

// Success outputs a success message
func (f *OutputFormatter) Success(message string, data map[string]any) error {
	if f.jsonMode {
		output := map[string]any{
			"success": true,
			"message": message,
		}
		for k, v := range data {
			output[k] = v
		}
		return f.Print(output)
	}
	fmt.Fprintln(f.out, message)
	return nil
}

// Error outputs an error message
func (f *OutputFormatter) Error(message string, err error) error {
	if f.jsonMode {
		output := map[string]any{
			"success": false,
			"error":   message,
		}
		if err != nil {
			output["details"] = err.Error()
		}
		jsonBytes, _ := json.MarshalIndent(output, "", "  ")
		fmt.Fprintln(f.errOut, string(jsonBytes))
	} else if err != nil {
		fmt.Fprintf(f.errOut, "%s: %v\n", message, err)
	} else {
		fmt.Fprintln(f.errOut, message)
	}
	if err == nil {
		return fmt.Errorf("%s", message)
	}
	return fmt.Errorf("%s: %w", message, err)
}

func instanceName(cmd *cobra.Command) string {
	name, _ := cmd.Flags().GetString("instance")
	if name == "" {
		return config.DefaultInstance
	}
	return name
}

// openStore opens the instance configuration store directly. The daemon
// picks up writes through its store watcher.
func openStore(cmd *cobra.Command) (*configstore.Store, error) {
	return configstore.Open(configstore.Options{InstanceName: instanceName(cmd)})
}

func newClient(cmd *cobra.Command) *client.Client {
	return client.New(instanceName(cmd))
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lintbridge",
		Short: "lintbridge - manage the IDE bridge daemon",
		Long: `lintbridge manages server connections and project bindings, and talks to
the running lintbridge daemon: its loopback control server and the server
notification alerts it raises.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.Version = lbversion.String()
	rootCmd.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")

	rootCmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	rootCmd.PersistentFlags().String("instance", config.DefaultInstance, "Instance name")

	rootCmd.AddCommand(
		newConnectionsCommand(),
		newProjectsCommand(),
		newModulesCommand(),
		newSettingsCommand(),
		newStatusCommand(),
		newWatchCommand(),
		newAlertsCommand(),
		newPollCommand(),
		newHealthCommand(),
		newTelemetryCommand(),
		newStopCommand(),
		newVersionCommand(),
	)
	return rootCmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
