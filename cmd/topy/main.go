// Package main provides the CLI entrypoint for topy.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/topy/internal/autodump"
	"github.com/verte-zerg/topy/internal/config"
	"github.com/verte-zerg/topy/internal/server"
)

const version = "1.0.0"

var configPath string

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "topy",
		Short:         "In-memory user stats and ranking server",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runServeCmd,
	}
	rootCmd.SetVersionTemplate("Topy {{.Version}}\n")
	rootCmd.PersistentFlags().StringVarP(&configPath, "conf", "c", "", "path of the configuration file")
	addServeFlags(rootCmd)

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newCLICmd())
	rootCmd.AddCommand(newMonitorCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() (config.FileConfig, error) {
	cfg, err := config.LoadConfig(resolveConfigPath())
	if err != nil {
		return config.FileConfig{}, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := resolveConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# topy configuration
# Uncomment a value to enable it. CLI flags override config values.

[server]
# address = %q           # TCP listen address
# port = %d                  # TCP listen port
# udp-address = ""              # UDP listen address, empty disables UDP
# udp-port = %d              # UDP listen port
# id-type = "int"               # int, int64 or string
# pidfile = ""                  # Write the process id to this file
# metrics-address = ""          # Serve Prometheus /metrics on host:port

[replication]
# slave-address = ""            # Forward updates to this slave over UDP
# slave-port = 0

[autodump]
# target = ""                   # Dump file, empty disables autodump
# delay = "%dh"                  # Pause between dumps (s, m, h, d suffixes)
# history = %q

[log]
# verbose = false

# Fields defined at start. Types: int, marks, events, log, ulog.
# [[fields]]
# name = "visits"
# type = "events"
`,
		server.DefaultAddress,
		server.DefaultPort,
		server.DefaultPort,
		autodump.DefaultDelay/3600,
		config.DefaultHistoryPath(),
	)
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		return
	}
}

func logErrln(args ...any) {
	if _, err := fmt.Fprintln(os.Stderr, args...); err != nil {
		return
	}
}
