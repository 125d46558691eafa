package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/topy/internal/client"
	"github.com/verte-zerg/topy/internal/config"
	"github.com/verte-zerg/topy/internal/model"
	"github.com/verte-zerg/topy/internal/monitor"
	"github.com/verte-zerg/topy/internal/persist"
	"github.com/verte-zerg/topy/internal/server"
	"github.com/verte-zerg/topy/internal/stats"
	"github.com/verte-zerg/topy/internal/store"
)

var (
	remoteAddress string
	remotePort    int

	monitorInterval time.Duration

	checkIDType string

	historyPath   string
	historySince  string
	historyLast   int
	historyTarget string
	historyFailed bool
	historyPrune  int
)

func addRemoteFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&remoteAddress, "address", "a", "127.0.0.1", "address of the server")
	cmd.Flags().IntVarP(&remotePort, "port", "p", server.DefaultPort, "port of the server")
}

func dialRemote(ctx context.Context) (*client.Client, string, error) {
	addr := net.JoinHostPort(remoteAddress, strconv.Itoa(remotePort))
	c, err := client.Dial(ctx, addr)
	if err != nil {
		return nil, addr, err
	}
	return c, addr, nil
}

func newCLICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cli",
		Short: "Send commands to a running server",
		Args:  cobra.NoArgs,
		RunE:  runCLICmd,
	}
	addRemoteFlags(cmd)
	return cmd
}

func runCLICmd(cmd *cobra.Command, _ []string) error {
	c, _, err := dialRemote(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil {
			logErrf("failed to close connection: %v\n", cerr)
		}
	}()

	if !client.IsTerminal(os.Stdin) {
		return client.REPL(c, client.NewScanner(os.Stdin), cmd.OutOrStdout())
	}
	t, err := client.NewTerminal(os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := t.Close(); rerr != nil {
			logErrf("failed to restore terminal: %v\n", rerr)
		}
	}()
	return client.REPL(c, t, t)
}

func newMonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Live dashboard of a running server",
		Args:  cobra.NoArgs,
		RunE:  runMonitorCmd,
	}
	addRemoteFlags(cmd)
	cmd.Flags().DurationVar(&monitorInterval, "interval", monitor.DefaultInterval, "poll interval")
	return cmd
}

func runMonitorCmd(cmd *cobra.Command, _ []string) error {
	c, addr, err := dialRemote(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil {
			logErrf("failed to close connection: %v\n", cerr)
		}
	}()

	program := tea.NewProgram(monitor.NewModel(c, monitorInterval, addr), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run monitor TUI: %w", err)
	}
	return nil
}

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <dump>",
		Short: "Validate a dump file against the configured fields",
		Args:  cobra.ExactArgs(1),
		RunE:  runCheckCmd,
	}
	cmd.Flags().StringVar(&checkIDType, "id-type", "int", "user id type: int, int64 or string")
	return cmd
}

func runCheckCmd(cmd *cobra.Command, args []string) error {
	fileCfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyStringConfig(cmd, "id-type", &checkIDType, fileCfg.Server.IDType)

	opts, err := populationOptions(fileCfg, checkIDType, nil)
	if err != nil {
		return err
	}
	st, warnings, err := persist.Restore(args[0], opts)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	for _, w := range warnings {
		logErrln("warning:", w)
	}
	out := cmd.OutOrStdout()
	if _, err := fmt.Fprintf(out, "%s: %s dump, %d fields, %d groups, %d users\n",
		args[0], persist.FormatFor(args[0]), st.Schema.Len(), st.Groups.Len(), st.Users.Count()); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded dumps",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().StringVar(&historyPath, "history", config.DefaultHistoryPath(), "dump history database")
	cmd.Flags().StringVar(&historySince, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&historyLast, "last", 20, "limit to the last N dumps, 0 for all")
	cmd.Flags().StringVar(&historyTarget, "target", "", "only dumps written to this path")
	cmd.Flags().BoolVar(&historyFailed, "failed", false, "only failed dumps")
	cmd.Flags().IntVar(&historyPrune, "prune", 0, "delete all but the N most recent dumps first, 0 keeps everything")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyStringConfig(cmd, "history", &historyPath, fileCfg.Autodump.History)

	filter := model.HistoryFilter{Last: historyLast, Target: historyTarget, Failed: historyFailed}
	if historySince != "" {
		parsed, err := time.ParseInLocation("2006-01-02", historySince, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
		filter.Since = &parsed
	}

	st, err := store.Open(historyPath)
	if err != nil {
		return fmt.Errorf("failed to open history db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close history db: %v\n", cerr)
		}
	}()

	if historyPrune > 0 {
		n, err := st.Prune(cmd.Context(), historyPrune)
		if err != nil {
			return fmt.Errorf("failed to prune history: %w", err)
		}
		logErrf("Pruned %d dumps.\n", n)
	}

	runs, err := st.ListDumps(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("failed to list dumps: %w", err)
	}
	if len(runs) == 0 {
		logErrln("No dumps recorded yet.")
		return nil
	}
	return stats.RenderHistory(cmd.OutOrStdout(), runs, time.Local)
}
