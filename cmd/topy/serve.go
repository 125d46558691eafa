package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/topy/internal/autodump"
	"github.com/verte-zerg/topy/internal/command"
	"github.com/verte-zerg/topy/internal/config"
	"github.com/verte-zerg/topy/internal/field"
	"github.com/verte-zerg/topy/internal/logger"
	"github.com/verte-zerg/topy/internal/persist"
	"github.com/verte-zerg/topy/internal/replication"
	"github.com/verte-zerg/topy/internal/schema"
	"github.com/verte-zerg/topy/internal/server"
	"github.com/verte-zerg/topy/internal/stats"
	"github.com/verte-zerg/topy/internal/store"
	"github.com/verte-zerg/topy/internal/timer"
	"github.com/verte-zerg/topy/internal/users"
)

// shutdownTimeout bounds the final dump after a signal.
const shutdownTimeout = 5 * time.Minute

type serveFlags struct {
	address         string
	port            int
	udpAddress      string
	udpPort         int
	slaveAddress    string
	slavePort       int
	restore         string
	restoreAutodump bool
	autodumpTarget  string
	autodumpDelay   string
	history         string
	pidfile         string
	verbose         bool
	idType          string
	metricsAddress  string
}

var serveOpts serveFlags

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the server (default)",
		Args:  cobra.NoArgs,
		RunE:  runServeCmd,
	}
	addServeFlags(cmd)
	return cmd
}

func addServeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&serveOpts.address, "address", "a", server.DefaultAddress, "IP address of the tcp server")
	f.IntVarP(&serveOpts.port, "port", "p", server.DefaultPort, "port of the tcp server")
	f.StringVarP(&serveOpts.udpAddress, "udp-address", "A", "", "IP address of the udp server, empty disables it")
	f.IntVarP(&serveOpts.udpPort, "udp-port", "P", 0, "port of the udp server")
	f.StringVarP(&serveOpts.slaveAddress, "slave-address", "z", "", "IP address of the slave server")
	f.IntVarP(&serveOpts.slavePort, "slave-port", "Z", 0, "port of the slave server")
	f.StringVarP(&serveOpts.restore, "restore", "r", "", "restore memory from a dump file")
	f.BoolVarP(&serveOpts.restoreAutodump, "restore-autodump", "R", false, "restore memory from the autodump target")
	f.StringVarP(&serveOpts.autodumpTarget, "autodump-target", "T", "", "path of the autodump target, empty disables autodump")
	f.StringVarP(&serveOpts.autodumpDelay, "autodump-delay", "D", "1h", "pause after each autodump (s, m, h, d suffixes)")
	f.StringVar(&serveOpts.history, "history", config.DefaultHistoryPath(), "dump history database")
	f.StringVarP(&serveOpts.pidfile, "pidfile", "i", "", "write the pid of the process to the given file")
	f.BoolVarP(&serveOpts.verbose, "verbose", "v", false, "turn on verbose output")
	f.StringVar(&serveOpts.idType, "id-type", "int", "user id type: int, int64 or string")
	f.StringVar(&serveOpts.metricsAddress, "metrics-address", "", "serve Prometheus metrics on host:port")
}

func applyServeConfig(cmd *cobra.Command, fileCfg config.FileConfig) {
	applyStringConfig(cmd, "address", &serveOpts.address, fileCfg.Server.Address)
	applyIntConfig(cmd, "port", &serveOpts.port, fileCfg.Server.Port)
	applyStringConfig(cmd, "udp-address", &serveOpts.udpAddress, fileCfg.Server.UDPAddress)
	applyIntConfig(cmd, "udp-port", &serveOpts.udpPort, fileCfg.Server.UDPPort)
	applyStringConfig(cmd, "id-type", &serveOpts.idType, fileCfg.Server.IDType)
	applyStringConfig(cmd, "pidfile", &serveOpts.pidfile, fileCfg.Server.Pidfile)
	applyStringConfig(cmd, "metrics-address", &serveOpts.metricsAddress, fileCfg.Server.MetricsAddress)
	applyStringConfig(cmd, "slave-address", &serveOpts.slaveAddress, fileCfg.Replication.SlaveAddress)
	applyIntConfig(cmd, "slave-port", &serveOpts.slavePort, fileCfg.Replication.SlavePort)
	applyStringConfig(cmd, "autodump-target", &serveOpts.autodumpTarget, fileCfg.Autodump.Target)
	applyStringConfig(cmd, "autodump-delay", &serveOpts.autodumpDelay, fileCfg.Autodump.Delay)
	applyStringConfig(cmd, "history", &serveOpts.history, fileCfg.Autodump.History)
	applyBoolConfig(cmd, "verbose", &serveOpts.verbose, fileCfg.Log.Verbose)
}

// populationOptions builds the schema and field environment shared by serve
// and check.
func populationOptions(fileCfg config.FileConfig, idType string, onOverflow func(field.Kind)) (persist.Options, error) {
	kind, ok := users.ParseIDKind(idType)
	if !ok {
		return persist.Options{}, fmt.Errorf("invalid id type %q", idType)
	}
	s, err := schema.FromDefs(fileCfg.FieldPairs())
	if err != nil {
		return persist.Options{}, fmt.Errorf("error in fields definition: %w", err)
	}
	return persist.Options{
		IDKind: kind,
		Schema: s,
		Env:    &field.Env{Timer: timer.New(nil), OnOverflow: onOverflow},
	}, nil
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyServeConfig(cmd, fileCfg)

	log, err := logger.New(serveOpts.verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	delay := autodump.ParseDelay(serveOpts.autodumpDelay)
	if delay == 0 {
		delay = autodump.DefaultDelay
	}

	var st *persist.State
	counters := stats.NewCounters(time.Now(), func() int {
		if st == nil {
			return 0
		}
		return st.Users.Count()
	})
	opts, err := populationOptions(fileCfg, serveOpts.idType, func(k field.Kind) {
		counters.Overflow(k.String())
	})
	if err != nil {
		return err
	}

	if serveOpts.pidfile != "" {
		if err := writePID(serveOpts.pidfile); err != nil {
			log.Error("could not write pidfile", "path", serveOpts.pidfile, "error", err)
		}
	}

	restorePath := serveOpts.restore
	if serveOpts.restoreAutodump {
		restorePath = serveOpts.autodumpTarget
	}
	if restorePath != "" {
		log.Info("start restoring data", "path", restorePath)
		restored, warnings, err := persist.Restore(restorePath, opts)
		if err != nil {
			log.Error("restore has failed", "path", restorePath, "error", err)
			return fmt.Errorf("failed to restore %s: %w", restorePath, err)
		}
		for _, w := range warnings {
			log.Warn("restore warning", "message", w)
		}
		st = restored
		log.Info("restore finished", "users", st.Users.Count())
	} else {
		st = persist.NewState(opts)
	}

	history, err := store.Open(serveOpts.history)
	if err != nil {
		return fmt.Errorf("failed to open history db: %w", err)
	}
	defer func() {
		if cerr := history.Close(); cerr != nil {
			log.Error("failed to close history db", "error", cerr)
		}
	}()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	ctx, halt := context.WithCancel(sigCtx)
	defer halt()

	dumps := autodump.New(autodump.Options{
		Dump:     autodump.StateDumper(st),
		History:  history,
		Counters: counters,
		Logger:   log.With("component", "autodump"),
		Enabled:  serveOpts.autodumpTarget != "",
		Target:   serveOpts.autodumpTarget,
		Delay:    delay,
	})
	if err := dumps.LoadLast(ctx); err != nil {
		log.Warn("could not load the last autodump run", "error", err)
	}
	background := []server.Runner{dumps}

	var replicator command.Replicator
	if serveOpts.slaveAddress != "" && serveOpts.slavePort != 0 {
		sender, err := replication.Dial(serveOpts.slaveAddress, serveOpts.slavePort, log.With("component", "replication"))
		if err != nil {
			return err
		}
		replicator = sender
		background = append(background, sender)
	}

	in := command.New(command.Config{
		State:      st,
		Timer:      opts.Env.Timer,
		Counters:   counters,
		Dumper:     dumps,
		Autodump:   dumps,
		Replicator: replicator,
		Halt: func() {
			log.Info("halt requested")
			halt()
		},
		Logger:  log,
		Version: version,
		// Workers finish their dumps after a stop.
		Context: context.WithoutCancel(ctx),
	})

	srv := server.New(server.Options{
		Address:        serveOpts.address,
		Port:           serveOpts.port,
		UDPAddress:     udpAddress(serveOpts.udpAddress, serveOpts.udpPort),
		UDPPort:        serveOpts.udpPort,
		MetricsAddress: serveOpts.metricsAddress,
		Interpreter:    in,
		Counters:       counters,
		Background:     background,
		Logger:         log,
	})
	runErr := srv.Run(ctx)

	if sigCtx.Err() != nil {
		log.Info("received stop signal")
		finalCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		dumps.Shutdown(finalCtx)
		cancel()
	}
	log.Info("topy was stopped")
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// udpAddress keeps UDP off unless both the address and the port are set.
func udpAddress(address string, port int) string {
	if port == 0 {
		return ""
	}
	return address
}

func writePID(path string) error {
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("failed to write pidfile: %w", err)
	}
	return nil
}
