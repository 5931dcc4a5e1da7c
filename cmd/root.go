// Package cmd wires the netemstate tools into one command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"grimm.is/netemstate/internal/brand"
	"grimm.is/netemstate/internal/config"
	"grimm.is/netemstate/internal/executor"
	"grimm.is/netemstate/internal/logging"
	"grimm.is/netemstate/internal/metrics"
	"grimm.is/netemstate/internal/network"
)

// Exit codes for the command line tools.
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
)

// Tool names. The binary answers to each of them when invoked through a
// symlink of that name.
const (
	toolNetworkConfig = "network-config"
	toolOVSConfig     = "ovs-config"
	toolOVSConsole    = "ovs-console"
	toolMcastSend     = "mcast-send"
	toolMcastReceive  = "mcast-receive"
	toolEthGen        = "eth-gen"
)

var tools = []string{toolNetworkConfig, toolOVSConfig, toolOVSConsole, toolMcastSend, toolMcastReceive, toolEthGen}

// app carries the state shared by every subcommand of one invocation.
type app struct {
	settingsPath string
	logLevel     string
	logJSON      bool
	metricsFile  string

	settings *config.Settings
	metrics  *metrics.Registry

	exec      executor.CommandExecutor
	netlinker func(nsName string) (network.Netlinker, func(), error)

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{
		exec:      executor.DefaultCommandExecutor,
		netlinker: realNetlinker,
		stdin:     stdin,
		stdout:    stdout,
		stderr:    stderr,
	}
}

func realNetlinker(nsName string) (network.Netlinker, func(), error) {
	nl, err := network.NewRealNetlinker(nsName)
	if err != nil {
		return nil, nil, err
	}
	return nl, nl.Close, nil
}

// setup loads settings and configures logging and metrics. Flags given on
// the command line win over the settings file.
func (a *app) setup(cmd *cobra.Command) error {
	path := a.settingsPath
	required := path != ""
	if !required {
		path = brand.DefaultSettingsPath()
	}
	s, err := config.LoadOrDefault(path, required)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("log-level") {
		s.Log.Level = a.logLevel
	}
	if cmd.Flags().Changed("log-json") {
		s.Log.JSON = a.logJSON
	}
	if a.metricsFile != "" {
		s.Metrics.Textfile = a.metricsFile
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	level, _ := s.LogLevel()
	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.JSON = s.Log.JSON
	cfg.Output = a.stderr
	logging.SetPrefix(cmd.Name())
	logging.SetDefault(logging.New(cfg))

	a.settings = s
	a.metrics = metrics.New()
	return nil
}

// finish writes the metrics textfile when one was requested.
func (a *app) finish() {
	if a.settings == nil || a.settings.Metrics.Textfile == "" {
		return
	}
	if err := a.metrics.WriteTextfile(a.settings.Metrics.Textfile); err != nil {
		logging.Warn("failed to write metrics", "file", a.settings.Metrics.Textfile, "error", err)
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           brand.BinaryName,
		Short:         "Capture and restore the network state of emulated nodes",
		Version:       brand.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.SetVersionTemplate(fmt.Sprintf("{{printf \"%s version %%s (%s)\\n\" .Version}}", brand.BinaryName, brand.GitCommit))
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&a.settingsPath, "settings", "", "settings file, HCL or JSON (default "+brand.DefaultSettingsPath()+")")
	flags.StringVar(&a.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	flags.BoolVar(&a.logJSON, "log-json", false, "log as JSON")
	flags.StringVar(&a.metricsFile, "metrics-file", "", "write node-exporter textfile metrics to this file")

	root.AddCommand(
		a.networkConfigCommand(),
		a.ovsConfigCommand(),
		a.ovsConsoleCommand(),
		a.mcastSendCommand(),
		a.mcastReceiveCommand(),
		a.ethGenCommand(),
	)
	return root
}

// toolArgs turns argv into subcommand arguments. When the binary runs under
// one of the tool names the name itself selects the subcommand.
func toolArgs(argv []string) []string {
	if len(argv) == 0 {
		return nil
	}
	base := filepath.Base(argv[0])
	for _, t := range tools {
		if base == t {
			return append([]string{t}, argv[1:]...)
		}
	}
	return argv[1:]
}

// Run executes the command line in argv and returns the exit code.
func Run(ctx context.Context, argv []string, stdin io.Reader, stdout, stderr io.Writer) int {
	return newApp(stdin, stdout, stderr).run(ctx, argv)
}

func (a *app) run(ctx context.Context, argv []string) int {
	root := a.rootCommand()
	root.SetArgs(toolArgs(argv))

	cmd, err := root.ExecuteContextC(ctx)
	a.finish()
	if err != nil {
		fmt.Fprintf(a.stderr, "%s: %v\n", cmd.Name(), err)
		return ExitCodeError
	}
	return ExitCodeSuccess
}

// Execute is called by main.main.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := Run(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
