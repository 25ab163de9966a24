// Package cli builds the courier command-line tree: start/stop/restart/
// status/logs against a background daemon process, plus the hidden
// daemon subcommand the service spawns itself into.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/monoco-dev/fabric/pkg/courier"
	"github.com/monoco-dev/fabric/pkg/logger"
)

// ------------------------------------------------------------------------------------------
// Courier command
// ------------------------------------------------------------------------------------------

// The root-level command.
// `courier <command> [<flag>...]`
var courierCmd = &cobra.Command{
	Use:               "courier",
	Short:             "Background message-relay service for monoco projects.",
	Long:              `Starts, stops, and inspects the courier daemon that relays inbound/outbound messages for a project's mailbox.`,
	RunE:              handleCourierCmd,
	PersistentPreRunE: preRun,
}

var (
	flagProjectRoot string
	flagHost        string
	flagPort        int
	flagDebug       bool
)

func preRun(cc *cobra.Command, args []string) error {
	viper.AutomaticEnv()
	viper.SetEnvPrefix("MONOCO_COURIER")

	development, err := zapDevelopmentFlag(cc)
	if err != nil {
		return err
	}

	l, err := logger.New(development)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	logger.Seed(l)
	cc.SetContext(logger.WithLogger(cc.Context(), l))

	return nil
}

func zapDevelopmentFlag(cc *cobra.Command) (bool, error) {
	if cc.Flags().Lookup("debug") == nil {
		return false, nil
	}

	return cc.Flags().GetBool("debug")
}

// handleCourierCmd produces the same output as `courier --help`.
func handleCourierCmd(cmd *cobra.Command, args []string) error {
	return cmd.Help()
}

// CourierCommand produces the cobra command tree used by the courier
// CLI. The command tree is built and attached to the returned command.
func CourierCommand() *cobra.Command {
	c := &cobra.Command{}
	*c = *courierCmd

	BuildCommandTree(c)

	return c
}

// BuildCommandTree attaches every subcommand and persistent flag to cmd.
func BuildCommandTree(cmd *cobra.Command) {
	cmd.PersistentFlags().SortFlags = false
	cmd.PersistentFlags().StringVar(&flagProjectRoot, "project-root", ".", "project directory the daemon manages")
	cmd.PersistentFlags().StringVar(&flagHost, "host", courier.DefaultHost, "interface the API server binds")
	cmd.PersistentFlags().IntVar(&flagPort, "port", courier.DefaultPort, "port the API server binds")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable development-mode logging")

	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.AddCommand(startCmd())
	cmd.AddCommand(stopCmd())
	cmd.AddCommand(restartCmd())
	cmd.AddCommand(statusCmd())
	cmd.AddCommand(logsCmd())
	cmd.AddCommand(daemonCmd())
}

// ------------------------------------------------------------------------------------------
// Running courier
// ------------------------------------------------------------------------------------------

// Handle builds and executes the cli processor.
func Handle() {
	ctx := context.Background()

	cmd := CourierCommand()

	if err := cmd.ExecuteContext(ctx); err != nil {
		logger.CtxErr(cmd.Context(), err).Error("cli execution")
		os.Exit(1)
	}
}

// ------------------------------------------------------------------------------------------
// Subcommands
// ------------------------------------------------------------------------------------------

func newService() *courier.Service {
	return courier.NewService(flagProjectRoot)
}

func startCmd() *cobra.Command {
	var foreground bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the courier daemon.",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := newService()
			svc.Host, svc.Port = flagHost, flagPort

			status, err := svc.Start(foreground, flagDebug)
			if err != nil {
				return err
			}

			printStatus(cmd, status)

			return nil
		},
	}

	cmd.Flags().BoolVar(&foreground, "foreground", false, "run the daemon inline instead of detaching")

	return cmd
}

func stopCmd() *cobra.Command {
	var (
		timeout time.Duration
		wait    bool
	)

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the courier daemon.",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := newService().Stop(timeout, wait)
			if err != nil {
				return err
			}

			printStatus(cmd, status)

			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", courier.SigtermGrace, "how long to wait for graceful shutdown before killing")
	cmd.Flags().BoolVar(&wait, "wait", true, "block until the daemon exits")

	return cmd
}

func restartCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the courier daemon.",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := newService().Restart(force, flagDebug)
			if err != nil {
				return err
			}

			printStatus(cmd, status)

			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "kill the prior process if it won't stop gracefully")

	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report the courier daemon's current state.",
		RunE: func(cmd *cobra.Command, args []string) error {
			printStatus(cmd, newService().GetStatus())
			return nil
		},
	}
}

func logsCmd() *cobra.Command {
	var lines int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the last lines of the courier daemon's log file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := newService().Logs(lines)
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), out)

			return nil
		},
	}

	cmd.Flags().IntVar(&lines, "lines", 100, "number of trailing log lines to print")

	return cmd
}

// daemonCmd is the hidden entrypoint Service.Start re-execs into; it
// runs the daemon loop inline and never returns until its context is
// cancelled.
func daemonCmd() *cobra.Command {
	var pidFile, stateFile string

	cmd := &cobra.Command{
		Use:    "daemon",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			d := courier.NewDaemon(courier.DaemonConfig{
				ProjectRoot: flagProjectRoot,
				Host:        flagHost,
				Port:        flagPort,
				Debug:       flagDebug,
			})

			if err := d.Initialize(); err != nil {
				return err
			}

			return d.Run(cmd.Context())
		},
	}

	// pid-file/state-file are accepted for invocation-shape
	// compatibility with the parent process that spawned this one; the
	// parent already owns those files and this process does not touch
	// them directly.
	cmd.Flags().StringVar(&pidFile, "pid-file", "", "")
	cmd.Flags().StringVar(&stateFile, "state-file", "", "")
	_ = cmd.Flags().MarkHidden("pid-file")
	_ = cmd.Flags().MarkHidden("state-file")

	return cmd
}

func printStatus(cmd *cobra.Command, status courier.Status) {
	fmt.Fprintf(cmd.OutOrStdout(), "state: %s\n", status.State)

	if status.PID != 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "pid: %d\n", status.PID)
	}

	if status.APIURL != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "api: %s\n", status.APIURL)
	}

	if status.ErrorMessage != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "error: %s\n", status.ErrorMessage)
	}
}
