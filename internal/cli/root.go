// Package cli provides the command-line interface for relay.
package cli

import (
	"fmt"
	"io"

	"github.com/runoshun/relay/internal/app"
	"github.com/runoshun/relay/internal/domain"
	"github.com/spf13/cobra"
)

// Command group IDs.
const (
	groupSetup    = "setup"
	groupDispatch = "dispatch"
	groupInspect  = "inspect"
)

// ContainerFactory builds the container for a data directory.
type ContainerFactory func(cfg app.Config) (*app.Container, error)

// session opens the container lazily, once the flags are parsed.
type session struct {
	newContainer ContainerFactory
	dataDir      string
}

// with wraps a command body with an opened container that is closed afterwards.
// console mirrors the log files to the command's stderr.
func (s *session) with(console bool, fn func(cmd *cobra.Command, args []string, c *app.Container) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := s.open(cmd, console)
		if err != nil {
			return err
		}
		defer func() {
			if err := c.Close(); err != nil {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
			}
		}()
		return fn(cmd, args, c)
	}
}

func (s *session) open(cmd *cobra.Command, console bool) (*app.Container, error) {
	var mirror io.Writer
	if console {
		mirror = cmd.ErrOrStderr()
	}
	c, err := s.newContainer(app.Config{DataDir: s.dataDir, Console: mirror})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return c, nil
}

// NewRootCommand creates the root command for relay.
// newContainer is called by each command once the data directory is known.
func NewRootCommand(newContainer ContainerFactory, version string) *cobra.Command {
	s := &session{newContainer: newContainer}

	root := &cobra.Command{
		Use:   "relay",
		Short: "Single-worker task coordinator for chat requests",
		Long: `relay turns chat messages into units of work for one worker at a time.

Messages that arrive while nothing runs are coalesced into one task.
Messages that arrive during a run are recorded as interrupts and folded
into that run when it completes. Every finished task is kept in a
searchable memory.

Typical cron setup:
  relay check && exit 0; relay run`,
		Version: version,
		// SilenceUsage prevents usage from being printed on errors
		SilenceUsage: true,
		// SilenceErrors prevents Cobra from printing errors (we handle it in main)
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&s.dataDir, "data-dir", domain.DefaultDataDir(),
		"Data directory (default $RELAY_DATA_DIR or ./.relay)")

	root.AddGroup(
		&cobra.Group{ID: groupSetup, Title: "Setup Commands:"},
		&cobra.Group{ID: groupDispatch, Title: "Dispatch:"},
		&cobra.Group{ID: groupInspect, Title: "Inspection:"},
	)

	initCmd := newInitCommand(s)
	initCmd.GroupID = groupSetup

	configCmd := newConfigCommand(s)
	configCmd.GroupID = groupSetup

	checkCmd := newCheckCommand(s)
	checkCmd.GroupID = groupDispatch

	runCmd := newRunCommand(s)
	runCmd.GroupID = groupDispatch

	serveCmd := newServeCommand(s)
	serveCmd.GroupID = groupDispatch

	heartbeatCmd := newHeartbeatCommand(s)
	heartbeatCmd.GroupID = groupDispatch

	interruptsCmd := newInterruptsCommand(s)
	interruptsCmd.GroupID = groupDispatch

	leaseCmd := newLeaseCommand(s)
	leaseCmd.GroupID = groupInspect

	memoryCmd := newMemoryCommand(s)
	memoryCmd.GroupID = groupInspect

	purgeCmd := newPurgeCommand(s)
	purgeCmd.GroupID = groupSetup

	root.AddCommand(
		initCmd,
		configCmd,
		purgeCmd,
		checkCmd,
		runCmd,
		serveCmd,
		heartbeatCmd,
		interruptsCmd,
		leaseCmd,
		memoryCmd,
	)

	return root
}
