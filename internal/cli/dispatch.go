package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/runoshun/relay/internal/app"
	"github.com/runoshun/relay/internal/domain"
	"github.com/runoshun/relay/internal/usecase"
	"github.com/spf13/cobra"
)

// newCheckCommand creates the check command.
func newCheckCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Tell whether a run is needed",
		Long: `Pull new messages and tell whether "relay run" has anything to do.

Exit codes:
  0  nothing to do (also on errors; the next cycle retries)
  1  work is pending, or an abandoned lease must be reclaimed
  2  a task is running

The lease is never taken or reclaimed by this command.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := s.open(cmd, false)
			if err != nil {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
				return nil
			}
			defer func() { _ = c.Close() }()

			out, err := c.CheckPendingUseCase().Execute(cmd.Context(), usecase.CheckPendingInput{
				StaleAfter: c.AppConfig.Lease.StaleAfter.Std(),
			})
			if err != nil {
				c.Logger.Warn(0, "check", err.Error())
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
				return nil
			}

			w := cmd.OutOrStdout()
			switch out.Status {
			case usecase.CheckBusy:
				_, _ = fmt.Fprintf(w, "busy: task %s, last heartbeat %s ago\n", leaseOwner(out.Lease), out.Lease.Idle.Truncate(time.Second))
			case usecase.CheckPending:
				if out.Lease.State == domain.LeaseStale {
					_, _ = fmt.Fprintln(w, "pending: abandoned lease to reclaim")
				} else {
					_, _ = fmt.Fprintf(w, "pending: %d message(s)\n", out.Pending)
				}
			default:
				_, _ = fmt.Fprintln(w, "idle")
			}
			if out.Status != usecase.CheckIdle {
				return &ExitError{Code: int(out.Status)}
			}
			return nil
		},
	}
}

// newRunCommand creates the run command.
func newRunCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one dispatch cycle",
		Long: `Run one dispatch cycle:
reclaim an abandoned lease, pull and coalesce every pending message into
one task, take the lease, run the worker, deliver the result, store the
task memory, fold in interrupts, mark everything processed, release.

Does nothing when a task is already running or nothing is pending.`,
		RunE: s.with(false, func(cmd *cobra.Command, _ []string, c *app.Container) error {
			out, err := c.RunTaskUseCase().Execute(cmd.Context(), c.RunInput())
			if err != nil {
				return err
			}
			printRunResult(cmd, out)
			return nil
		}),
	}
}

func printRunResult(cmd *cobra.Command, out *usecase.RunTaskOutput) {
	w := cmd.OutOrStdout()
	if out.Reclaimed {
		_, _ = fmt.Fprintln(w, "Reclaimed an abandoned lease")
	}
	switch out.Status {
	case usecase.RunIdle:
		_, _ = fmt.Fprintln(w, "Nothing to do")
	case usecase.RunBusy:
		_, _ = fmt.Fprintln(w, "A task is already running")
	case usecase.RunContended:
		_, _ = fmt.Fprintln(w, "Another run took the lease")
	case usecase.RunDone:
		_, _ = fmt.Fprintf(w, "Completed task %s (%d message(s), %d interrupt(s) merged)\n",
			taskRef(out.Task.PrimaryID()), len(out.Task.MessageIDs), len(out.Drained))
		if out.Delivered {
			_, _ = fmt.Fprintf(w, "Delivered result to chat %d\n", out.Task.ChatID)
		} else {
			_, _ = fmt.Fprintln(w, "Delivery failed; the result is kept in memory")
		}
	}
}

// newServeCommand creates the serve command.
func newServeCommand(s *session) *cobra.Command {
	var interval time.Duration
	var cycles int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run dispatch cycles in a loop",
		Long: `Run "relay run" every interval until interrupted.

A finished task starts the next cycle immediately. SIGINT and SIGTERM stop
the loop between cycles; a running worker is allowed to finish.`,
		RunE: s.with(true, func(cmd *cobra.Command, _ []string, c *app.Container) error {
			if !cmd.Flags().Changed("interval") {
				interval = c.AppConfig.Serve.Interval.Std()
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out, err := c.ServeUseCase().Execute(ctx, usecase.ServeInput{
				Run:       c.RunInput(),
				Interval:  interval,
				MaxCycles: cycles,
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stopped after %d cycle(s): %d task(s) completed, %d failed\n",
				out.Cycles, out.Completed, out.Failed)
			return nil
		}),
	}

	cmd.Flags().DurationVar(&interval, "interval", domain.DefaultServeEvery, "Time between idle cycles (default from [serve] interval)")
	cmd.Flags().IntVar(&cycles, "cycles", 0, "Stop after this many cycles (0 runs until interrupted)")

	return cmd
}

func leaseOwner(status domain.LeaseStatus) string {
	if status.Lease == nil || len(status.Lease.MessageIDs) == 0 {
		return "?"
	}
	return taskRef(status.Lease.MessageIDs[0])
}
