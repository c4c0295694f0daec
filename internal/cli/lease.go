package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/runoshun/relay/internal/app"
	"github.com/runoshun/relay/internal/domain"
	"github.com/runoshun/relay/internal/usecase"
	"github.com/spf13/cobra"
)

// newLeaseCommand creates the lease command and its subcommands.
func newLeaseCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lease",
		Short: "Show the lease",
		Long: `Show the lease that guards the single running task, together with
the number of unprocessed messages and recorded interrupts.`,
		RunE: s.with(false, func(cmd *cobra.Command, _ []string, c *app.Container) error {
			out, err := c.ShowLeaseUseCase().Execute(cmd.Context(), usecase.ShowLeaseInput{
				StaleAfter: c.AppConfig.Lease.StaleAfter.Std(),
			})
			if err != nil {
				return err
			}
			printLease(cmd.OutOrStdout(), out)
			return nil
		}),
	}

	cmd.AddCommand(newLeaseReclaimCommand(s))
	return cmd
}

func printLease(w io.Writer, out *usecase.ShowLeaseOutput) {
	status := out.Status
	_, _ = fmt.Fprint(w, field("State", leaseStateStyle(status.State).Render(string(status.State))))
	if lease := status.Lease; lease != nil {
		ids := make([]string, len(lease.MessageIDs))
		for i, id := range lease.MessageIDs {
			ids[i] = taskRef(id)
		}
		_, _ = fmt.Fprint(w, field("Messages", strings.Join(ids, " ")))
		_, _ = fmt.Fprint(w, field("Request", lease.Summary))
		_, _ = fmt.Fprint(w, field("Run", mutedStyle.Render(lease.RunID)))
		_, _ = fmt.Fprint(w, field("Acquired", lease.AcquiredAt.Local().Format(domain.TimestampLayout)))
		_, _ = fmt.Fprint(w, field("Last heartbeat", fmt.Sprintf("%s (%s ago)",
			lease.LastHeartbeatAt.Local().Format(domain.TimestampLayout), status.Idle.Truncate(time.Second))))
	}
	_, _ = fmt.Fprint(w, field("Pending", fmt.Sprintf("%d message(s)", out.Pending)))
	_, _ = fmt.Fprint(w, field("Interrupts", fmt.Sprintf("%d", len(out.Interrupts))))
}

// newLeaseReclaimCommand creates the lease reclaim subcommand.
func newLeaseReclaimCommand(s *session) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reclaim",
		Short: "Release an abandoned lease",
		Long: `Release a lease whose worker stopped sending heartbeats.

The chats of the abandoned task are notified and its messages stay
unprocessed, so the next run picks them up again. A lease that still
looks alive is only released with --force.`,
		RunE: s.with(false, func(cmd *cobra.Command, _ []string, c *app.Container) error {
			out, err := c.ReclaimLeaseUseCase().Execute(cmd.Context(), usecase.ReclaimLeaseInput{
				StaleAfter: c.AppConfig.Lease.StaleAfter.Std(),
				Force:      force,
			})
			if errors.Is(err, domain.ErrLeaseNotStale) {
				return fmt.Errorf("%w (use --force to release it anyway)", err)
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Released %s lease of task %s (notified %d chat(s))\n",
				out.Status.State, leaseOwner(out.Status), out.Notified)
			return nil
		}),
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Release a lease that is not stale yet")
	return cmd
}

// newHeartbeatCommand creates the heartbeat command.
func newHeartbeatCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "heartbeat",
		Short: "Refresh the running task's lease",
		Long: `Refresh the lease of the running task.

Workers call this while they work; a lease without a heartbeat for
[lease] stale_after is considered abandoned. Does nothing when no task runs.`,
		RunE: s.with(false, func(cmd *cobra.Command, _ []string, c *app.Container) error {
			out, err := c.HeartbeatUseCase().Execute(cmd.Context(), usecase.HeartbeatInput{})
			if err != nil {
				return err
			}
			if out.Lease == nil {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No task is running")
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Heartbeat at %s\n",
				out.Lease.LastHeartbeatAt.Local().Format(domain.TimestampLayout))
			return nil
		}),
	}
}

// newInterruptsCommand creates the interrupts command.
func newInterruptsCommand(s *session) *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "interrupts",
		Short: "Record messages that arrived during the running task",
		Long: `Pull new messages and record the ones that arrived while the current
task runs, then print every recorded interrupt.

Interrupts are merged into the running task when it completes.
Fails when no live task holds the lease; --list only prints.`,
		RunE: s.with(false, func(cmd *cobra.Command, _ []string, c *app.Container) error {
			out, err := c.PollInterruptsUseCase().Execute(cmd.Context(), usecase.PollInterruptsInput{
				StaleAfter: c.AppConfig.Lease.StaleAfter.Std(),
				ListOnly:   list,
			})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(out.Pending) == 0 {
				_, _ = fmt.Fprintln(w, "No interrupts")
				return nil
			}
			for _, p := range out.Pending {
				line := fmt.Sprintf("%s %s %s: %s", taskRef(p.MessageID),
					mutedStyle.Render(p.Timestamp.Local().Format(domain.TimestampLayout)),
					p.Author.DisplayName(), oneLine(p.Text, 80))
				if n := len(p.Attachments); n > 0 {
					line += fmt.Sprintf(" [+%d attachments]", n)
				}
				_, _ = fmt.Fprintln(w, line)
			}
			return nil
		}),
	}

	cmd.Flags().BoolVar(&list, "list", false, "Only print recorded interrupts")
	return cmd
}
