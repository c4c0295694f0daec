package cli

import (
	"fmt"

	"github.com/runoshun/relay/internal/app"
	"github.com/runoshun/relay/internal/usecase"
	"github.com/spf13/cobra"
)

// newPurgeCommand creates the purge command.
func newPurgeCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Drop expired messages",
		Long: `Drop processed messages older than [retention] processed_ttl.
Unprocessed messages and messages inside [retention] context_window are kept.
Every run purges too; this command is for manual cleanup.`,
		RunE: s.with(false, func(cmd *cobra.Command, _ []string, c *app.Container) error {
			out, err := c.PurgeMessagesUseCase().Execute(cmd.Context(), usecase.PurgeMessagesInput{
				Retention: c.AppConfig.Retention.Policy(),
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed %d message(s)\n", out.Removed)
			return nil
		}),
	}
}
