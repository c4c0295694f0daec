package cli

import (
	"fmt"

	"github.com/runoshun/relay/internal/app"
	"github.com/runoshun/relay/internal/usecase"
	"github.com/spf13/cobra"
)

// newInitCommand creates the init command.
func newInitCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the data directory",
		Long: `Initialize the relay data directory.

This command creates:
- the message, lease, interrupt and memory store (file or sqlite backend)
- tasks/: one directory per unit of work
- config.toml: a commented configuration file (kept when it exists)

Running it again is harmless.`,
		RunE: s.with(false, func(cmd *cobra.Command, _ []string, c *app.Container) error {
			out, err := c.InitStoreUseCase().Execute(cmd.Context(), usecase.InitStoreInput{
				Config: c.AppConfig,
			})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "Initialized relay in %s (%s store)\n", c.Config.DataDir, c.AppConfig.Store.Backend)
			if out.ConfigCreated {
				_, _ = fmt.Fprintf(w, "Created %s\n", out.ConfigPath)
			} else {
				_, _ = fmt.Fprintf(w, "Kept existing %s\n", out.ConfigPath)
			}
			return nil
		}),
	}
}
