package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/runoshun/relay/internal/app"
	"github.com/runoshun/relay/internal/domain"
	"github.com/runoshun/relay/internal/usecase"
	"github.com/spf13/cobra"
)

// newMemoryCommand creates the memory command and its subcommands.
func newMemoryCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Search past tasks",
		Long:  `Search, list and show the memory of finished and running tasks.`,
	}

	cmd.AddCommand(
		newMemorySearchCommand(s),
		newMemoryListCommand(s),
		newMemoryShowCommand(s),
	)
	return cmd
}

func newMemorySearchCommand(s *session) *cobra.Command {
	var keyword string
	var id int64
	var limit int

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the memory index",
		Long: `Search the memory index by keyword (case-insensitive, matched against
the instruction and its keywords) or by message ID.`,
		RunE: s.with(false, func(cmd *cobra.Command, _ []string, c *app.Container) error {
			in := usecase.SearchMemoryInput{Keyword: keyword, Limit: limit}
			if cmd.Flags().Changed("id") {
				in.MessageID = &id
			}
			out, err := c.SearchMemoryUseCase().Execute(cmd.Context(), in)
			if err != nil {
				return err
			}
			printIndex(cmd.OutOrStdout(), out.Entries)
			return nil
		}),
	}

	cmd.Flags().StringVarP(&keyword, "keyword", "k", "", "Keyword to search for")
	cmd.Flags().Int64Var(&id, "id", 0, "Message ID to look up")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of entries (0 for all)")
	return cmd
}

func newMemoryListCommand(s *session) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every task in the memory index",
		RunE: s.with(false, func(cmd *cobra.Command, _ []string, c *app.Container) error {
			out, err := c.SearchMemoryUseCase().Execute(cmd.Context(), usecase.SearchMemoryInput{Limit: limit})
			if err != nil {
				return err
			}
			printIndex(cmd.OutOrStdout(), out.Entries)
			return nil
		}),
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of entries (0 for all)")
	return cmd
}

func printIndex(w io.Writer, entries []domain.IndexEntry) {
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(w, "No tasks found")
		return
	}
	for _, e := range entries {
		ts := mutedStyle.Render(e.Timestamp.Local().Format(domain.TimestampLayout))
		if e.PrimaryID != 0 {
			_, _ = fmt.Fprintf(w, "%s %s merged into %s\n", taskRef(e.MessageID), ts, taskRef(e.PrimaryID))
			continue
		}
		_, _ = fmt.Fprintf(w, "%s %s %s\n", taskRef(e.MessageID), ts, oneLine(e.Instruction, 60))
		_, _ = fmt.Fprintf(w, "    %s %s\n", mutedStyle.Render("→"), oneLine(e.ResultPreview, 100))
	}
}

func newMemoryShowCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "show <message-id>",
		Short: "Show one task memory",
		Long: `Show the full memory of the task keyed by a message ID.
A message merged into another task also shows that task.`,
		Args: cobra.ExactArgs(1),
		RunE: s.with(false, func(cmd *cobra.Command, args []string, c *app.Container) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid message ID %q: %w", args[0], err)
			}
			out, err := c.ShowMemoryUseCase().Execute(cmd.Context(), usecase.ShowMemoryInput{MessageID: id})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			_, _ = fmt.Fprint(w, out.Memory.Content())
			if out.Primary != nil {
				_, _ = fmt.Fprintf(w, "\n--- %s ---\n", taskRef(out.Primary.MessageID))
				_, _ = fmt.Fprint(w, out.Primary.Content())
			}
			return nil
		}),
	}
}
