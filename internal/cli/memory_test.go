package cli

import (
	"context"
	"strings"
	"testing"

	"github.com/runoshun/relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finalizeMemory(t *testing.T, env *testEnv, instruction, result string, ids ...int64) {
	t.Helper()
	require.NoError(t, env.store.Finalize(context.Background(), domain.MemoryDraft{
		StartedAt:   testNow,
		At:          testNow,
		Instruction: instruction,
		Result:      result,
		MessageIDs:  ids,
		ChatID:      1,
	}))
}

func TestMemoryCommands(t *testing.T) {
	env := newTestEnv()
	finalizeMemory(t, env, "Draft the release notes", "notes drafted", 10, 11)
	finalizeMemory(t, env, "Water the plants", "watered", 20)

	t.Run("search keyword", func(t *testing.T) {
		out, _, err := execute(t, env.factory, "memory", "search", "--keyword", "release")
		require.NoError(t, err)
		assert.Contains(t, out, "#10")
		assert.Contains(t, out, "notes drafted")
		assert.NotContains(t, out, "#20")
	})

	t.Run("search id", func(t *testing.T) {
		out, _, err := execute(t, env.factory, "memory", "search", "--id", "11")
		require.NoError(t, err)
		assert.Contains(t, out, "#11")
		assert.Contains(t, out, "merged into #10")
	})

	t.Run("search no match", func(t *testing.T) {
		out, _, err := execute(t, env.factory, "memory", "search", "-k", "nothing")
		require.NoError(t, err)
		assert.Contains(t, out, "No tasks found")
	})

	t.Run("list", func(t *testing.T) {
		out, _, err := execute(t, env.factory, "memory", "list")
		require.NoError(t, err)
		assert.Less(t, strings.Index(out, "#20"), strings.Index(out, "#10"))
	})

	t.Run("show reference", func(t *testing.T) {
		out, _, err := execute(t, env.factory, "memory", "show", "11")
		require.NoError(t, err)
		assert.Contains(t, out, "[reference] tasks/msg_10/")
		assert.Contains(t, out, "[instruction] Draft the release notes")
	})

	t.Run("show invalid id", func(t *testing.T) {
		_, _, err := execute(t, env.factory, "memory", "show", "abc")
		assert.ErrorContains(t, err, "invalid message ID")
	})

	t.Run("show missing", func(t *testing.T) {
		_, _, err := execute(t, env.factory, "memory", "show", "99")
		assert.ErrorIs(t, err, domain.ErrMemoryNotFound)
	})
}
