package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/runoshun/relay/internal/domain"
	"github.com/runoshun/relay/internal/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finalize(t *testing.T, f *fixture, instruction, result string, ids ...int64) {
	t.Helper()
	err := f.store.Finalize(context.Background(), domain.MemoryDraft{
		StartedAt:   baseTime,
		At:          baseTime.Add(time.Minute),
		Instruction: instruction,
		Result:      result,
		MessageIDs:  ids,
		ChatID:      testChat,
	})
	require.NoError(t, err)
}

func TestSearchMemory_Execute(t *testing.T) {
	f := newFixture()
	finalize(t, f, "Summarize the quarterly Report", "summary", 10)
	finalize(t, f, "Fix the printer", "fixed", 20, 21)
	uc := usecase.NewSearchMemory(f.store)

	t.Run("keyword is case-insensitive", func(t *testing.T) {
		out, err := uc.Execute(context.Background(), usecase.SearchMemoryInput{Keyword: "REPORT"})
		require.NoError(t, err)
		require.Len(t, out.Entries, 1)
		assert.Equal(t, int64(10), out.Entries[0].MessageID)
	})

	t.Run("by id", func(t *testing.T) {
		id := int64(21)
		out, err := uc.Execute(context.Background(), usecase.SearchMemoryInput{MessageID: &id})
		require.NoError(t, err)
		require.Len(t, out.Entries, 1)
		assert.Equal(t, int64(20), out.Entries[0].PrimaryID)
	})

	t.Run("list newest first with limit", func(t *testing.T) {
		out, err := uc.Execute(context.Background(), usecase.SearchMemoryInput{Limit: 2})
		require.NoError(t, err)
		require.Len(t, out.Entries, 2)
		assert.Equal(t, int64(21), out.Entries[0].MessageID)
		assert.Equal(t, int64(20), out.Entries[1].MessageID)
	})

	t.Run("no match", func(t *testing.T) {
		out, err := uc.Execute(context.Background(), usecase.SearchMemoryInput{Keyword: "nothing"})
		require.NoError(t, err)
		assert.Empty(t, out.Entries)
	})
}

func TestShowMemory_Execute(t *testing.T) {
	f := newFixture()
	finalize(t, f, "Fix the printer", "fixed", 20, 21)
	uc := usecase.NewShowMemory(f.store)

	t.Run("primary", func(t *testing.T) {
		out, err := uc.Execute(context.Background(), usecase.ShowMemoryInput{MessageID: 20})
		require.NoError(t, err)
		assert.Equal(t, "fixed", out.Memory.Result)
		assert.Nil(t, out.Primary)
	})

	t.Run("reference resolves primary", func(t *testing.T) {
		out, err := uc.Execute(context.Background(), usecase.ShowMemoryInput{MessageID: 21})
		require.NoError(t, err)
		assert.True(t, out.Memory.IsReference())
		require.NotNil(t, out.Primary)
		assert.Equal(t, "Fix the printer", out.Primary.Instruction)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := uc.Execute(context.Background(), usecase.ShowMemoryInput{MessageID: 99})
		assert.ErrorIs(t, err, domain.ErrMemoryNotFound)
	})
}
