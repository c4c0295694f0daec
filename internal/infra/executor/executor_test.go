package executor

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/runoshun/relay/internal/domain"
	"github.com/runoshun/relay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingHooks struct {
	interrupts []domain.PendingInterrupt
	mu         sync.Mutex
	beats      int
	polls      int
}

func (h *countingHooks) Heartbeat(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.beats++
	return nil
}

func (h *countingHooks) PollInterrupts(context.Context) ([]domain.PendingInterrupt, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.polls++
	return h.interrupts, nil
}

func shellWorker(t *testing.T, script string, every time.Duration) *Worker {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("Skipping test on Windows")
	}
	return NewWorker(Config{
		Command:        "sh",
		Args:           []string{"-c", script},
		DataDir:        "/data",
		HeartbeatEvery: every,
	}, domain.RealClock{}, &testutil.MockLogger{})
}

func TestWorker_Run(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "image_5.jpg")
	untouched := filepath.Join(dir, "old.txt")
	require.NoError(t, os.WriteFile(input, []byte("jpg"), 0o600))
	require.NoError(t, os.WriteFile(untouched, []byte("old"), 0o600))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(input, past, past))
	require.NoError(t, os.Chtimes(untouched, past, past))

	script := `
cat > instruction.txt
echo >> image_5.jpg
mkdir -p out && printf 'x' > out/report.csv
echo "run=$RELAY_RUN_ID data=$RELAY_DATA_DIR"
grep -qF "[instruction] earlier" "$RELAY_MEMORY_FILE" && echo "memory ok"
test "$RELAY_TASK_DIR" = "$(pwd)" && echo "dir ok"
`
	worker := shellWorker(t, script, time.Hour)
	memory := &domain.TaskMemory{MessageID: 3, MessageIDs: []int64{3}, Instruction: "earlier"}

	out, err := worker.Run(context.Background(), domain.WorkerInput{
		Instruction: "do the thing",
		Dir:         dir,
		RunID:       "run-1",
		PriorMemory: []*domain.TaskMemory{memory},
		Inputs:      []string{input},
	})
	require.NoError(t, err)

	assert.Equal(t, "run=run-1 data=/data\nmemory ok\ndir ok", out.Result)
	assert.Equal(t, []string{
		filepath.Join(dir, "instruction.txt"),
		filepath.Join(dir, "out", "report.csv"),
	}, out.OutputFiles)

	content, err := os.ReadFile(filepath.Join(dir, "instruction.txt"))
	require.NoError(t, err)
	assert.Equal(t, "do the thing", string(content))
}

func TestWorker_RunFailure(t *testing.T) {
	worker := shellWorker(t, "echo partial; echo boom >&2; exit 3", time.Hour)

	_, err := worker.Run(context.Background(), domain.WorkerInput{Dir: t.TempDir()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, err.Error(), "exit status 3")
}

func TestWorker_OutputLinesHeartbeat(t *testing.T) {
	hooks := &countingHooks{}
	worker := shellWorker(t, "echo a; sleep 0.01; echo b; sleep 0.01; echo c >&2", time.Nanosecond)

	_, err := worker.Run(context.Background(), domain.WorkerInput{Dir: t.TempDir(), Hooks: hooks})
	require.NoError(t, err)
	assert.Equal(t, 3, hooks.beats)
	assert.Equal(t, 3, hooks.polls)
}

func TestWorker_InterruptsFile(t *testing.T) {
	hooks := &countingHooks{interrupts: []domain.PendingInterrupt{{
		MessageID: 9,
		Text:      "also add the charts",
		Timestamp: time.Date(2026, 3, 1, 9, 5, 0, 0, time.UTC),
		Author:    domain.Author{FirstName: "Mina"},
	}}}
	worker := shellWorker(t, `echo working; sleep 0.2; cat "$RELAY_INTERRUPTS_FILE"`, time.Nanosecond)
	dir := t.TempDir()

	out, err := worker.Run(context.Background(), domain.WorkerInput{Dir: dir, Hooks: hooks})
	require.NoError(t, err)

	assert.Contains(t, out.Result, "[2026-03-01 09:05:00]")
	assert.Contains(t, out.Result, "also add the charts")
	assert.FileExists(t, filepath.Join(dir, domain.InterruptNoteName))
	assert.Empty(t, out.OutputFiles)
}

func TestRenderInterrupts(t *testing.T) {
	text := RenderInterrupts([]domain.PendingInterrupt{{
		Text:        "see attached",
		Timestamp:   time.Date(2026, 3, 1, 9, 5, 0, 0, time.UTC),
		Attachments: []domain.Attachment{{Path: "/data/tasks/msg_9/file_9.pdf"}},
	}})

	assert.Contains(t, text, "[2026-03-01 09:05:00]")
	assert.Contains(t, text, "see attached [+1 attachments]")
	assert.Contains(t, text, "\n  /data/tasks/msg_9/file_9.pdf\n")
}

func TestWorker_HeartbeatThrottled(t *testing.T) {
	hooks := &countingHooks{}
	worker := shellWorker(t, "echo a; echo b; echo c", time.Hour)

	_, err := worker.Run(context.Background(), domain.WorkerInput{Dir: t.TempDir(), Hooks: hooks})
	require.NoError(t, err)
	assert.Zero(t, hooks.beats)
}

func TestWorker_ContextCancel(t *testing.T) {
	worker := shellWorker(t, "exec sleep 10", time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := worker.Run(ctx, domain.WorkerInput{Dir: t.TempDir()})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestWorker_NoCommand(t *testing.T) {
	worker := NewWorker(Config{}, domain.RealClock{}, &testutil.MockLogger{})
	_, err := worker.Run(context.Background(), domain.WorkerInput{Dir: t.TempDir()})
	assert.ErrorIs(t, err, domain.ErrNoWorker)
}

func TestRenderMemory(t *testing.T) {
	assert.Equal(t, "(no prior tasks)\n", RenderMemory(nil))

	rendered := RenderMemory([]*domain.TaskMemory{
		{MessageID: 2, MessageIDs: []int64{2}, Instruction: "second"},
		{MessageID: 1, MessageIDs: []int64{1}, Instruction: "first"},
	})
	assert.Contains(t, rendered, "second")
	assert.Contains(t, rendered, "\n---\n")
	assert.Less(t, strings.Index(rendered, "second"), strings.Index(rendered, "first"))
}
