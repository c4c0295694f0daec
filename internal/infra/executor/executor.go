// Package executor runs the configured worker command for a unit of work.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/runoshun/relay/internal/domain"
)

// Environment variables handed to the worker command.
const (
	EnvTaskDir    = "RELAY_TASK_DIR"
	EnvRunID      = "RELAY_RUN_ID"
	EnvMemoryFile = "RELAY_MEMORY_FILE"
	EnvDataDir    = "RELAY_DATA_DIR"

	// Messages that arrived during the run, rewritten on every poll that finds
	// some. They are merged into this task's memory when it completes.
	EnvInterruptsFile = "RELAY_INTERRUPTS_FILE"
)

const (
	// DefaultHeartbeatEvery throttles liveness signals derived from output lines.
	DefaultHeartbeatEvery = time.Minute
	stderrTailBytes       = 2048
	waitDelay             = 5 * time.Second
)

// Config configures the worker command.
type Config struct {
	Command        string
	DataDir        string
	Args           []string
	HeartbeatEvery time.Duration
}

// Worker implements domain.Worker by running an external command.
type Worker struct {
	clock  domain.Clock
	logger domain.Logger
	cfg    Config
}

// Ensure Worker implements domain.Worker.
var _ domain.Worker = (*Worker)(nil)

// NewWorker creates a new Worker.
func NewWorker(cfg Config, clock domain.Clock, logger domain.Logger) *Worker {
	if cfg.HeartbeatEvery <= 0 {
		cfg.HeartbeatEvery = DefaultHeartbeatEvery
	}
	return &Worker{cfg: cfg, clock: clock, logger: logger}
}

// Run executes the command in in.Dir with the instruction on stdin.
// The result is the trimmed stdout. Output files are the regular files
// created or modified in in.Dir while the command ran.
func (w *Worker) Run(ctx context.Context, in domain.WorkerInput) (*domain.WorkerOutput, error) {
	if w.cfg.Command == "" {
		return nil, domain.ErrNoWorker
	}
	if err := os.MkdirAll(in.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create task dir: %w", err)
	}

	memoryFile := filepath.Join(in.Dir, domain.PriorMemoryName)
	if err := os.WriteFile(memoryFile, []byte(RenderMemory(in.PriorMemory)), 0o600); err != nil {
		return nil, fmt.Errorf("write prior memory: %w", err)
	}

	before, err := snapshot(in.Dir)
	if err != nil {
		return nil, err
	}

	noteFile := filepath.Join(in.Dir, domain.InterruptNoteName)
	p := &pulse{
		ctx:      ctx,
		hooks:    in.Hooks,
		clock:    w.clock,
		logger:   w.logger,
		noteFile: noteFile,
		every:    w.cfg.HeartbeatEvery,
		last:     w.clock.Now(),
	}
	var stdout bytes.Buffer
	stderr := &tailBuffer{max: stderrTailBytes}

	// #nosec G204 - command and args come from the operator's config file
	cmd := exec.CommandContext(ctx, w.cfg.Command, w.cfg.Args...)
	cmd.Dir = in.Dir
	cmd.Stdin = strings.NewReader(in.Instruction)
	cmd.Stdout = &lineWriter{dst: &stdout, onLine: p.beat}
	cmd.Stderr = &lineWriter{dst: stderr, onLine: p.beat}
	cmd.WaitDelay = waitDelay
	cmd.Env = append(os.Environ(),
		EnvTaskDir+"="+in.Dir,
		EnvRunID+"="+in.RunID,
		EnvMemoryFile+"="+memoryFile,
		EnvDataDir+"="+w.cfg.DataDir,
		EnvInterruptsFile+"="+noteFile,
	)

	if err := cmd.Run(); err != nil {
		if tail := strings.TrimSpace(stderr.String()); tail != "" {
			return nil, fmt.Errorf("%s: %w: %s", w.cfg.Command, err, tail)
		}
		return nil, fmt.Errorf("%s: %w", w.cfg.Command, err)
	}

	exclude := append([]string{memoryFile, noteFile, filepath.Join(in.Dir, domain.MemoryFileName)}, in.Inputs...)
	files, err := changedFiles(in.Dir, before, exclude)
	if err != nil {
		return nil, err
	}
	return &domain.WorkerOutput{
		Result:      strings.TrimSpace(stdout.String()),
		OutputFiles: files,
	}, nil
}

// RenderMemory joins the memory text of records, newest first.
func RenderMemory(memories []*domain.TaskMemory) string {
	if len(memories) == 0 {
		return "(no prior tasks)\n"
	}
	parts := make([]string, 0, len(memories))
	for _, m := range memories {
		parts = append(parts, m.Content())
	}
	return strings.Join(parts, "\n---\n\n")
}

// RenderInterrupts renders the messages that arrived during a run, oldest first.
func RenderInterrupts(interrupts []domain.PendingInterrupt) string {
	var b strings.Builder
	for _, in := range interrupts {
		fmt.Fprintf(&b, "[%s] %s: %s", in.Timestamp.Format(domain.TimestampLayout), in.Author.DisplayName(), in.Text)
		if n := len(in.Attachments); n > 0 {
			fmt.Fprintf(&b, " [+%d attachments]", n)
			for _, a := range in.Attachments {
				fmt.Fprintf(&b, "\n  %s", a.Path)
			}
		}
		if in.Location != nil {
			fmt.Fprintf(&b, "\n  location: %s", in.Location.MapURL())
		}
		b.WriteString("\n")
	}
	return b.String()
}

// pulse turns output lines into throttled heartbeats and interrupt polls.
type pulse struct {
	last     time.Time
	ctx      context.Context
	hooks    domain.WorkerHooks
	clock    domain.Clock
	logger   domain.Logger
	noteFile string
	mu       sync.Mutex
	every    time.Duration
}

func (p *pulse) beat() {
	if p.hooks == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	if now.Sub(p.last) < p.every {
		return
	}
	p.last = now

	if err := p.hooks.Heartbeat(p.ctx); err != nil {
		p.logger.Warn(0, "worker", fmt.Sprintf("heartbeat failed: %v", err))
	}
	interrupts, err := p.hooks.PollInterrupts(p.ctx)
	if err != nil {
		p.logger.Warn(0, "worker", fmt.Sprintf("poll interrupts failed: %v", err))
		return
	}
	if len(interrupts) == 0 {
		return
	}
	p.logger.Info(0, "worker", fmt.Sprintf("%d interrupt(s) pending", len(interrupts)))
	if err := os.WriteFile(p.noteFile, []byte(RenderInterrupts(interrupts)), 0o600); err != nil {
		p.logger.Warn(0, "worker", fmt.Sprintf("write interrupts file: %v", err))
	}
}

// lineWriter copies to dst and calls onLine once per newline seen.
type lineWriter struct {
	dst    io.Writer
	onLine func()
}

func (l *lineWriter) Write(b []byte) (int, error) {
	n, err := l.dst.Write(b)
	for range bytes.Count(b[:n], []byte{'\n'}) {
		l.onLine()
	}
	return n, err
}

// tailBuffer keeps the last max bytes written.
type tailBuffer struct {
	buf []byte
	max int
}

func (t *tailBuffer) Write(b []byte) (int, error) {
	t.buf = append(t.buf, b...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(b), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}

func snapshot(dir string) (map[string]time.Time, error) {
	files := make(map[string]time.Time)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files[path] = info.ModTime()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan task dir: %w", err)
	}
	return files, nil
}

func changedFiles(dir string, before map[string]time.Time, exclude []string) ([]string, error) {
	after, err := snapshot(dir)
	if err != nil {
		return nil, err
	}
	for i := range exclude {
		exclude[i] = filepath.Clean(exclude[i])
	}
	var changed []string
	for path, mtime := range after {
		if slices.Contains(exclude, filepath.Clean(path)) {
			continue
		}
		if prev, ok := before[path]; ok && !mtime.After(prev) {
			continue
		}
		changed = append(changed, path)
	}
	slices.Sort(changed)
	return changed, nil
}
