// Package usecase contains application use cases.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/runoshun/relay/internal/domain"
)

// Result text markers.
const (
	WorkerErrorPrefix    = "[worker error] "
	DeliveryFailedPrefix = "[delivery failed] "
	EmptyResult          = "(no output)"
)

// RunStatus tells what a RunTask cycle did.
type RunStatus string

// Run statuses.
const (
	RunIdle      RunStatus = "idle"      // Nothing pending
	RunBusy      RunStatus = "busy"      // Another run holds the lease
	RunContended RunStatus = "contended" // Lost the race for the lease
	RunDone      RunStatus = "done"
)

// RunTaskInput contains the parameters for one dispatch cycle.
type RunTaskInput struct {
	Retention  domain.RetentionPolicy
	StaleAfter time.Duration
	AckStart   bool // Announce the start of the work to the chat
}

// RunTaskOutput contains the result of one dispatch cycle.
// Fields are ordered to minimize memory padding.
type RunTaskOutput struct {
	Task        *domain.CombinedTask
	Status      RunStatus
	RunID       string
	Result      string  // Result text as recorded in memory
	OutputFiles []string
	Drained     []int64 // Interrupt IDs folded into the task
	Delivered   bool
	Reclaimed   bool
}

// RunTask executes one full cycle: build, lease, reserve, work, deliver,
// finalize, drain, mark processed, release.
type RunTask struct {
	store     domain.CoordinatorStore
	transport domain.Transport
	sender    domain.Sender
	worker    domain.Worker
	clock     domain.Clock
	logger    domain.Logger
	newRunID  func() string
	dataDir   string
}

// NewRunTask creates a new RunTask use case. transport and sender may be nil.
func NewRunTask(
	store domain.CoordinatorStore,
	transport domain.Transport,
	sender domain.Sender,
	worker domain.Worker,
	clock domain.Clock,
	logger domain.Logger,
	dataDir string,
) *RunTask {
	return &RunTask{
		store:     store,
		transport: transport,
		sender:    sender,
		worker:    worker,
		clock:     clock,
		logger:    logger,
		newRunID:  uuid.NewString,
		dataDir:   dataDir,
	}
}

// WithRunIDs replaces the run ID generator.
func (uc *RunTask) WithRunIDs(gen func() string) *RunTask {
	uc.newRunID = gen
	return uc
}

// Execute runs one cycle. Errors are returned only when the store fails
// before the work starts; later failures are logged and recorded in memory.
func (uc *RunTask) Execute(ctx context.Context, in RunTaskInput) (*RunTaskOutput, error) {
	if uc.worker == nil {
		return nil, domain.ErrNoWorker
	}

	built, err := NewBuildTask(uc.store, uc.transport, uc.sender, uc.clock, uc.logger).
		Execute(ctx, BuildTaskInput{StaleAfter: in.StaleAfter, Retention: in.Retention})
	if err != nil {
		return nil, err
	}
	out := &RunTaskOutput{Reclaimed: built.Reclaimed}
	switch {
	case built.Lease.State == domain.LeaseHeld:
		out.Status = RunBusy
		return out, nil
	case built.Task == nil:
		out.Status = RunIdle
		return out, nil
	}

	task := built.Task
	out.Task = task
	primary := task.PrimaryID()
	startedAt := uc.clock.Now()
	out.RunID = uc.newRunID()

	ok, err := uc.store.Acquire(ctx, domain.NewLease(task.MessageIDs, task.Instruction, out.RunID, startedAt))
	if err != nil {
		return nil, fmt.Errorf("acquire lease: %w", err)
	}
	if !ok {
		uc.logger.Info(primary, "lease", "lease taken by another run")
		out.Status = RunContended
		return out, nil
	}
	defer func() {
		released, err := uc.store.Release(context.WithoutCancel(ctx), out.RunID)
		switch {
		case err != nil:
			uc.logger.Error(primary, "lease", fmt.Sprintf("release: %v", err))
		case !released:
			uc.logger.Warn(primary, "lease", fmt.Sprintf("lease of run %s was reclaimed before the run finished", out.RunID))
		}
	}()
	uc.logger.Info(primary, "run", fmt.Sprintf("started run %s with %d message(s)", out.RunID, len(task.MessageIDs)))

	if in.AckStart {
		uc.announce(ctx, task)
	}

	draft := domain.MemoryDraft{
		StartedAt:   startedAt,
		At:          startedAt,
		Instruction: task.Instruction,
		MessageIDs:  task.MessageIDs,
		Timestamps:  task.Timestamps,
		Texts:       task.Texts,
		ChatID:      task.ChatID,
	}
	if err := uc.store.Reserve(ctx, draft); err != nil {
		uc.logger.Error(primary, "memory", fmt.Sprintf("reserve: %v", err))
	}

	result, files := uc.work(ctx, task, out.RunID, in.StaleAfter)

	out.Delivered = uc.deliver(ctx, task, result, files)
	names := fileNames(files)
	if !out.Delivered {
		result = DeliveryFailedPrefix + result
		names = nil
	}
	out.Result = result
	out.OutputFiles = files

	// Interrupts collected during the run join this task.
	interrupts, err := uc.store.ListInterrupts(ctx)
	if err != nil {
		uc.logger.Error(primary, "interrupt", fmt.Sprintf("list: %v", err))
	}
	ids := slices.Clone(task.MessageIDs)
	timestamps := slices.Clone(task.Timestamps)
	texts := slices.Clone(task.Texts)
	for _, p := range interrupts {
		if slices.Contains(ids, p.MessageID) {
			continue
		}
		ids = append(ids, p.MessageID)
		timestamps = append(timestamps, p.Timestamp)
		texts = append(texts, p.Text)
		out.Drained = append(out.Drained, p.MessageID)
	}

	draft.At = uc.clock.Now()
	draft.Result = result
	draft.Files = names
	draft.MessageIDs = ids
	draft.Timestamps = timestamps
	draft.Texts = texts
	if err := uc.store.Finalize(ctx, draft); err != nil {
		uc.logger.Error(primary, "memory", fmt.Sprintf("finalize: %v", err))
	}

	if err := uc.store.MarkProcessed(ctx, ids); err != nil {
		return nil, fmt.Errorf("mark processed: %w", err)
	}
	if len(interrupts) > 0 {
		if err := uc.store.ClearInterrupts(ctx); err != nil {
			uc.logger.Error(primary, "interrupt", fmt.Sprintf("clear: %v", err))
		}
	}

	uc.logger.Info(primary, "run", fmt.Sprintf("finished run %s (delivered=%t, drained=%d)", out.RunID, out.Delivered, len(out.Drained)))
	out.Status = RunDone
	return out, nil
}

func (uc *RunTask) announce(ctx context.Context, task *domain.CombinedTask) {
	if uc.sender == nil {
		return
	}
	text := "🔄 Started working"
	if n := len(task.MessageIDs); n > 1 {
		text = fmt.Sprintf("🔄 Started working (%d requests merged)", n)
	}
	if err := uc.sender.Send(ctx, task.ChatID, text, nil); err != nil {
		uc.logger.Warn(task.PrimaryID(), "send", fmt.Sprintf("start notice: %v", err))
	}
}

// work runs the worker and turns every failure, panics included, into result text.
func (uc *RunTask) work(ctx context.Context, task *domain.CombinedTask, runID string, staleAfter time.Duration) (result string, files []string) {
	primary := task.PrimaryID()

	prior, err := uc.store.LoadAll(ctx)
	if err != nil {
		uc.logger.Warn(primary, "memory", fmt.Sprintf("load prior memory: %v", err))
	}
	prior = slices.DeleteFunc(prior, func(m *domain.TaskMemory) bool {
		return slices.Contains(task.MessageIDs, m.MessageID)
	})

	inputs := make([]string, 0, len(task.Attachments))
	for _, a := range task.Attachments {
		inputs = append(inputs, a.Path)
	}

	hooks := &leaseHooks{
		heartbeat:  NewHeartbeat(uc.store, uc.clock, uc.logger),
		poll:       NewPollInterrupts(uc.store, uc.transport, uc.clock, uc.logger),
		staleAfter: staleAfter,
	}

	out, err := runWorker(ctx, uc.worker, domain.WorkerInput{
		Hooks:       hooks,
		Instruction: task.Instruction,
		Dir:         domain.TaskDir(uc.dataDir, primary),
		RunID:       runID,
		PriorMemory: prior,
		Inputs:      inputs,
	})
	if err != nil {
		uc.logger.Error(primary, "worker", err.Error())
		return WorkerErrorPrefix + err.Error(), nil
	}
	result = out.Result
	if strings.TrimSpace(result) == "" {
		result = EmptyResult
	}
	return result, out.OutputFiles
}

func runWorker(ctx context.Context, worker domain.Worker, in domain.WorkerInput) (out *domain.WorkerOutput, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	out, err = worker.Run(ctx, in)
	if err == nil && out == nil {
		err = errors.New("worker returned no output")
	}
	return out, err
}

// deliver sends the result and records it as an outbound message.
func (uc *RunTask) deliver(ctx context.Context, task *domain.CombinedTask, result string, files []string) bool {
	primary := task.PrimaryID()
	if uc.sender == nil {
		uc.logger.Warn(primary, "send", domain.ErrNoSender.Error())
		return false
	}
	if err := uc.sender.Send(ctx, task.ChatID, result, files); err != nil {
		uc.logger.Error(primary, "send", err.Error())
		return false
	}

	rec := domain.NewOutboundRecord(task.ChatID, result, task.MessageIDs, fileNames(files), uc.clock.Now())
	if _, err := uc.store.Append(ctx, rec); err != nil {
		uc.logger.Warn(primary, "send", fmt.Sprintf("record outbound message: %v", err))
	}
	return true
}

func fileNames(paths []string) []string {
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	return names
}

// leaseHooks gives the worker the heartbeat and interrupt poll of the running lease.
type leaseHooks struct {
	heartbeat  *Heartbeat
	poll       *PollInterrupts
	staleAfter time.Duration
}

func (h *leaseHooks) Heartbeat(ctx context.Context) error {
	_, err := h.heartbeat.Execute(ctx, HeartbeatInput{})
	return err
}

func (h *leaseHooks) PollInterrupts(ctx context.Context) ([]domain.PendingInterrupt, error) {
	out, err := h.poll.Execute(ctx, PollInterruptsInput{StaleAfter: h.staleAfter})
	if err != nil {
		return nil, err
	}
	return out.Pending, nil
}
