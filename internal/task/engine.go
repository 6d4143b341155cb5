package task

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/agentkit/internal/domain"
	"github.com/phrazzld/agentkit/internal/events"
	"github.com/phrazzld/agentkit/internal/platform/logger"
	"github.com/phrazzld/agentkit/internal/redact"
	"github.com/phrazzld/agentkit/internal/store"
	"github.com/phrazzld/agentkit/internal/upstream"
)

// Store is the persistence the engine depends on.
type Store interface {
	Load(ctx context.Context) *domain.Snapshot
	Save(ctx context.Context, snap *domain.Snapshot, opts ...store.SaveOption) error
	DeleteContentCache(ctx context.Context, key string) error
}

// Config holds configuration for the engine. Zero values fall back to
// DefaultConfig.
type Config struct {
	// Concurrency is the maximum number of tasks running at once.
	Concurrency int

	// MaxRetries is the retry ceiling. A task whose retry count reaches it
	// is discarded instead of re-queued.
	MaxRetries int

	// ZombieTimeout is how long a task may stay running before the loop
	// forces it to FAILED.
	ZombieTimeout time.Duration

	// ActivePollInterval is the delay between cycles while tasks are running.
	ActivePollInterval time.Duration

	// IdlePollInterval is the delay between cycles while nothing is running.
	IdlePollInterval time.Duration

	// Retention is how long SUCCESS and DISCARDED tasks stay queryable in
	// memory. The persisted snapshot drops them on the next compacting save.
	Retention time.Duration

	// Now overrides the clock used for claim and sweep timestamps.
	Now func() time.Time
}

// DefaultConfig returns a Config with reasonable defaults
func DefaultConfig() Config {
	return Config{
		Concurrency:        3,
		MaxRetries:         3,
		ZombieTimeout:      5 * time.Minute,
		ActivePollInterval: 500 * time.Millisecond,
		IdlePollInterval:   2 * time.Second,
		Retention:          15 * time.Minute,
	}
}

func (c Config) withDefaults() (Config, error) {
	if c.Concurrency < 0 || c.MaxRetries < 0 || c.ZombieTimeout < 0 ||
		c.ActivePollInterval < 0 || c.IdlePollInterval < 0 || c.Retention < 0 {
		return c, fmt.Errorf("%w: values must not be negative", ErrInvalidConfig)
	}
	def := DefaultConfig()
	if c.Concurrency == 0 {
		c.Concurrency = def.Concurrency
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.ZombieTimeout == 0 {
		c.ZombieTimeout = def.ZombieTimeout
	}
	if c.ActivePollInterval == 0 {
		c.ActivePollInterval = def.ActivePollInterval
	}
	if c.IdlePollInterval == 0 {
		c.IdlePollInterval = def.IdlePollInterval
	}
	if c.Retention == 0 {
		c.Retention = def.Retention
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c, nil
}

// Stats is a point-in-time view of the engine.
type Stats struct {
	Running     bool                                 `json:"running"`
	Active      int                                  `json:"active"`
	Concurrency int                                  `json:"concurrency"`
	Queues      map[string]map[domain.TaskStatus]int `json:"queues"`
	Completed   uint64                               `json:"completed"`
	Failed      uint64                               `json:"failed"`
	Discarded   uint64                               `json:"discarded"`
}

// activeEntry is a slot in the active-task set.
type activeEntry struct {
	token     string
	queue     string
	startedAt time.Time
	cancel    context.CancelFunc
}

// claim is a dispatched task together with what its goroutine needs.
type claim struct {
	token  string
	task   *domain.Task
	worker Worker
	ctx    context.Context
}

// effects collects what a locked section decided, to be carried out after
// the lock is released.
type effects struct {
	events []events.Event
	purge  []string
}

// Engine schedules queued tasks onto registered workers.
type Engine struct {
	cfg      Config
	store    Store
	registry *Registry
	emitter  events.Emitter
	logger   *slog.Logger

	// baseCtx parents every task context. It is only cancelled when
	// Shutdown gives up waiting.
	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu        sync.Mutex
	snap      *domain.Snapshot
	active    map[string]activeEntry
	running   bool
	stopCh    chan struct{}
	loopDone  chan struct{}
	completed uint64
	failed    uint64
	discarded uint64

	wake     chan struct{}
	inflight sync.WaitGroup
}

// NewEngine creates a stopped engine with an empty snapshot. Call Load to
// restore persisted tasks before Start.
func NewEngine(cfg Config, st Store, registry *Registry, emitter events.Emitter, logger *slog.Logger) (*Engine, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	if st == nil || registry == nil || emitter == nil || logger == nil {
		return nil, fmt.Errorf("%w: store, registry, emitter and logger are required", ErrInvalidConfig)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:        cfg,
		store:      st,
		registry:   registry,
		emitter:    emitter,
		logger:     logger.With("component", "task_engine"),
		baseCtx:    ctx,
		cancelBase: cancel,
		snap:       domain.NewSnapshot(),
		active:     make(map[string]activeEntry),
		wake:       make(chan struct{}, 1),
	}, nil
}

// Load replaces the in-memory snapshot with the persisted one. Tasks that
// were running when the process stopped are put back in their queue
// without a retry penalty.
func (e *Engine) Load(ctx context.Context) error {
	snap := e.store.Load(ctx)
	now := e.cfg.Now()

	recovered := 0
	snap.Each(func(t *domain.Task) {
		if t.Status != domain.TaskStatusRunning {
			return
		}
		if err := t.Transition(domain.TaskStatusQueued, now); err == nil {
			t.StartedAt = nil
			recovered++
		}
	})

	e.mu.Lock()
	if e.running || len(e.active) > 0 {
		e.mu.Unlock()
		return ErrEngineRunning
	}
	e.snap = snap
	var toSave *domain.Snapshot
	if recovered > 0 {
		toSave = e.touchLocked()
	}
	counts := snap.Count()
	e.mu.Unlock()

	e.logger.Info("recovered queue snapshot",
		"queued", counts[domain.TaskStatusQueued],
		"failed", counts[domain.TaskStatusFailed],
		"reset_running", recovered)

	if toSave != nil {
		e.persist(toSave, false)
	}
	return nil
}

// Enqueue adds a task to the back of queue and returns its id.
func (e *Engine) Enqueue(ctx context.Context, queue string, payload interface{}, sourceID string) (string, error) {
	t, err := domain.NewTask(queue, payload, sourceID)
	if err != nil {
		return "", err
	}

	if _, ok := e.registry.Get(queue); !ok {
		e.logger.Warn("no worker registered for queue, task will wait", "queue", queue, "task_id", t.ID)
	}

	e.mu.Lock()
	e.snap.Append(t)
	ev := taskEvent(events.TaskAdded, t)
	snap := e.touchLocked()
	e.mu.Unlock()

	e.persist(snap, false)
	e.emitter.Emit(ctx, ev)
	logger.FromContextOr(ctx, e.logger).Info("task enqueued", "task_id", t.ID, "queue", queue)
	e.signal()
	return t.ID, nil
}

// Start moves the engine to RUNNING and starts the loop. Starting a running
// engine does nothing.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	stop := make(chan struct{})
	done := make(chan struct{})
	prev := e.loopDone
	e.stopCh, e.loopDone = stop, done
	e.mu.Unlock()

	e.logger.Info("engine started",
		"concurrency", e.cfg.Concurrency,
		"max_retries", e.cfg.MaxRetries,
		"queues", e.registry.Queues())
	e.emitter.Emit(e.baseCtx, events.Event{Name: events.EngineStarted})

	go func() {
		// A loop from a previous run may still be finishing its last cycle.
		if prev != nil {
			<-prev
		}
		e.loop(stop, done)
	}()
}

// Stop moves the engine to STOPPED. No further tasks are claimed; tasks
// already dispatched keep running and their results are still applied.
func (e *Engine) Stop() {
	if !e.halt() {
		return
	}
	e.logger.Info("engine stopped")
	e.emitter.Emit(e.baseCtx, events.Event{Name: events.EngineStopped})
}

// IsRunning reports whether the engine is RUNNING.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Shutdown stops the engine and waits for the loop and every dispatched
// task to finish. When ctx ends first, task contexts are cancelled and
// ctx.Err() is returned.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.Stop()

	done := make(chan struct{})
	go func() {
		e.mu.Lock()
		loopDone := e.loopDone
		e.mu.Unlock()
		if loopDone != nil {
			<-loopDone
		}
		e.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("engine shut down")
		return nil
	case <-ctx.Done():
		e.cancelBase()
		e.logger.Warn("engine shutdown timed out, cancelled in-flight tasks", "error", ctx.Err())
		return ctx.Err()
	}
}

// Stats returns counts per queue and status plus engine counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	queues := make(map[string]map[domain.TaskStatus]int, len(e.snap.Queues))
	for _, name := range e.registry.Queues() {
		queues[name] = make(map[domain.TaskStatus]int)
	}
	for name, tasks := range e.snap.Queues {
		counts, ok := queues[name]
		if !ok {
			counts = make(map[domain.TaskStatus]int)
			queues[name] = counts
		}
		for _, t := range tasks {
			counts[t.Status]++
		}
	}

	return Stats{
		Running:     e.running,
		Active:      len(e.active),
		Concurrency: e.cfg.Concurrency,
		Queues:      queues,
		Completed:   e.completed,
		Failed:      e.failed,
		Discarded:   e.discarded,
	}
}

// Lookup returns a copy of the task with the given id.
func (e *Engine) Lookup(id string) (*domain.Task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, tasks := range e.snap.Queues {
		for _, t := range tasks {
			if t.ID == id {
				return t.Clone(), true
			}
		}
	}
	return nil, false
}

// Snapshot returns a copy of the in-memory snapshot.
func (e *Engine) Snapshot() *domain.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap.Clone()
}

func (e *Engine) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}

		busy := e.cycle()

		delay := e.cfg.IdlePollInterval
		if busy {
			delay = e.cfg.ActivePollInterval
		}
		timer := time.NewTimer(delay)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-e.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// cycle runs one scheduler pass and reports whether tasks are active.
func (e *Engine) cycle() bool {
	now := e.cfg.Now()
	var fx effects

	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return false
	}
	changed := e.requeueParkedLocked(now, &fx)
	if e.pruneFinishedLocked(now) {
		changed = true
	}
	if e.sweepZombiesLocked(now, &fx) {
		changed = true
	}
	claims := e.claimLocked(now, &fx)
	var snap *domain.Snapshot
	if changed || len(claims) > 0 {
		snap = e.touchLocked()
	}
	e.inflight.Add(len(claims))
	busy := len(e.active) > 0
	e.mu.Unlock()

	if snap != nil {
		e.persist(snap, false)
	}
	e.apply(fx)
	for _, c := range claims {
		go e.run(c)
	}
	if len(claims) > 0 {
		// Other workers may still have queued tasks and free slots.
		e.signal()
	}
	return busy
}

// requeueParkedLocked returns FAILED tasks to the back of their queue, or
// discards them once they reached the retry ceiling.
func (e *Engine) requeueParkedLocked(now time.Time, fx *effects) bool {
	changed := false
	for _, name := range sortedQueues(e.snap) {
		var parked []*domain.Task
		for _, t := range e.snap.Queues[name] {
			if t.Status == domain.TaskStatusFailed {
				parked = append(parked, t)
			}
		}
		for _, t := range parked {
			if t.Retries >= e.cfg.MaxRetries {
				if err := t.Transition(domain.TaskStatusDiscarded, now); err != nil {
					continue
				}
				e.discarded++
				fx.events = append(fx.events, taskEvent(events.TaskDiscarded, t))
				fx.purge = append(fx.purge, t.ID)
				e.logger.Warn("discarded task after reaching retry limit",
					"task_id", t.ID, "queue", name, "retries", t.Retries)
			} else {
				if err := t.Transition(domain.TaskStatusQueued, now); err != nil {
					continue
				}
				e.snap.MoveToBack(name, t.ID)
				e.logger.Info("re-queued failed task", "task_id", t.ID, "queue", name, "retries", t.Retries)
			}
			changed = true
		}
	}
	return changed
}

// pruneFinishedLocked drops terminal tasks older than the retention window
// from memory.
func (e *Engine) pruneFinishedLocked(now time.Time) bool {
	removed := e.snap.PruneTerminal(now.Add(-e.cfg.Retention))
	if removed > 0 {
		e.logger.Debug("pruned finished tasks", "count", removed)
	}
	return removed > 0
}

// sweepZombiesLocked forces tasks that have been running for longer than
// the zombie timeout to FAILED and releases their slots.
func (e *Engine) sweepZombiesLocked(now time.Time, fx *effects) bool {
	changed := false
	e.snap.Each(func(t *domain.Task) {
		if t.Status != domain.TaskStatusRunning || t.StartedAt == nil {
			return
		}
		if now.Sub(*t.StartedAt) < e.cfg.ZombieTimeout {
			return
		}
		if entry, ok := e.active[t.ID]; ok {
			entry.cancel()
			delete(e.active, t.ID)
		}
		t.Retries++
		t.LastError = fmt.Sprintf("task exceeded zombie timeout of %s", e.cfg.ZombieTimeout)
		if err := t.Transition(domain.TaskStatusFailed, now); err != nil {
			return
		}
		e.failed++
		ev := taskEvent(events.TaskFailed, t)
		ev.WillRetry = t.Retries < e.cfg.MaxRetries
		fx.events = append(fx.events, ev)
		e.logger.Warn("swept zombie task",
			"task_id", t.ID,
			"queue", t.QueueName,
			"retries", t.Retries,
			"running_for", now.Sub(*t.StartedAt).String())
		changed = true
	})
	return changed
}

// claimLocked fills free slots, one task per worker in registration order.
func (e *Engine) claimLocked(now time.Time, fx *effects) []*claim {
	slots := e.cfg.Concurrency - len(e.active)
	var claims []*claim
	for _, w := range e.registry.Workers() {
		if slots <= 0 {
			break
		}
		t, ok := e.snap.NextQueued(w.QueueName())
		if !ok {
			continue
		}
		if err := t.Transition(domain.TaskStatusRunning, now); err != nil {
			e.logger.Error("failed to claim task", "task_id", t.ID, "error", err)
			continue
		}

		ctx, cancel := context.WithCancel(e.baseCtx)
		token := uuid.NewString()
		e.active[t.ID] = activeEntry{token: token, queue: t.QueueName, startedAt: now, cancel: cancel}
		claims = append(claims, &claim{token: token, task: t.Clone(), worker: w, ctx: ctx})
		fx.events = append(fx.events, taskEvent(events.TaskStarted, t))
		slots--
	}
	return claims
}

// run executes one claimed task and applies its result.
func (e *Engine) run(c *claim) {
	defer e.inflight.Done()

	log := e.logger.With(
		"task_id", c.task.ID,
		"queue", c.task.QueueName,
		"retries", c.task.Retries,
	)
	ctx := logger.WithLogger(c.ctx, log)

	log.Info("processing task")
	start := time.Now()
	result, err := e.process(ctx, log, c)
	log = log.With("duration_ms", time.Since(start).Milliseconds())

	e.finish(log, c, result, err)
}

func (e *Engine) process(ctx context.Context, log *slog.Logger, c *claim) (result *domain.Task, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("worker panicked", "panic", r, "stack", string(debug.Stack()))
			result, err = nil, fmt.Errorf("%w: %v", ErrWorkerPanic, r)
		}
	}()
	return c.worker.Process(ctx, *c.task)
}

// finish applies a worker outcome to the snapshot, releases the slot,
// persists and notifies.
func (e *Engine) finish(log *slog.Logger, c *claim, result *domain.Task, err error) {
	now := e.cfg.Now()
	var fx effects
	compact := false
	paused := false

	e.mu.Lock()
	entry, ok := e.active[c.task.ID]
	if !ok || entry.token != c.token {
		e.mu.Unlock()
		log.Warn("ignoring result of a task that is no longer active", "error", redact.Error(err))
		return
	}
	delete(e.active, c.task.ID)
	entry.cancel()

	t, found := e.snap.Find(entry.queue, c.task.ID)
	if !found || t.Status != domain.TaskStatusRunning {
		e.mu.Unlock()
		log.Error("active task missing from snapshot")
		e.signal()
		return
	}

	switch {
	case err == nil:
		if result != nil && result.Payload != nil {
			t.Payload = append(t.Payload[:0:0], result.Payload...)
		}
		t.LastError = ""
		_ = t.Transition(domain.TaskStatusSuccess, now)
		e.completed++
		ev := taskEvent(events.TaskCompleted, t)
		ev.Result = append(ev.Result, t.Payload...)
		fx.events = append(fx.events, ev)
		fx.purge = append(fx.purge, t.ID)
		compact = true
		log.Info("task completed")

	case upstream.IsFatal(err):
		t.LastError = redact.Error(err)
		_ = t.Transition(domain.TaskStatusFailed, now)
		e.failed++
		ev := taskEvent(events.TaskFailed, t)
		ev.Fatal = true
		fx.events = append(fx.events, ev)
		if e.running {
			e.running = false
			close(e.stopCh)
			paused = true
		}
		log.Error("fatal upstream failure", "error", t.LastError)

	default:
		t.Retries++
		t.LastError = redact.Error(err)
		if t.Retries < e.cfg.MaxRetries {
			_ = t.Transition(domain.TaskStatusQueued, now)
			e.snap.MoveToBack(t.QueueName, t.ID)
			e.failed++
			ev := taskEvent(events.TaskFailed, t)
			ev.WillRetry = true
			fx.events = append(fx.events, ev)
			log.Warn("task failed, will retry", "error", t.LastError, "retries", t.Retries)
		} else {
			_ = t.Transition(domain.TaskStatusDiscarded, now)
			e.discarded++
			fx.events = append(fx.events, taskEvent(events.TaskDiscarded, t))
			fx.purge = append(fx.purge, t.ID)
			log.Error("task discarded after reaching retry limit", "error", t.LastError, "retries", t.Retries)
		}
	}

	if paused {
		fx.events = append(fx.events, events.Event{
			Name:      events.EnginePaused,
			TaskID:    t.ID,
			QueueName: t.QueueName,
			Fatal:     true,
			Error:     t.LastError,
		})
	}
	snap := e.touchLocked()
	e.mu.Unlock()

	e.persist(snap, compact)
	e.apply(fx)
	if paused {
		log.Error("engine paused: upstream exhausted, operator attention required")
	}
	e.signal()
}

// apply carries out the side effects collected under the lock.
func (e *Engine) apply(fx effects) {
	for _, id := range fx.purge {
		if err := e.store.DeleteContentCache(context.Background(), id); err != nil {
			e.logger.Warn("failed to delete content cache", "task_id", id, "error", redact.Error(err))
		}
	}
	for _, ev := range fx.events {
		e.emitter.Emit(e.baseCtx, ev)
	}
}

// halt moves the engine to STOPPED and reports whether it was running.
func (e *Engine) halt() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return false
	}
	e.running = false
	close(e.stopCh)
	return true
}

// touchLocked bumps the snapshot version and returns a copy to persist.
func (e *Engine) touchLocked() *domain.Snapshot {
	e.snap.Version++
	return e.snap.Clone()
}

// persist saves snap. Failures are logged; the in-memory state stays
// authoritative until the next successful save.
func (e *Engine) persist(snap *domain.Snapshot, compact bool) {
	var opts []store.SaveOption
	if compact {
		opts = append(opts, store.WithCompaction())
	}
	if err := e.store.Save(context.Background(), snap, opts...); err != nil {
		e.logger.Error("failed to persist queue snapshot",
			"version", snap.Version,
			"error", redact.Error(err))
	}
}

func (e *Engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func taskEvent(name events.Name, t *domain.Task) events.Event {
	return events.Event{
		Name:      name,
		TaskID:    t.ID,
		QueueName: t.QueueName,
		Status:    string(t.Status),
		Retries:   t.Retries,
		Error:     t.LastError,
	}
}

func sortedQueues(snap *domain.Snapshot) []string {
	names := make([]string, 0, len(snap.Queues))
	for name := range snap.Queues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
