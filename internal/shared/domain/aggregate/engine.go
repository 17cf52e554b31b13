package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gofrs/uuid/v5"

	"github.com/snackstand/catalog-services/internal/shared/domain/events"
)

// ErrEngineClosed is returned for commands submitted after Close.
var ErrEngineClosed = errors.New("aggregate engine closed")

// ErrorPayload is the payload of the error event published for every failed
// command.
type ErrorPayload struct {
	Command string   `json:"command"`
	Code    int      `json:"code"`
	Reasons []string `json:"reasons"`
}

// Engine routes commands to per-instance workers. Commands addressed to the
// same id are strictly serialized; workers for different ids run fully in
// parallel. Snapshot reads interleave freely with in-flight writes.
type Engine[R Root[R]] struct {
	kind    string
	newRoot func(id uuid.UUID) R
	log     EventLog
	pub     Publisher
	logger  *slog.Logger

	mu      sync.Mutex
	workers map[uuid.UUID]*worker[R]
	closed  bool

	// sendMu fences mailbox submissions against shutdown: Close waits for
	// in-flight sends before signalling done, so no task is ever stranded
	// behind an exited worker.
	sendMu sync.RWMutex
	done   chan struct{}
}

// NewEngine creates an engine for one entity kind. newRoot must return a
// zero-valued state for the given id.
func NewEngine[R Root[R]](kind string, newRoot func(id uuid.UUID) R, log EventLog, pub Publisher, logger *slog.Logger) *Engine[R] {
	return &Engine[R]{
		kind:    kind,
		newRoot: newRoot,
		log:     log,
		pub:     pub,
		logger:  logger.With("component", "engine", "kind", kind),
		workers: make(map[uuid.UUID]*worker[R]),
		done:    make(chan struct{}),
	}
}

// Kind returns the entity kind namespace this engine owns.
func (e *Engine[R]) Kind() string {
	return e.kind
}

type task[R Root[R]] struct {
	ctx      context.Context
	cmd      Command
	expected int64
	meta     events.Metadata
	reply    chan taskResult
}

type taskResult struct {
	version int64
	events  []*events.Envelope
	err     error
}

type worker[R Root[R]] struct {
	id      uuid.UUID
	mailbox chan *task[R]

	// loadMu serializes the replay between the worker and snapshot reads.
	// loaded is set only on success, so a failed replay is retried on the
	// next task instead of sticking for the worker's lifetime.
	loadMu sync.Mutex
	loaded bool

	// stateMu guards root and version so snapshot reads never observe a
	// torn state while the worker is applying a batch.
	stateMu sync.RWMutex
	root    R
	version int64
}

// Handle submits a command for one aggregate instance and blocks until it is
// processed or ctx is done. On success it returns the new version and the
// committed events. On failure it returns a typed *Error, publishes exactly
// one error event, and leaves state untouched.
func (e *Engine[R]) Handle(ctx context.Context, id uuid.UUID, cmd Command, expectedVersion int64, meta events.Metadata) (int64, []*events.Envelope, error) {
	w, err := e.worker(id)
	if err != nil {
		return 0, nil, err
	}

	t := &task[R]{ctx: ctx, cmd: cmd, expected: expectedVersion, meta: meta, reply: make(chan taskResult, 1)}

	e.sendMu.RLock()
	select {
	case <-e.done:
		e.sendMu.RUnlock()
		return 0, nil, ErrEngineClosed
	default:
	}
	select {
	case w.mailbox <- t:
		e.sendMu.RUnlock()
	case <-ctx.Done():
		e.sendMu.RUnlock()
		return 0, nil, ctx.Err()
	}

	select {
	case res := <-t.reply:
		return res.version, res.events, res.err
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

// CurrentState returns a consistent snapshot of one aggregate's state and
// version. It is side-effect-free and safe to call concurrently with pending
// writes: live instances are read under the snapshot lock, untouched
// instances are replayed from the event log without spawning a worker.
func (e *Engine[R]) CurrentState(ctx context.Context, id uuid.UUID) (R, int64, error) {
	var zero R

	e.mu.Lock()
	w := e.workers[id]
	e.mu.Unlock()

	if w != nil {
		if err := e.ensureLoaded(ctx, w); err != nil {
			return zero, 0, NewTransient(err.Error())
		}
		w.stateMu.RLock()
		defer w.stateMu.RUnlock()
		if w.version == 0 {
			return zero, 0, NewNotFound(fmt.Sprintf("%s %s does not exist", e.kind, id))
		}
		return w.root.Clone(), w.version, nil
	}

	root, version, err := e.replay(ctx, id)
	if err != nil {
		return zero, 0, NewTransient(err.Error())
	}
	if version == 0 {
		return zero, 0, NewNotFound(fmt.Sprintf("%s %s does not exist", e.kind, id))
	}
	return root, version, nil
}

// IDs enumerates all known aggregate ids for this kind.
func (e *Engine[R]) IDs(ctx context.Context) ([]uuid.UUID, error) {
	return e.log.IDs(ctx, e.kind)
}

// Close stops all workers. In-flight commands finish; later commands fail
// with ErrEngineClosed.
func (e *Engine[R]) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	// Wait for in-flight submissions, then signal the workers. Anything
	// already queued is still processed before the workers exit.
	e.sendMu.Lock()
	close(e.done)
	e.sendMu.Unlock()
}

func (e *Engine[R]) worker(id uuid.UUID) (*worker[R], error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrEngineClosed
	}
	if w, ok := e.workers[id]; ok {
		return w, nil
	}
	w := &worker[R]{id: id, mailbox: make(chan *task[R], 16)}
	e.workers[id] = w
	go e.run(w)
	return w, nil
}

func (e *Engine[R]) run(w *worker[R]) {
	for {
		select {
		case t := <-w.mailbox:
			t.reply <- e.execute(w, t)
		case <-e.done:
			// Drain commands that were queued before shutdown.
			for {
				select {
				case t := <-w.mailbox:
					t.reply <- e.execute(w, t)
				default:
					return
				}
			}
		}
	}
}

func (e *Engine[R]) execute(w *worker[R], t *task[R]) (res taskResult) {
	// A panicking Decide or Apply must not take the worker down or leak an
	// unhandled fault across the engine boundary.
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic handling command",
				"aggregate_id", w.id,
				"command", t.cmd.CommandName(),
				"panic", r,
			)
			err := NewTransient(fmt.Sprintf("internal fault handling %s", t.cmd.CommandName()))
			e.publishError(t, w.id, err)
			res = taskResult{err: err}
		}
	}()

	if err := e.ensureLoaded(t.ctx, w); err != nil {
		typed := NewTransient(err.Error())
		e.publishError(t, w.id, typed)
		return taskResult{err: typed}
	}

	if t.expected != VersionAny && t.expected != w.version {
		err := NewConflict(t.expected, w.version)
		e.publishError(t, w.id, err)
		return taskResult{err: err}
	}

	changes, err := w.root.Decide(t.cmd)
	if err != nil {
		typed := Wrap(err)
		e.publishError(t, w.id, typed)
		return taskResult{err: typed}
	}

	envs := make([]*events.Envelope, 0, len(changes))
	for i, change := range changes {
		env, err := events.New(e.kind, w.id, change.EventType, change.Category, w.version+int64(i)+1, change.Payload, t.meta)
		if err != nil {
			typed := NewTransient(fmt.Sprintf("encode %s payload: %v", change.EventType, err))
			e.publishError(t, w.id, typed)
			return taskResult{err: typed}
		}
		envs = append(envs, env)
	}

	newVersion, err := e.log.Append(t.ctx, e.kind, w.id, w.version, envs)
	if err != nil {
		var typed *Error
		if errors.Is(err, ErrVersionConflict) {
			typed = &Error{Code: CodeConflict, Reasons: []string{
				fmt.Sprintf("event log moved past version %d", w.version),
			}}
		} else {
			typed = NewTransient(fmt.Sprintf("append events: %v", err))
		}
		e.publishError(t, w.id, typed)
		return taskResult{err: typed}
	}

	// Apply the batch to a copy first so readers never observe a partial
	// batch and a failing Apply leaves the worker's state untouched.
	next := w.root.Clone()
	for _, env := range envs {
		if err := next.Apply(env); err != nil {
			typed := NewTransient(fmt.Sprintf("apply %s: %v", env.EventType, err))
			e.publishError(t, w.id, typed)
			return taskResult{err: typed}
		}
	}

	w.stateMu.Lock()
	w.root = next
	w.version = newVersion
	w.stateMu.Unlock()

	for _, env := range envs {
		if err := e.pub.Publish(t.ctx, e.kind, env); err != nil {
			// The event log remains authoritative; a later sync pass repairs
			// any projection that missed the notification.
			e.logger.Error("failed to publish event",
				"event_id", env.EventID,
				"event_type", env.EventType,
				"error", err,
			)
		}
	}

	return taskResult{version: newVersion, events: envs}
}

// ensureLoaded replays the aggregate's history on first use. A replay that
// fails leaves the worker unloaded, so the next task retries it once the
// event log is reachable again.
func (e *Engine[R]) ensureLoaded(ctx context.Context, w *worker[R]) error {
	w.loadMu.Lock()
	defer w.loadMu.Unlock()
	if w.loaded {
		return nil
	}
	if err := e.load(ctx, w); err != nil {
		return err
	}
	w.loaded = true
	return nil
}

// load replays the aggregate's history into the worker's in-memory state.
func (e *Engine[R]) load(ctx context.Context, w *worker[R]) error {
	root, version, err := e.replay(ctx, w.id)
	if err != nil {
		return err
	}
	w.stateMu.Lock()
	w.root = root
	w.version = version
	w.stateMu.Unlock()
	return nil
}

func (e *Engine[R]) replay(ctx context.Context, id uuid.UUID) (R, int64, error) {
	root := e.newRoot(id)
	history, err := e.log.ReadAll(ctx, e.kind, id)
	if err != nil {
		var zero R
		return zero, 0, fmt.Errorf("read history for %s %s: %w", e.kind, id, err)
	}

	version := int64(0)
	for _, env := range history {
		if err := root.Apply(env); err != nil {
			var zero R
			return zero, 0, fmt.Errorf("replay %s for %s %s: %w", env.EventType, e.kind, id, err)
		}
		version = env.Version
	}
	return root, version, nil
}

func (e *Engine[R]) publishError(t *task[R], id uuid.UUID, cmdErr *Error) {
	payload := ErrorPayload{
		Command: t.cmd.CommandName(),
		Code:    cmdErr.Code,
		Reasons: cmdErr.Reasons,
	}

	env, err := events.New(e.kind, id, e.kind+".error", events.CategoryError, 0, payload, t.meta)
	if err != nil {
		e.logger.Error("failed to build error event", "command", t.cmd.CommandName(), "error", err)
		return
	}

	if err := e.pub.PublishError(t.ctx, e.kind, env); err != nil {
		e.logger.Error("failed to publish error event",
			"command", t.cmd.CommandName(),
			"error", err,
		)
	}
}
