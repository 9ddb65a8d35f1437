// Package pipeline executes an ordered list of handlers against one
// folder entity loaded exactly once.
//
// A run has two phases. The aggregation phase unions every handler's
// declared data requirement into a single projection and performs one
// load through the injected Loader. The execution phase then invokes the
// handlers in caller order against the same entity instance; mutations
// made by an earlier handler are visible to later ones, and the first
// failure aborts the rest with the error propagated untouched.
//
// Handlers queue deferred side effects (notifications, activity records)
// on the run instead of performing them; the caller drains the returned
// tasks only after the surrounding transaction has committed. A crash
// between commit and drain loses the queued effects but never leaves the
// core mutation half-applied.
package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/foldershare/folderd/internal/platform/logutil"
	"github.com/foldershare/folderd/internal/store"
)

// Handler is one pipeline step: a constraint check or an effect.
type Handler interface {
	Execute(ctx context.Context, run *Run) error
}

// RequirementDeclarer is optionally implemented by handlers that need
// columns or relations present on the loaded folder. Handlers without it
// declare the empty requirement.
type RequirementDeclarer interface {
	Requirements() Requirement
}

// Loader performs the single projection load of the folder entity.
type Loader interface {
	LoadFolder(ctx context.Context, folderID string, req Requirement) (*store.Folder, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, folderID string, req Requirement) (*store.Folder, error)

func (f LoaderFunc) LoadFolder(ctx context.Context, folderID string, req Requirement) (*store.Folder, error) {
	return f(ctx, folderID, req)
}

// DeferredTask is queued work executed by the caller after commit.
type DeferredTask func(ctx context.Context) error

// FieldChange records one field mutation applied during a run.
type FieldChange struct {
	Field  string
	Before any
	After  any
}

// Run is the shared state of one pipeline invocation. One run owns
// exclusive, sequential access to its folder instance for the duration
// of the call; runs for the same folder must never execute concurrently.
type Run struct {
	FolderID string

	// Folder is the projection-loaded entity, or nil when no row exists.
	// A missing row does not short-circuit the run: the existence
	// constraint reports it uniformly with other failures.
	Folder *store.Folder

	// Cache is request-scoped memoization shared by the handlers of this
	// run (e.g. the parsed settings tree), replacing any process-wide
	// state.
	Cache map[string]any

	changes []FieldChange
	tasks   []DeferredTask
}

// MarkChanged records that a handler changed a field; later handlers
// inspect these records to decide what to notify and log.
func (r *Run) MarkChanged(field string, before, after any) {
	r.changes = append(r.changes, FieldChange{Field: field, Before: before, After: after})
}

// Changes returns the field changes recorded so far, in order.
func (r *Run) Changes() []FieldChange {
	return r.changes
}

// Defer queues a deferred task. Tasks never run during the pipeline;
// they are handed to the caller on success.
func (r *Run) Defer(task DeferredTask) {
	r.tasks = append(r.tasks, task)
}

// Pipeline executes handlers against one folder. Handlers are ordered by
// explicit construction; the pipeline imposes no ordering of its own.
type Pipeline struct {
	loader   Loader
	handlers []Handler
	logger   *slog.Logger
}

// New creates a pipeline over the given loader and ordered handlers.
func New(loader Loader, logger *slog.Logger, handlers ...Handler) *Pipeline {
	return &Pipeline{
		loader:   loader,
		handlers: handlers,
		logger:   logutil.NoopIfNil(logger),
	}
}

// Run executes both phases and returns the run state plus the queued
// deferred tasks. On any handler failure the tasks are withheld (nil)
// and the handler's error is returned unchanged.
func (p *Pipeline) Run(ctx context.Context, folderID string) (*Run, []DeferredTask, error) {
	req := Fields(store.FolderFieldID)
	for _, h := range p.handlers {
		if d, ok := h.(RequirementDeclarer); ok {
			req = req.Union(d.Requirements())
		}
	}

	run := &Run{
		FolderID: folderID,
		Cache:    map[string]any{},
	}

	folder, err := p.loader.LoadFolder(ctx, folderID, req)
	switch {
	case err == nil:
		run.Folder = folder
	case errors.Is(err, store.ErrNotFound):
		// run anyway; the existence constraint owns "not found"
	default:
		return nil, nil, err
	}

	for _, h := range p.handlers {
		if err := h.Execute(ctx, run); err != nil {
			return run, nil, err
		}
	}

	p.logger.Debug("pipeline completed",
		"folder_id", folderID,
		"handlers", len(p.handlers),
		"changes", len(run.changes),
		"deferred_tasks", len(run.tasks))

	return run, run.tasks, nil
}

// Drain executes deferred tasks after the caller's transaction has
// committed. Task failures do not undo the committed mutation; every
// task is attempted and failures are joined.
func Drain(ctx context.Context, tasks []DeferredTask) error {
	var errs []error
	for _, task := range tasks {
		if err := task(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
