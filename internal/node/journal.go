package node

import "context"

// ChangeLog records which setting changed and through which surface.
// *settings.SQLiteChangeLog satisfies it.
type ChangeLog interface {
	Record(ctx context.Context, id uint16, key, source string) error
}

// Observer is notified of every recorded change.
type Observer func(id uint16, key, source string)

// Journal attributes registry changes to the surface that made them and
// records them in the change log.
//
// Install Changed as the registry's global change func. Like the registry,
// a Journal is not safe for concurrent use: call it from the goroutine (or
// queue) that owns the registry.
type Journal struct {
	ctx       context.Context //nolint:containedctx // change funcs carry no context
	changes   ChangeLog
	source    string
	observers []Observer
	logger    Logger
}

// NewJournal creates a journal. Changes made outside WithSource are
// attributed to source.
func NewJournal(ctx context.Context, changes ChangeLog, source string, logger Logger) *Journal {
	return &Journal{
		ctx:     ctx,
		changes: changes,
		source:  source,
		logger:  logger,
	}
}

// Observe adds fn to the observers called after each change is recorded.
func (j *Journal) Observe(fn Observer) {
	j.observers = append(j.observers, fn)
}

// WithSource runs fn with changes attributed to source.
func (j *Journal) WithSource(source string, fn func() error) error {
	prev := j.source
	j.source = source
	defer func() { j.source = prev }()
	return fn()
}

// Changed records a change. Its signature matches settings.ChangeFunc.
func (j *Journal) Changed(id uint16, key string) {
	if j.changes != nil {
		if err := j.changes.Record(j.ctx, id, key, j.source); err != nil && j.logger != nil {
			j.logger.Warn("failed to record change", "key", key, "source", j.source, "error", err)
		}
	}
	for _, fn := range j.observers {
		fn(id, key, j.source)
	}
}
