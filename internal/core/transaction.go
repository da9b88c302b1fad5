package core

import (
	"context"
	"fmt"
	"sync"

	"mdtcore/pkg/domain"
)

// Transaction groups mutations that undo as one unit. Every diagnostic
// produced inside it is merged into its sink and kept for Diagnostics.
type Transaction struct {
	svc    *Service
	ledger *domain.Ledger
	sink   *domain.Log
	diag   *domain.Log
	strict bool

	mu     sync.Mutex
	closed bool
}

// Begin opens a transaction. Without WithLedger a fresh ledger is created;
// WithoutUndo opens one that records nothing and cannot roll back. Without
// WithSink diagnostics go to the service default sink.
func (s *Service) Begin(opts ...CallOption) *Transaction {
	cfg := newCallConfig(opts)
	tx := &Transaction{
		svc:    s,
		sink:   cfg.sink,
		diag:   domain.NewLog(),
		strict: cfg.strict,
	}
	if tx.sink == nil {
		tx.sink = s.sink
	}
	if !cfg.noUndo {
		tx.ledger = cfg.ledger
		if tx.ledger == nil {
			tx.ledger = domain.NewLedger()
		}
	}
	return tx
}

// RunInTransaction runs fn in a new transaction. It commits when fn returns
// nil and rolls back on error. The returned log holds every diagnostic
// produced inside the transaction.
func (s *Service) RunInTransaction(ctx context.Context, fn func(tx *Transaction) error, opts ...CallOption) (*domain.Log, error) {
	tx := s.Begin(opts...)
	if err := ctx.Err(); err != nil {
		_ = tx.Rollback()
		return tx.diag, err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return tx.diag, fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return tx.diag, err
	}
	return tx.diag, tx.Commit()
}

// Ledger returns the undo ledger, or nil when undo was declined.
func (tx *Transaction) Ledger() *domain.Ledger { return tx.ledger }

// Sink returns the log diagnostics are merged into.
func (tx *Transaction) Sink() *domain.Log { return tx.sink }

// Diagnostics returns the entries produced inside this transaction only.
func (tx *Transaction) Diagnostics() *domain.Log { return tx.diag }

// Strict makes Commit fail with a RejectedError when anything was rejected.
func (tx *Transaction) Strict() *Transaction {
	tx.mu.Lock()
	tx.strict = true
	tx.mu.Unlock()
	return tx
}

// Closed reports whether Commit or Rollback has run.
func (tx *Transaction) Closed() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.closed
}

func (tx *Transaction) usable() error {
	if tx.Closed() {
		return domain.ErrTransactionClosed
	}
	return nil
}

// Commit closes the transaction. In strict mode any rejection rolls the
// transaction back and is returned as a RejectedError.
func (tx *Transaction) Commit() error {
	tx.mu.Lock()
	if tx.closed {
		tx.mu.Unlock()
		return domain.ErrTransactionClosed
	}
	tx.closed = true
	strict := tx.strict
	tx.mu.Unlock()

	if strict && tx.diag.HasErrors() {
		if err := tx.svc.engine.Undo(tx.ledger); err != nil {
			return fmt.Errorf("rollback rejected transaction: %w", err)
		}
		return domain.RejectedError{Log: tx.diag}
	}
	return nil
}

// Rollback reverts every recorded change and closes the transaction.
func (tx *Transaction) Rollback() error {
	tx.mu.Lock()
	if tx.closed {
		tx.mu.Unlock()
		return domain.ErrTransactionClosed
	}
	tx.closed = true
	tx.mu.Unlock()

	if tx.ledger == nil {
		return fmt.Errorf("rollback: %w: transaction opened without undo", domain.ErrUndoNotSupported)
	}
	return tx.svc.engine.Undo(tx.ledger)
}

// absorb merges a call log into the transaction log and its sink.
func (tx *Transaction) absorb(l *domain.Log) {
	if l == nil || l.Len() == 0 {
		return
	}
	tx.diag.Merge(l)
	if tx.sink != nil && tx.sink != tx.diag {
		tx.sink.Merge(l)
	}
}

func (tx *Transaction) opts(sink *domain.Log, extra ...CallOption) []CallOption {
	opts := append([]CallOption{WithSink(sink)}, extra...)
	if tx.ledger != nil {
		opts = append(opts, WithLedger(tx.ledger))
	}
	return opts
}

func (tx *Transaction) set(target domain.Mutable, facet string, value any, sink *domain.Log, extra ...CallOption) (domain.Outcome, error) {
	if tx.ledger == nil {
		return tx.svc.exec.SetPropertyNoUndo(target, facet, value, tx.opts(sink, extra...)...)
	}
	return tx.svc.exec.SetProperty(target, facet, value, tx.opts(sink, extra...)...)
}

func (tx *Transaction) setIndexed(target domain.Mutable, facet string, index, value any, sink *domain.Log, extra ...CallOption) (domain.Outcome, error) {
	if tx.ledger == nil {
		return tx.svc.exec.SetIndexedNoUndo(target, facet, index, value, tx.opts(sink, extra...)...)
	}
	return tx.svc.exec.SetIndexed(target, facet, index, value, tx.opts(sink, extra...)...)
}

func (tx *Transaction) add(into domain.Mutable, collection, channel string, args []any, sink *domain.Log) (domain.Outcome, error) {
	x := tx.svc.exec
	opts := tx.opts(sink)
	undo := tx.ledger != nil
	switch len(args) {
	case 1:
		if undo {
			return x.Add(into, collection, channel, args[0], opts...)
		}
		return x.AddNoUndo(into, collection, channel, args[0], opts...)
	case 2:
		if undo {
			return x.Add2(into, collection, channel, args[0], args[1], opts...)
		}
		return x.Add2NoUndo(into, collection, channel, args[0], args[1], opts...)
	case 3:
		if undo {
			return x.Add3(into, collection, channel, args[0], args[1], args[2], opts...)
		}
		return x.Add3NoUndo(into, collection, channel, args[0], args[1], args[2], opts...)
	}
	return domain.Outcome{}, fmt.Errorf("add to %s: %w: %d arguments", collection, domain.ErrArity, len(args))
}

// Set assigns a facet inside the transaction.
func (tx *Transaction) Set(target domain.Mutable, facet string, value any, opts ...CallOption) (domain.Outcome, error) {
	if err := tx.usable(); err != nil {
		return domain.Outcome{}, err
	}
	l := domain.NewLog()
	defer tx.absorb(l)
	return tx.set(target, facet, value, l, opts...)
}

// SetIndexed assigns an indexed facet inside the transaction.
func (tx *Transaction) SetIndexed(target domain.Mutable, facet string, index, value any, opts ...CallOption) (domain.Outcome, error) {
	if err := tx.usable(); err != nil {
		return domain.Outcome{}, err
	}
	l := domain.NewLog()
	defer tx.absorb(l)
	return tx.setIndexed(target, facet, index, value, l, opts...)
}

// Add appends a membership of one to three positional arguments.
func (tx *Transaction) Add(into domain.Mutable, collection, channel string, args ...any) (domain.Outcome, error) {
	if err := tx.usable(); err != nil {
		return domain.Outcome{}, err
	}
	l := domain.NewLog()
	defer tx.absorb(l)
	return tx.add(into, collection, channel, args, l)
}
