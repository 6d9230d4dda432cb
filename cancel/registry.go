package cancel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"pgwire/util/log"
)

var (
	RegistryClosedError = errors.New("cancel registry is closed")
	ScopeBusyError      = errors.New("another cancellable operation is in flight")
)

// Registry layers per-call cancellation under one connection's lifetime.
// Begin nests a caller's context for the duration of a single read; if that
// context fires while the scope is open, the connection's interrupt callback
// runs so the pending read unblocks. The scope only requests interruption,
// it never tears down connection state itself.
type Registry struct {
	sessionID uuid.UUID
	interrupt func()
	// requestCancel sends the wire-level cancel request for this session.
	// Column reads never ask for it; query-level callers may.
	requestCancel func(sessionID uuid.UUID)

	ctx    context.Context
	cancel context.CancelFunc
	active int32
}

// Scope is one nested cancellable operation. Release must run on every exit
// path of the call that opened it; it is idempotent.
type Scope struct {
	r        *Registry
	released chan struct{}
	once     sync.Once
}

func NewRegistry(interrupt func(), requestCancel func(sessionID uuid.UUID)) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		sessionID:     uuid.New(),
		interrupt:     interrupt,
		requestCancel: requestCancel,
		ctx:           ctx,
		cancel:        cancel,
	}
}

func (r *Registry) SessionID() uuid.UUID {
	return r.sessionID
}

// Begin registers ctx under the connection for one operation. Windows are
// single-owner, so at most one scope may be open at a time.
func (r *Registry) Begin(ctx context.Context, attemptProtocolCancel bool) (*Scope, error) {
	if r.ctx.Err() != nil {
		return nil, RegistryClosedError
	}
	if !atomic.CompareAndSwapInt32(&r.active, 0, 1) {
		return nil, ScopeBusyError
	}
	s := &Scope{r: r, released: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
			r.fire(attemptProtocolCancel)
		case <-r.ctx.Done():
		case <-s.released:
		}
	}()
	return s, nil
}

func (s *Scope) Release() {
	s.once.Do(func() {
		close(s.released)
		atomic.StoreInt32(&s.r.active, 0)
	})
}

func (r *Registry) fire(attemptProtocolCancel bool) {
	log.Debug("session %s: interrupt requested", r.sessionID)
	if r.interrupt != nil {
		r.interrupt()
	}
	if attemptProtocolCancel && r.requestCancel != nil {
		r.requestCancel(r.sessionID)
	}
}

// Close tears down the connection-wide cancellation context. Open scopes stop
// watching; Begin fails afterwards.
func (r *Registry) Close() {
	r.cancel()
}
