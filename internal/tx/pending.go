package tx

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"createfi_go/internal/domain"
	"createfi_go/internal/infra"
)

// Status is the progress of a submitted transaction.
type Status int

const (
	Submitted Status = iota
	InBlock
	Finalized
	Rejected
)

func (s Status) String() string {
	switch s {
	case Submitted:
		return "Submitted"
	case InBlock:
		return "InBlock"
	case Finalized:
		return "Finalized"
	case Rejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transition can follow.
func (s Status) Terminal() bool {
	return s == Finalized || s == Rejected
}

// Update is one observed transition.
type Update struct {
	Status    Status
	BlockHash string
	Reason    string
	At        time.Time
}

// Pending tracks one submitted call from acceptance to a terminal status.
// Transitions are monotonic and reach observers in order.
type Pending struct {
	ID          uuid.UUID
	Module      string
	Method      string
	SubmittedAt time.Time

	// deliver serializes transitions with observer registration.
	deliver sync.Mutex

	mu        sync.Mutex
	current   Update
	observers map[uint64]func(Update)
	nextObs   uint64
	done      chan struct{}
}

func newPending(call domain.Call, now time.Time) *Pending {
	return &Pending{
		ID:          uuid.New(),
		Module:      call.Module,
		Method:      call.Method,
		SubmittedAt: now,
		current:     Update{Status: Submitted, At: now},
		observers:   make(map[uint64]func(Update)),
		done:        make(chan struct{}),
	}
}

// Status returns the current status.
func (p *Pending) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.Status
}

// Current returns the latest update.
func (p *Pending) Current() Update {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Done is closed once the transaction is Finalized or Rejected.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Watch calls fn with the current update and then with every later
// transition, in order. fn must not call Watch on the same Pending.
func (p *Pending) Watch(fn func(Update)) (cancel func()) {
	p.deliver.Lock()
	p.mu.Lock()
	p.nextObs++
	id := p.nextObs
	p.observers[id] = fn
	cur := p.current
	p.mu.Unlock()
	fn(cur)
	p.deliver.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.observers, id)
			p.mu.Unlock()
		})
	}
}

// Wait blocks until a terminal status or ctx is done. A rejection is returned
// as a KindRejected error carrying the ledger's reason.
func (p *Pending) Wait(ctx context.Context) (Update, error) {
	select {
	case <-p.done:
	case <-ctx.Done():
		return p.Current(), ctx.Err()
	}
	u := p.Current()
	if u.Status == Rejected {
		return u, domain.NewError(domain.KindRejected, nil, "%s.%s: %s", p.Module, p.Method, u.Reason)
	}
	return u, nil
}

// advance applies next if it moves the transaction forward and notifies
// observers. It reports whether the status changed.
func (p *Pending) advance(next Update) bool {
	p.deliver.Lock()
	defer p.deliver.Unlock()

	p.mu.Lock()
	if p.current.Status.Terminal() || next.Status <= p.current.Status {
		p.mu.Unlock()
		return false
	}
	p.current = next
	fns := make([]func(Update), 0, len(p.observers))
	for id := uint64(1); id <= p.nextObs; id++ {
		if fn, ok := p.observers[id]; ok {
			fns = append(fns, fn)
		}
	}
	if next.Status.Terminal() {
		close(p.done)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(next)
	}
	return true
}

// follow drives the state machine from the ledger's status stream until a
// terminal status, then releases the watch.
func (p *Pending) follow(w domain.TxWatch, metrics *infra.Metrics, logger *slog.Logger) {
	defer w.Close()

	name := p.Module + "." + p.Method
	for st := range w.Updates() {
		next, ok := translate(st)
		if !ok {
			logger.Debug("Extrinsic status", slog.String("call", name), slog.String("status", string(st.Kind)))
			continue
		}
		next.At = time.Now()
		if !p.advance(next) {
			continue
		}

		switch next.Status {
		case InBlock:
			metrics.RecordInBlock(next.At.Sub(p.SubmittedAt))
			logger.Info("✅ Included in block", slog.String("call", name), slog.String("block", next.BlockHash))
		case Finalized:
			metrics.RecordFinalized()
			logger.Info("✅ Finalized", slog.String("call", name), slog.String("block", next.BlockHash))
			return
		case Rejected:
			metrics.RecordRejected()
			logger.Warn("❌ Rejected", slog.String("call", name), slog.String("reason", next.Reason))
			return
		}
	}

	if p.advance(Update{Status: Rejected, Reason: "connection lost before finalization", At: time.Now()}) {
		metrics.RecordRejected()
		logger.Warn("❌ Status stream ended early", slog.String("call", name))
	}
}

// translate maps a node status onto the transaction state machine. Statuses
// that do not move the machine report false.
func translate(st domain.TxStatus) (Update, bool) {
	switch st.Kind {
	case domain.TxInBlock:
		return Update{Status: InBlock, BlockHash: st.BlockHash}, true
	case domain.TxFinalized:
		return Update{Status: Finalized, BlockHash: st.BlockHash}, true
	case domain.TxInvalid, domain.TxDropped, domain.TxUsurped, domain.TxFinalityTimeout:
		reason := st.Reason
		if reason == "" {
			reason = string(st.Kind)
		}
		return Update{Status: Rejected, BlockHash: st.BlockHash, Reason: reason}, true
	default:
		// ready, future, broadcast and retracted leave the status as is.
		return Update{}, false
	}
}
