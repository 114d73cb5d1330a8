package events

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"staking-ledger/internal/domain"
	"staking-ledger/internal/idhash"
	"staking-ledger/internal/observability"
	"staking-ledger/internal/storage"
)

// Recorder persists committed ledger events and publishes them to a Hub.
// Failures are logged and counted; the ledger operation already committed.
type Recorder struct {
	store  storage.EventStore
	hub    *Hub
	logger *zap.Logger
	seq    atomic.Uint64
}

// NewRecorder creates a recorder. hub may be nil.
func NewRecorder(store storage.EventStore, hub *Hub, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: store, hub: hub, logger: logger}
}

// Record assigns the event id, stores e and publishes it.
func (r *Recorder) Record(ctx context.Context, e *domain.LedgerEvent) {
	e.EventID = idhash.ComputeEventID(e, r.seq.Add(1))

	// The ledger write is committed; a cancelled request must not lose its event.
	err := r.store.Insert(context.WithoutCancel(ctx), e)
	observability.RecordEvent(e.Kind.String(), err)
	if err != nil {
		r.logger.Error("failed to record ledger event",
			zap.String("event_id", e.EventID),
			zap.String("kind", e.Kind.String()),
			zap.String("token", e.Token.Hex()),
			zap.Error(err))
	}

	// Subscribers see the event even if history storage failed.
	if r.hub != nil {
		r.hub.Publish(e)
	}
}
