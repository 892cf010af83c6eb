// Package broadcast implements ensure-delivered fan-out: a room emit is
// retried with the identical payload until every member acknowledges it. The
// policy is at-least-once with unbounded retries and no backoff; it favors
// eventual delivery of state over bounded latency.
package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultAckWindow is how long one emit attempt waits for acknowledgments
// before the whole send is retried.
const DefaultAckWindow = 5 * time.Second

// RoomEmitter is the transport capability the broadcaster is built on.
type RoomEmitter interface {
	EmitToRoom(ctx context.Context, roomKey, event string, payload any, ackWindow time.Duration) error
}

// Broadcaster runs one retry task per EnsureDelivered call. Each room's tasks
// share a cancellation scope so tearing a room down abandons any retries still
// in flight for it.
type Broadcaster struct {
	emitter   RoomEmitter
	ackWindow time.Duration

	mu      sync.Mutex
	base    context.Context
	baseCxl context.CancelFunc
	rooms   map[string]roomScope
}

type roomScope struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a broadcaster on top of emitter. A non-positive ackWindow
// selects DefaultAckWindow.
func New(emitter RoomEmitter, ackWindow time.Duration) *Broadcaster {
	if ackWindow <= 0 {
		ackWindow = DefaultAckWindow
	}
	base, cancel := context.WithCancel(context.Background())
	return &Broadcaster{
		emitter:   emitter,
		ackWindow: ackWindow,
		base:      base,
		baseCxl:   cancel,
		rooms:     make(map[string]roomScope),
	}
}

// EnsureDelivered sends payload tagged event to every member of the room,
// retrying the identical payload until the transport reports every member
// acknowledged it or the room's retries are cancelled. The call returns
// immediately; delivery runs on its own goroutine and never blocks message
// handling.
func (b *Broadcaster) EnsureDelivered(roomKey, event string, payload any) {
	// Freeze the payload once so every retry re-sends identical bytes even if
	// the caller mutates its value afterwards.
	frozen, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("room", roomKey).Str("event", event).Msg("undeliverable payload")
		return
	}

	ctx := b.scopeFor(roomKey)
	go func() {
		for attempt := 1; ; attempt++ {
			err := b.emitter.EmitToRoom(ctx, roomKey, event, json.RawMessage(frozen), b.ackWindow)
			if err == nil {
				log.Debug().Str("room", roomKey).Str("event", event).Int("attempts", attempt).Msg("broadcast delivered")
				return
			}
			if ctx.Err() != nil {
				log.Debug().Str("room", roomKey).Str("event", event).Int("attempts", attempt).Msg("broadcast abandoned")
				return
			}
			log.Warn().Err(err).Str("room", roomKey).Str("event", event).Int("attempt", attempt).Msg("broadcast not acknowledged, retrying")
		}
	}()
}

// CancelRoom abandons every pending retry for the room. Invoked by the
// cleanup pass when a room is removed from the store.
func (b *Broadcaster) CancelRoom(roomKey string) {
	b.mu.Lock()
	scope, ok := b.rooms[roomKey]
	if ok {
		delete(b.rooms, roomKey)
	}
	b.mu.Unlock()
	if ok {
		scope.cancel()
		log.Debug().Str("room", roomKey).Msg("cancelled pending broadcasts")
	}
}

// Shutdown abandons every pending retry for every room.
func (b *Broadcaster) Shutdown() {
	b.mu.Lock()
	b.rooms = make(map[string]roomScope)
	b.mu.Unlock()
	b.baseCxl()
}

func (b *Broadcaster) scopeFor(roomKey string) context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	if scope, ok := b.rooms[roomKey]; ok {
		return scope.ctx
	}
	ctx, cancel := context.WithCancel(b.base)
	b.rooms[roomKey] = roomScope{ctx: ctx, cancel: cancel}
	return ctx
}
