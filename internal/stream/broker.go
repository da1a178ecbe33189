package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/friendforge/internal/feed"
	"github.com/friendforge/internal/logger"
	"github.com/friendforge/internal/model"
)

// Direction identifies one half of a conversation: messages sent by
// SenderID to ReceiverID. A full conversation view subscribes to both
// directions and merges them.
type Direction struct {
	SenderID   string
	ReceiverID string
}

func (d Direction) Subject() string {
	return "conv." + d.SenderID + "." + d.ReceiverID
}

// MessageSource loads the current state of one direction, ordered ascending
// by timestamp. Satisfied by repository.MessageRepository.
type MessageSource interface {
	ListDirection(ctx context.Context, senderID, receiverID string) ([]model.Message, error)
}

const subBuffer = 16

// Subscription is one live feed of a single direction. The first batch on C
// is the direction's full current state as added events; everything after is
// incremental. A value on Err means the subscription is dead; the channel C
// will be closed, but views built from earlier batches stay valid.
type Subscription struct {
	Direction Direction
	C         <-chan []feed.Change
	Err       <-chan error

	c    chan []feed.Change
	errc chan error

	mu      sync.Mutex
	started bool
	pending [][]feed.Change
	dead    bool
	unsub   func()
	once    sync.Once
}

// Close detaches the subscription from the bus and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.unsub != nil {
			s.unsub()
		}
		s.mu.Lock()
		s.dead = true
		s.mu.Unlock()
		close(s.c)
	})
}

func (s *Subscription) fail(err error) {
	s.mu.Lock()
	if s.dead {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	select {
	case s.errc <- err:
	default:
	}
	s.Close()
}

// deliver queues one batch. Batches arriving before the initial snapshot is
// in place are buffered and flushed after it, so a late snapshot can never
// overwrite a newer edit out of order. A subscriber that stops draining C is
// failed rather than allowed to stall the bus.
func (s *Subscription) deliver(batch []feed.Change) {
	s.mu.Lock()
	if s.dead {
		s.mu.Unlock()
		return
	}
	if !s.started {
		s.pending = append(s.pending, batch)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	select {
	case s.c <- batch:
	default:
		s.fail(fmt.Errorf("stream: subscriber too slow on %s", s.Direction.Subject()))
	}
}

func (s *Subscription) start(snapshot []feed.Change) {
	s.mu.Lock()
	if s.dead {
		s.mu.Unlock()
		return
	}
	s.started = true
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	s.c <- snapshot
	for _, b := range pending {
		s.deliver(b)
	}
}

// Broker ties writes to live subscribers. Writers call Publish after the
// repository write succeeds; subscribers get the snapshot plus every later
// change for their direction.
type Broker struct {
	bus    Bus
	source MessageSource
}

func NewBroker(bus Bus, source MessageSource) *Broker {
	return &Broker{bus: bus, source: source}
}

// Subscribe attaches to one direction. The bus subscription is registered
// before the snapshot is read, so no write published in between is lost;
// re-delivery of a snapshotted message is harmless because the consumer
// upserts by id.
func (b *Broker) Subscribe(ctx context.Context, d Direction) (*Subscription, error) {
	sub := &Subscription{
		Direction: d,
		c:         make(chan []feed.Change, subBuffer),
		errc:      make(chan error, 1),
	}
	sub.C = sub.c
	sub.Err = sub.errc

	unsub, err := b.bus.Subscribe(d.Subject(), func(data []byte) {
		var batch []feed.Change
		if err := json.Unmarshal(data, &batch); err != nil {
			logger.Errorf("stream: bad batch on %s: %v", d.Subject(), err)
			return
		}
		sub.deliver(batch)
	})
	if err != nil {
		return nil, fmt.Errorf("broker.Subscribe: %w", err)
	}
	sub.unsub = unsub

	msgs, err := b.source.ListDirection(ctx, d.SenderID, d.ReceiverID)
	if err != nil {
		sub.Close()
		return nil, fmt.Errorf("broker.Subscribe snapshot: %w", err)
	}
	snapshot := make([]feed.Change, len(msgs))
	for i, m := range msgs {
		snapshot[i] = feed.Added(m)
	}
	sub.start(snapshot)
	return sub, nil
}

// Publish fans one batch out to every subscriber of the direction.
func (b *Broker) Publish(d Direction, batch []feed.Change) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("broker.Publish marshal: %w", err)
	}
	if err := b.bus.Publish(d.Subject(), data); err != nil {
		return fmt.Errorf("broker.Publish: %w", err)
	}
	return nil
}
