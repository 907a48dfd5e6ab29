package feeds

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Topic names the two event streams strategies subscribe to.
type Topic string

const (
	TopicGameState    Topic = "game_state"
	TopicOddsSnapshot Topic = "odds_snapshot"
)

const subscriberBufferSize = 256

// GameState is a published snapshot of live game context for one market
// (score, clock, period) used by strategies that react to in-game events.
type GameState struct {
	MarketSlug string
	HomeScore  int
	AwayScore  int
	Period     string
	ClockLeft  string
	Final      bool
}

// OddsSnapshot is a published snapshot of an external sportsbook line for
// one market, used to compare against the prediction-market price.
type OddsSnapshot struct {
	MarketSlug  string
	ImpliedProb float64
	Source      string
}

type subscriber struct {
	id    uint64
	topic Topic
	ch    chan interface{}
}

// EventBus is a non-blocking, bounded-channel pub/sub bus. A slow
// subscriber never blocks a publisher: a full channel drops the event and
// logs a warning rather than stalling the feed goroutine that publishes it.
type EventBus struct {
	mu        sync.RWMutex
	nextID    uint64
	subs      map[Topic][]*subscriber
	dropCount map[Topic]uint64
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subs:      make(map[Topic][]*subscriber),
		dropCount: make(map[Topic]uint64),
	}
}

// Subscription is returned by Subscribe; callers range over Chan and call
// Unsubscribe exactly once when done.
type Subscription struct {
	id    uint64
	topic Topic
	ch    chan interface{}
	bus   *EventBus
}

// Chan returns the channel events for this subscription arrive on.
func (s *Subscription) Chan() <-chan interface{} {
	return s.ch
}

// Unsubscribe removes the subscription. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.bus.unsubscribe(s.topic, s.id)
}

// Subscribe registers a new listener on a topic.
func (b *EventBus) Subscribe(topic Topic) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscriber{id: b.nextID, topic: topic, ch: make(chan interface{}, subscriberBufferSize)}
	b.subs[topic] = append(b.subs[topic], sub)

	return &Subscription{id: sub.id, topic: topic, ch: sub.ch, bus: b}
}

func (b *EventBus) unsubscribe(topic Topic, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[topic]
	for i, s := range list {
		if s.id == id {
			b.subs[topic] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Publish fans an event out to every subscriber of a topic. Subscribers
// with a full buffer are skipped (non-blocking) rather than applying
// backpressure to the publisher.
func (b *EventBus) Publish(topic Topic, event interface{}) {
	b.mu.RLock()
	subs := b.subs[topic]
	b.mu.RUnlock()

	for _, s := range subs {
		select {
		case s.ch <- event:
		default:
			b.mu.Lock()
			b.dropCount[topic]++
			dropped := b.dropCount[topic]
			b.mu.Unlock()
			log.Warn().Str("topic", string(topic)).Uint64("total_dropped", dropped).Msg("event bus subscriber buffer full, dropping event")
		}
	}
}

// DropCount returns how many events have been dropped for a topic so far,
// for diagnostics/metrics.
func (b *EventBus) DropCount(topic Topic) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropCount[topic]
}
