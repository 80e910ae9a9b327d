package pubsub

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// InMemory is a process-local PubSub. Handlers run synchronously on the
// publisher's goroutine, which keeps tests deterministic.
type InMemory struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]func(payload []byte) error
}

var _ PubSub = &InMemory{}

func NewInMemory() *InMemory {
	return &InMemory{
		subs: make(map[string]map[int]func(payload []byte) error),
	}
}

func (p *InMemory) Publish(_ context.Context, topic string, payload []byte) error {
	p.mu.RLock()
	var handlers []func(payload []byte) error
	for pattern, subs := range p.subs {
		if !topicMatches(pattern, topic) {
			continue
		}
		for _, handler := range subs {
			handlers = append(handlers, handler)
		}
	}
	p.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(payload); err != nil {
			log.Err(err).Str("topic", topic).Msg("error handling message")
		}
	}
	return nil
}

func (p *InMemory) Subscribe(_ context.Context, topic string, handler func(payload []byte) error) (Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.subs[topic] == nil {
		p.subs[topic] = make(map[int]func(payload []byte) error)
	}
	id := p.nextID
	p.nextID++
	p.subs[topic][id] = handler

	return &inMemorySubscription{pubsub: p, topic: topic, id: id}, nil
}

// topicMatches supports the NATS single-token wildcard "*" so subscribers
// behave the same against either provider.
func topicMatches(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	patternParts := strings.Split(pattern, ".")
	topicParts := strings.Split(topic, ".")
	if len(patternParts) != len(topicParts) {
		return false
	}
	for i, part := range patternParts {
		if part == "*" {
			continue
		}
		if part != topicParts[i] {
			return false
		}
	}
	return true
}

type inMemorySubscription struct {
	pubsub *InMemory
	topic  string
	id     int
}

func (s *inMemorySubscription) Unsubscribe() error {
	s.pubsub.mu.Lock()
	defer s.pubsub.mu.Unlock()
	delete(s.pubsub.subs[s.topic], s.id)
	return nil
}
