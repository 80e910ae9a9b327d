package pubsub

import (
	"context"
)

type Publisher interface {
	// Publish topic to message broker with payload.
	Publish(ctx context.Context, topic string, payload []byte) error
}

type PubSub interface {
	Publisher
	Subscribe(ctx context.Context, topic string, handler func(payload []byte) error) (Subscription, error)
}

type Subscription interface {
	Unsubscribe() error
}

// GetSimulationQueue is the subject one simulation's snapshots are
// broadcast on.
func GetSimulationQueue(simulationID string) string {
	return "simulation-updates." + simulationID
}
