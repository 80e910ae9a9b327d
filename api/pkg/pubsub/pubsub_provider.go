package pubsub

import "fmt"

type Provider string

const (
	ProviderMemory Provider = "inmemory"
	ProviderNats   Provider = "nats"
)

func New(provider Provider, serverOpts ServerOptions) (PubSub, error) {
	switch provider {
	case ProviderNats:
		return NewNats(serverOpts)
	case ProviderMemory, "":
		return NewInMemory(), nil
	default:
		return nil, fmt.Errorf("unknown pubsub provider %q", provider)
	}
}
