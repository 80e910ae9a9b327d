package system

import (
	"golang.org/x/sync/errgroup"
)

// ForEachConcurrently runs handler over items with at most concurrency
// handlers in flight. It waits for all started work and returns the first
// error encountered.
func ForEachConcurrently[ItemType any](
	items []ItemType,
	concurrency int,
	handler func(item ItemType, index int) error,
) error {
	if concurrency < 1 {
		concurrency = 1
	}
	var eg errgroup.Group
	eg.SetLimit(concurrency)
	for index, item := range items {
		index, item := index, item
		eg.Go(func() error {
			return handler(item, index)
		})
	}
	return eg.Wait()
}
