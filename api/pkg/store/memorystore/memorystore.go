// Package memorystore provides an in-memory implementation of store.Store
// for tests and for running the server without postgres.
package memorystore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bakeops/bakeops/api/pkg/store"
	"github.com/bakeops/bakeops/api/pkg/system"
	"github.com/bakeops/bakeops/api/pkg/types"
)

// MemoryStore implements store.Store with in-memory maps.
type MemoryStore struct {
	mu             sync.RWMutex
	specs          map[string]*types.BakeSpec
	schedules      map[string]*types.Schedule
	scheduleByDate map[string]string
	orders         []*types.PresetOrder

	// WriteError, when set, is returned by every schedule write. Tests use
	// it to exercise the best-effort mirror failure path.
	WriteError error
}

// New creates a new in-memory store.
func New() *MemoryStore {
	return &MemoryStore{
		specs:          make(map[string]*types.BakeSpec),
		schedules:      make(map[string]*types.Schedule),
		scheduleByDate: make(map[string]string),
	}
}

func copySchedule(s *types.Schedule) *types.Schedule {
	cp := *s
	cp.Batches = append(cp.Batches[:0:0], s.Batches...)
	return &cp
}

// --- bake specs ---

func (m *MemoryStore) CreateBakeSpec(_ context.Context, spec *types.BakeSpec) (*types.BakeSpec, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *spec
	if cp.Created.IsZero() {
		cp.Created = time.Now()
	}
	cp.Updated = time.Now()
	m.specs[cp.ItemGUID] = &cp
	out := cp
	return &out, nil
}

func (m *MemoryStore) GetBakeSpec(_ context.Context, itemGuid string) (*types.BakeSpec, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	spec, ok := m.specs[itemGuid]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *spec
	return &cp, nil
}

func (m *MemoryStore) ListBakeSpecs(_ context.Context, q store.ListBakeSpecsQuery) ([]*types.BakeSpec, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*types.BakeSpec, 0, len(m.specs))
	for _, spec := range m.specs {
		if q.OnlyActive && !spec.Active {
			continue
		}
		cp := *spec
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ItemGUID < result[j].ItemGUID
	})
	return result, nil
}

// --- schedules ---

func (m *MemoryStore) GetSchedule(_ context.Context, id string) (*types.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	schedule, ok := m.schedules[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copySchedule(schedule), nil
}

func (m *MemoryStore) GetScheduleByDate(_ context.Context, date string) (*types.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.scheduleByDate[date]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copySchedule(m.schedules[id]), nil
}

func (m *MemoryStore) UpsertSchedule(_ context.Context, schedule *types.Schedule) (*types.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteError != nil {
		return nil, m.WriteError
	}

	cp := copySchedule(schedule)
	if existingID, ok := m.scheduleByDate[cp.Date]; ok {
		existing := m.schedules[existingID]
		cp.ID = existing.ID
		cp.Created = existing.Created
	} else {
		if cp.ID == "" {
			cp.ID = system.GenerateScheduleID()
		}
		cp.Created = time.Now()
	}
	if cp.Name == "" {
		cp.Name = system.GenerateAmusingName()
	}
	cp.Updated = time.Now()

	m.schedules[cp.ID] = cp
	m.scheduleByDate[cp.Date] = cp.ID
	return copySchedule(cp), nil
}

func (m *MemoryStore) UpsertScheduleBatch(_ context.Context, scheduleID string, batch *types.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteError != nil {
		return m.WriteError
	}

	schedule, ok := m.schedules[scheduleID]
	if !ok {
		return store.ErrNotFound
	}

	replaced := false
	for i := range schedule.Batches {
		if schedule.Batches[i].ID == batch.ID {
			schedule.Batches[i] = *batch
			replaced = true
			break
		}
	}
	if !replaced {
		schedule.Batches = append(schedule.Batches, *batch)
	}
	schedule.Updated = time.Now()
	return nil
}

func (m *MemoryStore) DeleteScheduleBatch(_ context.Context, scheduleID string, batchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteError != nil {
		return m.WriteError
	}

	schedule, ok := m.schedules[scheduleID]
	if !ok {
		return store.ErrNotFound
	}

	kept := schedule.Batches[:0]
	for _, b := range schedule.Batches {
		if b.ID != batchID {
			kept = append(kept, b)
		}
	}
	schedule.Batches = kept
	schedule.Updated = time.Now()
	return nil
}

// --- order history ---

func (m *MemoryStore) CreateOrderHistory(_ context.Context, orders []*types.PresetOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, order := range orders {
		cp := *order
		if cp.ID == "" {
			cp.ID = system.GenerateOrderID()
		}
		cp.Created = time.Now()
		m.orders = append(m.orders, &cp)
	}
	return nil
}

func (m *MemoryStore) ListOrderHistory(_ context.Context, q store.ListOrderHistoryQuery) ([]*types.PresetOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*types.PresetOrder
	for _, order := range m.orders {
		if q.Date != "" && order.Date != q.Date {
			continue
		}
		cp := *order
		result = append(result, &cp)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].OrderTimeMinutes < result[j].OrderTimeMinutes
	})
	return result, nil
}
