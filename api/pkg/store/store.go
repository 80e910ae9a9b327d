package store

import (
	"context"
	"errors"

	"github.com/bakeops/bakeops/api/pkg/types"
)

type ListBakeSpecsQuery struct {
	OnlyActive bool `json:"only_active"`
}

type ListOrderHistoryQuery struct {
	Date string `json:"date"`
}

type Store interface {
	// bake specs
	CreateBakeSpec(ctx context.Context, spec *types.BakeSpec) (*types.BakeSpec, error)
	GetBakeSpec(ctx context.Context, itemGuid string) (*types.BakeSpec, error)
	ListBakeSpecs(ctx context.Context, q ListBakeSpecsQuery) ([]*types.BakeSpec, error)

	// schedules
	GetSchedule(ctx context.Context, id string) (*types.Schedule, error)
	GetScheduleByDate(ctx context.Context, date string) (*types.Schedule, error)
	UpsertSchedule(ctx context.Context, schedule *types.Schedule) (*types.Schedule, error)
	UpsertScheduleBatch(ctx context.Context, scheduleID string, batch *types.Batch) error
	DeleteScheduleBatch(ctx context.Context, scheduleID string, batchID string) error

	// order history
	CreateOrderHistory(ctx context.Context, orders []*types.PresetOrder) error
	ListOrderHistory(ctx context.Context, q ListOrderHistoryQuery) ([]*types.PresetOrder, error)
}

var ErrNotFound = errors.New("not found")
