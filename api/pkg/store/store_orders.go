package store

import (
	"context"
	"fmt"
	"time"

	"github.com/bakeops/bakeops/api/pkg/system"
	"github.com/bakeops/bakeops/api/pkg/types"
)

func (s *PostgresStore) CreateOrderHistory(ctx context.Context, orders []*types.PresetOrder) error {
	if len(orders) == 0 {
		return nil
	}

	for _, order := range orders {
		if order.Date == "" {
			return fmt.Errorf("order date not specified")
		}
		if order.ID == "" {
			order.ID = system.GenerateOrderID()
		}
		order.Created = time.Now()
	}

	return s.gdb.WithContext(ctx).CreateInBatches(orders, 500).Error
}

func (s *PostgresStore) ListOrderHistory(ctx context.Context, q ListOrderHistoryQuery) ([]*types.PresetOrder, error) {
	query := s.gdb.WithContext(ctx)

	if q.Date != "" {
		query = query.Where("date = ?", q.Date)
	}

	var orders []*types.PresetOrder
	err := query.Order("order_time_minutes").Find(&orders).Error
	if err != nil {
		return nil, err
	}

	return orders, nil
}
