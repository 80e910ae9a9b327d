package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/bakeops/bakeops/api/pkg/types"
)

func (s *PostgresStore) CreateBakeSpec(ctx context.Context, spec *types.BakeSpec) (*types.BakeSpec, error) {
	if spec.ItemGUID == "" {
		return nil, fmt.Errorf("item_guid not specified")
	}

	spec.Created = time.Now()
	spec.Updated = time.Now()

	err := s.gdb.WithContext(ctx).Create(spec).Error
	if err != nil {
		return nil, err
	}
	return s.GetBakeSpec(ctx, spec.ItemGUID)
}

func (s *PostgresStore) GetBakeSpec(ctx context.Context, itemGuid string) (*types.BakeSpec, error) {
	if itemGuid == "" {
		return nil, fmt.Errorf("item_guid not specified")
	}

	var spec types.BakeSpec
	err := s.gdb.WithContext(ctx).Where("item_guid = ?", itemGuid).First(&spec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &spec, nil
}

func (s *PostgresStore) ListBakeSpecs(ctx context.Context, q ListBakeSpecsQuery) ([]*types.BakeSpec, error) {
	query := s.gdb.WithContext(ctx)

	if q.OnlyActive {
		query = query.Where("active = ?", true)
	}

	var specs []*types.BakeSpec
	err := query.Order("item_guid").Find(&specs).Error
	if err != nil {
		return nil, err
	}

	return specs, nil
}
