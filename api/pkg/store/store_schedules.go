package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bakeops/bakeops/api/pkg/system"
	"github.com/bakeops/bakeops/api/pkg/types"
)

func (s *PostgresStore) GetSchedule(ctx context.Context, id string) (*types.Schedule, error) {
	if id == "" {
		return nil, fmt.Errorf("id not specified")
	}

	var schedule types.Schedule
	err := s.gdb.WithContext(ctx).Where("id = ?", id).First(&schedule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &schedule, nil
}

func (s *PostgresStore) GetScheduleByDate(ctx context.Context, date string) (*types.Schedule, error) {
	if date == "" {
		return nil, fmt.Errorf("date not specified")
	}

	var schedule types.Schedule
	err := s.gdb.WithContext(ctx).Where("date = ?", date).First(&schedule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &schedule, nil
}

// UpsertSchedule writes a whole schedule, keyed by date. Regenerating a date
// replaces its batches but keeps the row id stable so running simulations
// still mirror to the same schedule.
func (s *PostgresStore) UpsertSchedule(ctx context.Context, schedule *types.Schedule) (*types.Schedule, error) {
	if schedule.Date == "" {
		return nil, fmt.Errorf("date not specified")
	}

	existing, err := s.GetScheduleByDate(ctx, schedule.Date)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if existing != nil {
		schedule.ID = existing.ID
		schedule.Created = existing.Created
	} else {
		if schedule.ID == "" {
			schedule.ID = system.GenerateScheduleID()
		}
		schedule.Created = time.Now()
	}
	if schedule.Name == "" {
		schedule.Name = system.GenerateAmusingName()
	}
	schedule.Updated = time.Now()

	err = s.gdb.WithContext(ctx).Save(schedule).Error
	if err != nil {
		return nil, err
	}
	return s.GetSchedule(ctx, schedule.ID)
}

// UpsertScheduleBatch replaces or appends one batch inside a schedule row.
// The row is locked for the read-modify-write so concurrent mirror writes
// cannot drop each other's batches.
func (s *PostgresStore) UpsertScheduleBatch(ctx context.Context, scheduleID string, batch *types.Batch) error {
	if scheduleID == "" {
		return fmt.Errorf("schedule id not specified")
	}
	if batch == nil || batch.ID == "" {
		return fmt.Errorf("batch id not specified")
	}

	return s.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var schedule types.Schedule
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", scheduleID).First(&schedule).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
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

		return tx.Save(&schedule).Error
	})
}

// DeleteScheduleBatch removes one batch from a schedule row. Deleting a
// batch that is already gone is not an error, so retries stay idempotent.
func (s *PostgresStore) DeleteScheduleBatch(ctx context.Context, scheduleID string, batchID string) error {
	if scheduleID == "" {
		return fmt.Errorf("schedule id not specified")
	}
	if batchID == "" {
		return fmt.Errorf("batch id not specified")
	}

	return s.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var schedule types.Schedule
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", scheduleID).First(&schedule).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		kept := schedule.Batches[:0]
		for _, b := range schedule.Batches {
			if b.ID != batchID {
				kept = append(kept, b)
			}
		}
		schedule.Batches = kept
		schedule.Updated = time.Now()

		return tx.Save(&schedule).Error
	})
}
