package store

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/bakeops/bakeops/api/pkg/types"
)

// defaultBakeSpecs are the demo items seeded into an empty database so a
// fresh deployment can generate schedules immediately.
var defaultBakeSpecs = []types.BakeSpec{
	{
		ItemGUID:           "croissant",
		DisplayName:        "Butter Croissant",
		CapacityPerRack:    24,
		BakeTimeMinutes:    20,
		CoolTimeMinutes:    10,
		Oven:               1,
		FreshWindowMinutes: 240,
		RestockThreshold:   12,
		ParMin:             12,
		ParMax:             48,
		Active:             true,
	},
	{
		ItemGUID:           "sourdough",
		DisplayName:        "Sourdough Loaf",
		CapacityPerRack:    12,
		BakeTimeMinutes:    40,
		CoolTimeMinutes:    20,
		Oven:               2,
		FreshWindowMinutes: 480,
		RestockThreshold:   6,
		ParMin:             6,
		ParMax:             24,
		Active:             true,
	},
	{
		ItemGUID:           "baguette",
		DisplayName:        "Baguette",
		CapacityPerRack:    18,
		BakeTimeMinutes:    20,
		CoolTimeMinutes:    10,
		Oven:               2,
		FreshWindowMinutes: 300,
		RestockThreshold:   9,
		ParMin:             9,
		ParMax:             36,
		Active:             true,
	},
	{
		ItemGUID:           "blueberry-muffin",
		DisplayName:        "Blueberry Muffin",
		CapacityPerRack:    30,
		BakeTimeMinutes:    20,
		CoolTimeMinutes:    10,
		FreshWindowMinutes: 360,
		RestockThreshold:   15,
		ParMin:             10,
		ParMax:             40,
		Active:             true,
	},
	{
		ItemGUID:           "chocolate-chip-cookie",
		DisplayName:        "Chocolate Chip Cookie",
		CapacityPerRack:    36,
		BakeTimeMinutes:    20,
		CoolTimeMinutes:    10,
		FreshWindowMinutes: 600,
		RestockThreshold:   18,
		ParMin:             12,
		ParMax:             60,
		Active:             true,
	},
	{
		ItemGUID:           "cinnamon-roll",
		DisplayName:        "Cinnamon Roll",
		CapacityPerRack:    24,
		BakeTimeMinutes:    40,
		CoolTimeMinutes:    20,
		Oven:               1,
		FreshWindowMinutes: 300,
		RestockThreshold:   8,
		ParMin:             8,
		ParMax:             32,
		Active:             true,
	},
}

// SeedBakeSpecs inserts the demo specs for any item guid not already
// present. Existing rows are never touched, so operator edits survive
// restarts.
func (s *PostgresStore) SeedBakeSpecs(ctx context.Context) error {
	seeded := 0
	for i := range defaultBakeSpecs {
		spec := defaultBakeSpecs[i]

		_, err := s.GetBakeSpec(ctx, spec.ItemGUID)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}

		if _, err := s.CreateBakeSpec(ctx, &spec); err != nil {
			log.Error().Err(err).Str("item_guid", spec.ItemGUID).Msg("failed to seed bake spec")
			continue
		}
		seeded++
	}

	if seeded > 0 {
		log.Info().Int("count", seeded).Msg("seeded bake specs")
	}
	return nil
}
