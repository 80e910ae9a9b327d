package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bakeops/bakeops/api/pkg/types"
)

func testAllocator() *allocator {
	return NewRackAllocator(
		types.BusinessHours{StartMinutes: 360, EndMinutes: 1020},
		types.OvenConfig{OvenCount: 2, RacksPerOven: 6},
		5,
	)
}

func testSpec(oven int) *types.BakeSpec {
	return &types.BakeSpec{
		ItemGUID:        "croissant",
		DisplayName:     "Croissant",
		CapacityPerRack: 24,
		BakeTimeMinutes: 20,
		CoolTimeMinutes: 10,
		Oven:            oven,
		Active:          true,
	}
}

func placedBatch(id string, rack, start, bake int) *types.Batch {
	b := &types.Batch{
		ID:           id,
		ItemGUID:     "croissant",
		RackPosition: rack,
		BakeTime:     bake,
		Status:       types.BatchStatusScheduled,
	}
	b.SetStart(start)
	return b
}

func TestFindSlotAt_EmptySchedule(t *testing.T) {
	a := testAllocator()

	placement, err := a.FindSlotAt(testSpec(0), nil, 540)
	require.NoError(t, err)
	assert.Equal(t, 1, placement.Rack)
	assert.Equal(t, 540, placement.StartTime)

	// Off-grid starts round up.
	placement, err = a.FindSlotAt(testSpec(0), nil, 545)
	require.NoError(t, err)
	assert.Equal(t, 560, placement.StartTime)

	// Before opening clamps to opening.
	placement, err = a.FindSlotAt(testSpec(0), nil, 100)
	require.NoError(t, err)
	assert.Equal(t, 360, placement.StartTime)
}

func TestFindSlotAt_LowestFreeRackWins(t *testing.T) {
	a := testAllocator()
	batches := []*types.Batch{
		placedBatch("b1", 1, 540, 20),
	}

	placement, err := a.FindSlotAt(testSpec(0), batches, 540)
	require.NoError(t, err)
	assert.Equal(t, 2, placement.Rack)
	assert.Equal(t, 540, placement.StartTime)

	// Rack 1 frees at 560, so a later slot goes back to it.
	placement, err = a.FindSlotAt(testSpec(0), batches, 560)
	require.NoError(t, err)
	assert.Equal(t, 1, placement.Rack)
}

func TestFindSlotAt_AdvancesWhenAllRacksBusy(t *testing.T) {
	a := testAllocator()
	var batches []*types.Batch
	for rack := 1; rack <= 12; rack++ {
		batches = append(batches, placedBatch("b", rack, 520, 40))
	}

	// Every rack is busy until 560, so the 540 slot advances once.
	placement, err := a.FindSlotAt(testSpec(0), batches, 540)
	require.NoError(t, err)
	assert.Equal(t, 1, placement.Rack)
	assert.Equal(t, 560, placement.StartTime)
}

func TestFindSlotAt_RackConflictWhenAdvancesExhausted(t *testing.T) {
	a := testAllocator()
	var batches []*types.Batch
	for rack := 1; rack <= 12; rack++ {
		batches = append(batches, placedBatch("b", rack, 360, 600))
	}

	_, err := a.FindSlotAt(testSpec(0), batches, 480)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.ErrorKindRackConflict))
}

func TestFindSlotAt_NoSlotBeforeClose(t *testing.T) {
	a := testAllocator()

	_, err := a.FindSlotAt(testSpec(0), nil, 1010)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.ErrorKindNoSlotBeforeClose))
}

func TestFindSlotAt_OvenAffinity(t *testing.T) {
	a := testAllocator()

	placement, err := a.FindSlotAt(testSpec(2), nil, 540)
	require.NoError(t, err)
	assert.Equal(t, 7, placement.Rack, "oven 2 starts at rack 7")

	placement, err = a.FindSlotAt(testSpec(1), nil, 540)
	require.NoError(t, err)
	assert.Equal(t, 1, placement.Rack)

	single := NewRackAllocator(
		types.BusinessHours{StartMinutes: 360, EndMinutes: 1020},
		types.OvenConfig{OvenCount: 1, RacksPerOven: 6},
		5,
	)
	_, err = single.FindSlotAt(testSpec(2), nil, 540)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.ErrorKindOvenMismatch))
}

func TestFindEarliestSlot_PicksFirstRackToFree(t *testing.T) {
	a := testAllocator()
	var batches []*types.Batch
	for rack := 1; rack <= 12; rack++ {
		if rack == 5 {
			// Frees at 545, first of all racks.
			batches = append(batches, placedBatch("b", rack, 520, 25))
			continue
		}
		batches = append(batches, placedBatch("b", rack, 660, 40))
	}

	placement, err := a.FindEarliestSlot(testSpec(0), batches, 360)
	require.NoError(t, err)
	assert.Equal(t, 5, placement.Rack)
	assert.Equal(t, 560, placement.StartTime, "545 rounds up to the grid")
}

func TestFindEarliestSlot_RespectsNotBefore(t *testing.T) {
	a := testAllocator()

	placement, err := a.FindEarliestSlot(testSpec(0), nil, 600)
	require.NoError(t, err)
	assert.Equal(t, 1, placement.Rack)
	assert.Equal(t, 600, placement.StartTime)

	placement, err = a.FindEarliestSlot(testSpec(0), nil, 605)
	require.NoError(t, err)
	assert.Equal(t, 620, placement.StartTime)
}

func TestFindEarliestSlot_NoSlotBeforeClose(t *testing.T) {
	a := testAllocator()
	var batches []*types.Batch
	for rack := 1; rack <= 12; rack++ {
		batches = append(batches, placedBatch("b", rack, 360, 650))
	}

	_, err := a.FindEarliestSlot(testSpec(0), batches, 360)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.ErrorKindNoSlotBeforeClose))
}

func TestConflictsAt(t *testing.T) {
	a := testAllocator()
	batches := []*types.Batch{
		placedBatch("b1", 3, 540, 20),
	}

	assert.True(t, a.ConflictsAt(batches, 3, 550, 570, ""))
	assert.False(t, a.ConflictsAt(batches, 3, 560, 580, ""), "touching intervals do not conflict")
	assert.False(t, a.ConflictsAt(batches, 4, 550, 570, ""), "different rack")
	assert.False(t, a.ConflictsAt(batches, 3, 550, 570, "b1"), "excluded batch is ignored")
}
