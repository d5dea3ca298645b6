package layout_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"racecal/internal/layout"
	"racecal/internal/model"
)

func TestBuildRejectsMalformedEvents(t *testing.T) {
	events := []model.Event{
		race("ok", day(1, 1), day(1, 2)),
		race("bad", day(1, 9), day(1, 2)),
	}

	rows, err := layout.Build(events, []model.DisplayRange{january}, layout.Options{})
	assert.ErrorIs(t, err, model.ErrInvalidEvent)
	assert.Nil(t, rows)
}

func TestBuildFiltersCategories(t *testing.T) {
	gt := race("gt", day(1, 3), day(1, 8))
	gt.Category = "Grand Tour Race"
	wt := race("wt", day(1, 3), day(1, 8))

	rows, err := layout.Build([]model.Event{gt, wt}, []model.DisplayRange{january}, layout.Options{
		Categories: model.NewCategorySet("Grand Tour Race"),
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Len(t, rows[0].Events, 1)
	assert.Equal(t, "gt", rows[0].Events[0].ID)
	assert.Equal(t, 1, rows[0].LayerCount)

	rows, err = layout.Build([]model.Event{gt, wt}, []model.DisplayRange{january}, layout.Options{
		Categories: model.NewCategorySet(),
	})
	require.NoError(t, err)
	assert.Empty(t, rows[0].Events)
	assert.Equal(t, 0, rows[0].LayerCount)
	assert.True(t, rows[0].Renderable)
}

func TestBuildIsolatesBadRanges(t *testing.T) {
	ranges := []model.DisplayRange{
		{Label: "reversed", Start: day(2, 10), End: day(2, 1)},
		{Label: "point", Start: day(1, 5), End: day(1, 5)},
		january,
	}
	events := []model.Event{race("r", day(1, 4), day(1, 6))}

	rows, err := layout.Build(events, ranges, layout.Options{})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.ErrorIs(t, rows[0].Err, model.ErrInvalidRange)
	assert.False(t, rows[0].Renderable)

	assert.NoError(t, rows[1].Err)
	assert.False(t, rows[1].Renderable)
	require.Len(t, rows[1].Events, 1)
	assert.Equal(t, day(1, 5), rows[1].Events[0].ClippedStart)
	assert.Equal(t, day(1, 5), rows[1].Events[0].ClippedEnd)

	assert.NoError(t, rows[2].Err)
	assert.True(t, rows[2].Renderable)
	assert.Equal(t, 1, rows[2].LayerCount)
}

func TestBuildSharedBoundaryAppearsInBothBlocks(t *testing.T) {
	ranges := []model.DisplayRange{
		{Label: "Block 1", Start: day(1, 20), End: day(3, 8)},
		{Label: "Block 2", Start: day(3, 8), End: day(4, 26)},
	}
	paris := race("paris-nice", day(3, 2), day(3, 9))

	rows, err := layout.Build([]model.Event{paris}, ranges, layout.Options{})
	require.NoError(t, err)

	require.Len(t, rows[0].Events, 1)
	assert.Equal(t, day(3, 8), rows[0].Events[0].ClippedEnd)
	require.Len(t, rows[1].Events, 1)
	assert.Equal(t, day(3, 8), rows[1].Events[0].ClippedStart)
}

func TestBuildConcurrentMatchesSequential(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	events := randomEvents(rng, 120)

	var ranges []model.DisplayRange
	for m := time.January; m <= time.December; m++ {
		first := model.Date(2025, m, 1)
		ranges = append(ranges, model.DisplayRange{
			Label: m.String(),
			Start: first,
			End:   first.AddDate(0, 1, -1),
		})
	}

	seq, err := layout.Build(events, ranges, layout.Options{})
	require.NoError(t, err)
	par, err := layout.Build(events, ranges, layout.Options{Workers: 4})
	require.NoError(t, err)

	assert.Equal(t, seq, par)
}

func TestBuildIsStatelessAcrossCalls(t *testing.T) {
	events := []model.Event{
		race("X", day(1, 5), day(1, 10)),
		race("Y", day(1, 8), day(1, 20)),
	}
	ranges := []model.DisplayRange{january}

	first, err := layout.Build(events, ranges, layout.Options{})
	require.NoError(t, err)
	_, err = layout.Build(events, ranges, layout.Options{Categories: model.NewCategorySet()})
	require.NoError(t, err)
	second, err := layout.Build(events, ranges, layout.Options{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
