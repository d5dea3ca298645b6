package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"racecal/internal/model"
)

func TestEventValidate(t *testing.T) {
	jan := func(d int) time.Time { return model.Date(2025, time.January, d) }

	tests := []struct {
		name    string
		ev      model.Event
		wantErr bool
	}{
		{"ok", model.Event{ID: "1", Start: jan(5), End: jan(10)}, false},
		{"single day", model.Event{ID: "2", Start: jan(5), End: jan(5)}, false},
		{"reversed", model.Event{ID: "3", Start: jan(10), End: jan(5)}, true},
		{"missing id", model.Event{Start: jan(5), End: jan(10)}, true},
		{"missing end", model.Event{ID: "4", Start: jan(5)}, true},
		{"same day, later start clock", model.Event{ID: "5", Start: jan(5).Add(15 * time.Hour), End: jan(5).Add(9 * time.Hour)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ev.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, model.ErrInvalidEvent)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEventDays(t *testing.T) {
	ev := model.Event{
		Start: model.Date(2025, time.January, 20),
		End:   model.Date(2025, time.January, 25),
	}
	assert.Equal(t, 6, ev.Days())

	oneDay := model.Event{Start: ev.Start, End: ev.Start}
	assert.Equal(t, 1, oneDay.Days())
}

func TestDisplayRange(t *testing.T) {
	r := model.DisplayRange{Label: "Jan", Start: model.Date(2025, 1, 1), End: model.Date(2025, 1, 31)}
	assert.NoError(t, r.Validate())
	assert.False(t, r.Degenerate())

	point := model.DisplayRange{Label: "point", Start: r.Start, End: r.Start}
	assert.NoError(t, point.Validate())
	assert.True(t, point.Degenerate())

	bad := model.DisplayRange{Label: "bad", Start: r.End, End: r.Start}
	assert.ErrorIs(t, bad.Validate(), model.ErrInvalidRange)
}

func TestDateOfDropsClockAndZone(t *testing.T) {
	seoul := time.FixedZone("KST", 9*3600)
	ts := time.Date(2025, time.March, 8, 23, 30, 0, 0, seoul)
	assert.Equal(t, model.Date(2025, time.March, 8), model.DateOf(ts))
}

func TestCategorySet(t *testing.T) {
	var all model.CategorySet
	assert.True(t, all.Allows("World Tour Race"))

	none := model.NewCategorySet()
	assert.False(t, none.Allows("World Tour Race"))

	some := model.NewCategorySet("Grand Tour Race")
	assert.True(t, some.Allows("Grand Tour Race"))
	assert.False(t, some.Allows("Pro Tour Race"))
}
