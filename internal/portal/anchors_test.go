package portal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAnchorRoundTrip(t *testing.T) {
	a, err := ParseAnchor("20_Aug_25")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.August, 20, 0, 0, 0, 0, time.UTC), a.Date)
	assert.Equal(t, "20_Aug_25", FormatAnchor(a.Date))

	a, err = ParseAnchor("2_Sep_25")
	require.NoError(t, err)
	assert.Equal(t, "2_Sep_25", FormatAnchor(a.Date))
}

func TestParseAnchorRejectsMalformed(t *testing.T) {
	for _, id := range []string{"", "20_Aug", "Aug_20_25", "20_Foo_25", "32_Aug_25", "30_Feb_25", "20_Aug_xx"} {
		_, err := ParseAnchor(id)
		assert.Error(t, err, "expected parse failure: %q", id)
	}
}

func TestParseAnchorsSortsAscending(t *testing.T) {
	anchors := ParseAnchors([]string{"22_Aug_25", "bogus", "18_Aug_25", "20_Aug_25", "18_Aug_25"})
	require.Len(t, anchors, 3)
	assert.Equal(t, "18_Aug_25", anchors[0].ID)
	assert.Equal(t, "20_Aug_25", anchors[1].ID)
	assert.Equal(t, "22_Aug_25", anchors[2].ID)
}

func TestMondayOf(t *testing.T) {
	// 2025-08-20 is a Wednesday.
	wed := time.Date(2025, time.August, 20, 15, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, time.August, 18, 0, 0, 0, 0, time.UTC), MondayOf(wed))

	// Sunday belongs to the preceding Monday's week.
	sun := time.Date(2025, time.August, 24, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, time.August, 18, 0, 0, 0, 0, time.UTC), MondayOf(sun))

	mon := time.Date(2025, time.August, 18, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, mon, MondayOf(mon))
}

func TestFilterWeek(t *testing.T) {
	anchors := ParseAnchors([]string{"17_Aug_25", "18_Aug_25", "24_Aug_25", "25_Aug_25"})
	monday := time.Date(2025, time.August, 18, 0, 0, 0, 0, time.UTC)

	got := FilterWeek(anchors, monday)
	require.Len(t, got, 2)
	assert.Equal(t, "18_Aug_25", got[0].ID)
	assert.Equal(t, "24_Aug_25", got[1].ID)

	// Zero Monday leaves the set unchanged.
	assert.Len(t, FilterWeek(anchors, time.Time{}), 4)
}

func TestUpToToday(t *testing.T) {
	anchors := ParseAnchors([]string{"18_Aug_25", "20_Aug_25", "22_Aug_25"})
	today := time.Date(2025, time.August, 20, 23, 59, 0, 0, time.UTC)

	got := UpToToday(anchors, today)
	require.Len(t, got, 2)
	assert.Equal(t, "20_Aug_25", got[1].ID)
}
