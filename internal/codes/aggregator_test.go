package codes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRoster(t *testing.T, dir, course, week, content string) {
	t.Helper()
	path := filepath.Join(dir, course, week+".json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestSlotOverridesShortCircuit(t *testing.T) {
	dir := t.TempDir()
	writeRoster(t, dir, "FIT1045", "6", `[{"slot":"Lab 1","code":"AA11"}]`)

	agg := NewAggregator(SourceConfig{
		DataDir: dir,
		Environ: []string{"LAB_01=ZZ99", "PATH=/usr/bin", "LAB_XX=BAD"},
	}, nil)

	got := agg.Resolve(context.Background(), "FIT1045", "6")
	require.Len(t, got, 1)
	assert.Equal(t, "ZZ99", got[0].Code)
	assert.Equal(t, "LAB 01", got[0].SlotHint)
	assert.Equal(t, ProvenancePrecise, got[0].Provenance)
}

func TestSlotOverridesIgnoreInvalidValues(t *testing.T) {
	agg := NewAggregator(SourceConfig{
		Environ: []string{"LAB_01=not a code", "TUT_02=FIT1045"},
	}, nil)
	assert.Empty(t, agg.SlotOverrides())
}

func TestResolveLocalRoster(t *testing.T) {
	dir := t.TempDir()
	writeRoster(t, dir, "FIT1045", "6",
		`[{"slot":"Lab 1","code":"AB12"},{"code":"CD34"},{"code":"bad!"}]`)

	agg := NewAggregator(SourceConfig{DataDir: dir, Environ: []string{}}, nil)
	got := agg.Resolve(context.Background(), "fit1045", "Week 6")

	want := []Candidate{
		{Code: "AB12", SlotHint: "Lab 1", Provenance: ProvenancePrecise, Confidence: ConfidenceHigh},
		{Code: "CD34", Provenance: ProvenanceFallback, Confidence: ConfidenceHigh},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("candidates mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveRemoteFeedBeforeLocal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/FIT1045/6.json", r.URL.Path)
		assert.Equal(t, "rollcall/1.0", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"codes":[{"slot":"Tut 2","code":"EF56"}]}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	writeRoster(t, dir, "FIT1045", "6", `[{"code":"AB12"}]`)

	agg := NewAggregator(SourceConfig{BaseURL: srv.URL, DataDir: dir, Environ: []string{}}, nil)
	got := agg.Resolve(context.Background(), "FIT1045", "6")
	require.Len(t, got, 1)
	assert.Equal(t, "EF56", got[0].Code)
	assert.Equal(t, "Tut 2", got[0].SlotHint)
}

func TestResolveMalformedFeedFallsThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	writeRoster(t, dir, "FIT1045", "6", `[{"code":"AB12"}]`)

	agg := NewAggregator(SourceConfig{BaseURL: srv.URL, DataDir: dir, Environ: []string{}}, nil)
	got := agg.Resolve(context.Background(), "FIT1045", "6")
	require.Len(t, got, 1)
	assert.Equal(t, "AB12", got[0].Code)
}

func TestResolveInlineLast(t *testing.T) {
	agg := NewAggregator(SourceConfig{
		Inline:  "Lab 1:ab12; ;CD34;bad token",
		Environ: []string{},
	}, nil)
	got := agg.Resolve(context.Background(), "FIT1045", "6")
	require.Len(t, got, 2)
	assert.Equal(t, "AB12", got[0].Code)
	assert.Equal(t, "Lab 1", got[0].SlotHint)
	assert.Equal(t, ProvenanceInline, got[0].Provenance)
	assert.Equal(t, "CD34", got[1].Code)
	assert.Empty(t, got[1].SlotHint)
}

func TestResolveEmptyIsValid(t *testing.T) {
	agg := NewAggregator(SourceConfig{Environ: []string{}}, nil)
	assert.Empty(t, agg.Resolve(context.Background(), "FIT1045", "6"))
}

func TestParseRosterShapes(t *testing.T) {
	list, err := ParseRoster([]byte(`[{"slot":"Lab 1","code":"AB12"}]`))
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = ParseRoster([]byte(`{"codes":[{"code":"AB12"}]}`))
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = ParseRoster([]byte(`{"Lab 1":"AB12","Tut 2":"CD34"}`))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Lab 1", list[0].Slot)

	_, err = ParseRoster([]byte(`42`))
	assert.Error(t, err)
}

func TestApplyRosterUpgrades(t *testing.T) {
	roster := []RosterEntry{
		{Slot: "Lab 1", Code: "AB12"},
		{Code: "CD34"}, // no slot, cannot upgrade anything
	}
	found := []Candidate{
		NewCandidate("AB12", "", ProvenanceText, ConfidenceMedium),
		NewCandidate("EF56", "", ProvenanceOCR, ConfidenceMedium),
	}

	got := ApplyRoster(roster, found)
	require.Len(t, got, 2)
	assert.Equal(t, ProvenancePrecise, got[0].Provenance)
	assert.Equal(t, "Lab 1", got[0].SlotHint)
	assert.Equal(t, ProvenanceOCR, got[1].Provenance)
}

func TestLatestLocalWeek(t *testing.T) {
	dir := t.TempDir()
	writeRoster(t, dir, "FIT1045", "4", `[]`)
	writeRoster(t, dir, "FIT1045", "11", `[]`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "FIT1045", "notes.txt"), []byte("x"), 0o644))

	week, ok := LatestLocalWeek(dir, "FIT1045")
	require.True(t, ok)
	assert.Equal(t, "11", week)

	_, ok = LatestLocalWeek(dir, "FIT9999")
	assert.False(t, ok)
}
