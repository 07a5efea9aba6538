package mailbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/cache"
	"rollcall/internal/codes"
	"rollcall/internal/decode"
)

type fakeDriver struct {
	messages  []Message
	searches  []string
	scanCalls int
	searchErr error
}

func (f *fakeDriver) Search(_ context.Context, query string) error {
	f.searches = append(f.searches, query)
	return f.searchErr
}

func (f *fakeDriver) Messages(_ context.Context, limit int) ([]Message, error) {
	f.scanCalls++
	if limit < len(f.messages) {
		return f.messages[:limit], nil
	}
	return f.messages, nil
}

func newTestExtractor(t *testing.T, driver Driver) *Extractor {
	t.Helper()
	store := cache.New(filepath.Join(t.TempDir(), "mail.json"), 30, nil)
	return NewExtractor(driver, nil, store, nil)
}

func TestBuildQuery(t *testing.T) {
	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	q := BuildQuery("@example.edu", "6", 7, now)
	assert.Equal(t, "attendance codes @example.edu week 6 after:2026/08/19 before:2026/08/27", q)

	q = BuildQuery("", "", 0, now)
	assert.Equal(t, "attendance codes after:2026/08/19 before:2026/08/27", q)
}

func TestExtractGroupsByCourse(t *testing.T) {
	driver := &fakeDriver{messages: []Message{
		{Subject: "FIT1045 attendance codes", Preview: "lab code AB12"},
		{Subject: "Reminder", Body: "your code is CD34"},
	}}
	e := newTestExtractor(t, driver)

	grouped, err := e.Extract(context.Background(), Params{Week: "6", Identity: "me@example.edu"})
	require.NoError(t, err)

	require.Contains(t, grouped, "FIT1045")
	require.Contains(t, grouped, UnknownCourse)
	assert.Equal(t, "AB12", grouped["FIT1045"][0].Code)
	assert.Equal(t, codes.ProvenanceText, grouped["FIT1045"][0].Provenance)
	assert.Equal(t, "CD34", grouped[UnknownCourse][0].Code)
	assert.Equal(t, codes.ProvenanceTextBody, grouped[UnknownCourse][0].Provenance)
}

func TestExtractUsesCacheOnSecondRun(t *testing.T) {
	driver := &fakeDriver{messages: []Message{
		{Subject: "FIT1045 codes", Preview: "AB12"},
	}}
	e := newTestExtractor(t, driver)
	p := Params{Week: "6", Identity: "me@example.edu"}

	first, err := e.Extract(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, first["FIT1045"], 1)

	second, err := e.Extract(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 1, driver.scanCalls)
	assert.Equal(t, codes.ProvenanceCached, second["FIT1045"][0].Provenance)
}

func TestExtractForceRefreshBypassesCache(t *testing.T) {
	driver := &fakeDriver{messages: []Message{
		{Subject: "FIT1045 codes", Preview: "AB12"},
	}}
	e := newTestExtractor(t, driver)
	p := Params{Week: "6", Identity: "me@example.edu"}

	_, err := e.Extract(context.Background(), p)
	require.NoError(t, err)

	p.ForceRefresh = true
	_, err = e.Extract(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 2, driver.scanCalls)
}

func TestExtractUpgradesFromLocalRoster(t *testing.T) {
	dir := t.TempDir()
	rosterPath := filepath.Join(dir, "FIT1045")
	require.NoError(t, writeFile(t, filepath.Join(rosterPath, "6.json"),
		`[{"slot":"Lab 1","code":"AB12"}]`))

	driver := &fakeDriver{messages: []Message{
		{Subject: "FIT1045 codes", Body: "AB12 and EF56"},
	}}
	e := newTestExtractor(t, driver)

	grouped, err := e.Extract(context.Background(), Params{Week: "6", DataDir: dir})
	require.NoError(t, err)

	list := grouped["FIT1045"]
	require.Len(t, list, 2)
	assert.Equal(t, codes.ProvenancePrecise, list[0].Provenance)
	assert.Equal(t, "Lab 1", list[0].SlotHint)
	assert.Equal(t, codes.ProvenanceTextBody, list[1].Provenance)
}

func TestExtractQueryOverride(t *testing.T) {
	driver := &fakeDriver{}
	e := newTestExtractor(t, driver)

	_, err := e.Extract(context.Background(), Params{QueryOverride: "from:lecturer week 6"})
	require.NoError(t, err)
	require.Len(t, driver.searches, 1)
	assert.Equal(t, "from:lecturer week 6", driver.searches[0])
}

func TestExtractSearchFailure(t *testing.T) {
	driver := &fakeDriver{searchErr: fmt.Errorf("not signed in")}
	e := newTestExtractor(t, driver)

	_, err := e.Extract(context.Background(), Params{})
	assert.Error(t, err)
}

func TestPurgeCacheCoversDecoderCache(t *testing.T) {
	dir := t.TempDir()
	mailStore := cache.New(filepath.Join(dir, "mail.json"), 30, nil)
	ocrStore := cache.New(filepath.Join(dir, "ocr.json"), 0, nil)
	require.NoError(t, mailStore.Put(cache.Key("q=x"), map[string]string{"a": "b"}))
	require.NoError(t, ocrStore.Put(cache.Key("img=y"), []string{"AB12"}))

	decoder := decode.NewDecoder(nil, nil, ocrStore, nil)
	e := NewExtractor(&fakeDriver{}, decoder, mailStore, nil)
	require.NoError(t, e.PurgeCache())

	_, err := os.Stat(mailStore.Path())
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(ocrStore.Path())
	assert.True(t, os.IsNotExist(err))
}

func writeFile(t *testing.T, path, content string) error {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
