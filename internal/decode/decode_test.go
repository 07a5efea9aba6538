package decode

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/cache"
	"rollcall/internal/codes"
)

type fakeBackend struct {
	answers map[string][]string
	err     error
	calls   int
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) DecodeImage(_ context.Context, data []byte, _ string) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.answers[string(data)], nil
}

type fakeFetcher struct {
	images map[string][]byte
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, string, error) {
	data, ok := f.images[url]
	if !ok {
		return nil, "", fmt.Errorf("not found: %s", url)
	}
	return data, "image/png", nil
}

func paddedImage(tag string) []byte {
	return append([]byte(tag), bytes.Repeat([]byte{0}, minImageBytes)...)
}

func newTestDecoder(t *testing.T, backend Backend, fetcher Fetcher) *Decoder {
	t.Helper()
	store := cache.New(filepath.Join(t.TempDir(), "ocr.json"), 0, nil)
	return NewDecoder(backend, fetcher, store, nil)
}

func TestDecodeAllProducesOCRCandidates(t *testing.T) {
	img := paddedImage("one")
	backend := &fakeBackend{answers: map[string][]string{string(img): {"AB12", "CD34"}}}
	fetcher := &fakeFetcher{images: map[string][]byte{"https://mail/img1": img}}
	d := newTestDecoder(t, backend, fetcher)

	got := d.DecodeAll(context.Background(), []ImageRef{
		{URL: "https://mail/img1", Subject: "FIT1045 attendance codes"},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "AB12", got[0].Code)
	assert.Equal(t, codes.ProvenanceOCR, got[0].Provenance)
	assert.Equal(t, codes.ConfidenceMedium, got[0].Confidence)
	assert.Equal(t, "FIT1045", got[0].CourseHint)
}

func TestDecodeAllCachesResults(t *testing.T) {
	img := paddedImage("one")
	backend := &fakeBackend{answers: map[string][]string{string(img): {"AB12"}}}
	fetcher := &fakeFetcher{images: map[string][]byte{"https://mail/img1": img}}
	d := newTestDecoder(t, backend, fetcher)

	refs := []ImageRef{{URL: "https://mail/img1"}}
	first := d.DecodeAll(context.Background(), refs)
	second := d.DecodeAll(context.Background(), refs)

	assert.Equal(t, 1, backend.calls)
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, codes.ProvenanceOCR, first[0].Provenance)
	assert.Equal(t, codes.ProvenanceCached, second[0].Provenance)
}

func TestDecodeAllCachesEmptyResults(t *testing.T) {
	img := paddedImage("empty")
	backend := &fakeBackend{answers: map[string][]string{}}
	fetcher := &fakeFetcher{images: map[string][]byte{"https://mail/img1": img}}
	d := newTestDecoder(t, backend, fetcher)

	refs := []ImageRef{{URL: "https://mail/img1"}}
	assert.Empty(t, d.DecodeAll(context.Background(), refs))
	assert.Empty(t, d.DecodeAll(context.Background(), refs))
	// The empty answer was cached after the first call.
	assert.Equal(t, 1, backend.calls)
}

func TestDecodeAllSkipsFailuresWithoutCaching(t *testing.T) {
	img := paddedImage("one")
	backend := &fakeBackend{err: fmt.Errorf("quota exhausted")}
	fetcher := &fakeFetcher{images: map[string][]byte{"https://mail/img1": img}}
	d := newTestDecoder(t, backend, fetcher)

	refs := []ImageRef{{URL: "https://mail/img1"}}
	assert.Empty(t, d.DecodeAll(context.Background(), refs))

	// The failure was not cached, so a later run tries again.
	backend.err = nil
	backend.answers = map[string][]string{string(img): {"AB12"}}
	got := d.DecodeAll(context.Background(), refs)
	require.Len(t, got, 1)
	assert.Equal(t, 2, backend.calls)
}

func TestDecodeAllEnforcesSizeBounds(t *testing.T) {
	backend := &fakeBackend{answers: map[string][]string{"tiny": {"AB12"}}}
	fetcher := &fakeFetcher{images: map[string][]byte{"https://mail/tiny": []byte("tiny")}}
	d := newTestDecoder(t, backend, fetcher)

	got := d.DecodeAll(context.Background(), []ImageRef{{URL: "https://mail/tiny"}})
	assert.Empty(t, got)
	assert.Zero(t, backend.calls)
}

func TestDecodeAllWithoutBackendOnlyServesCache(t *testing.T) {
	store := cache.New(filepath.Join(t.TempDir(), "ocr.json"), 0, nil)
	require.NoError(t, store.Put(cache.Key("img=https://mail/img1"), cachedResult{Codes: []string{"AB12"}}))

	d := NewDecoder(nil, nil, store, nil)
	got := d.DecodeAll(context.Background(), []ImageRef{
		{URL: "https://mail/img1"},
		{URL: "https://mail/img2"},
	})
	require.Len(t, got, 1)
	assert.Equal(t, codes.ProvenanceCached, got[0].Provenance)
}

func TestParseResponse(t *testing.T) {
	assert.Equal(t, []string{"AB12", "CD34"}, ParseResponse("AB12\ncd34\n"))
	assert.Empty(t, ParseResponse("NO_CODES_FOUND"))
	assert.Empty(t, ParseResponse("  "))
	assert.Equal(t, []string{"AB12"}, ParseResponse("The code is AB12 (ignore FIT1045)"))
}

func TestSelectBackendPolicies(t *testing.T) {
	ctx := context.Background()

	b, err := SelectBackend(ctx, Options{Policy: PolicyNone}, nil)
	require.NoError(t, err)
	assert.Nil(t, b)

	b, err = SelectBackend(ctx, Options{Policy: PolicyAuto}, nil)
	require.NoError(t, err)
	assert.Nil(t, b)

	b, err = SelectBackend(ctx, Options{Policy: PolicyAuto, OpenAIAPIKey: "sk-test"}, nil)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Contains(t, b.Name(), "openai")

	_, err = SelectBackend(ctx, Options{Policy: "tesseract"}, nil)
	assert.Error(t, err)

	_, err = SelectBackend(ctx, Options{Policy: PolicyOpenAI}, nil)
	assert.Error(t, err)
}
