// Package decode turns screenshots of attendance codes into candidate
// codes using a vision model, with a file cache in front so an image is
// never billed twice.
package decode

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"rollcall/internal/cache"
	"rollcall/internal/codes"
)

// noCodesSentinel is what backends answer when an image carries no codes.
const noCodesSentinel = "NO_CODES_FOUND"

// visionPrompt asks the model for a machine-parseable answer.
const visionPrompt = `This image is from a university attendance system email.
Find every attendance code in it. Codes are 4 to 8 characters long and
contain only uppercase letters and digits, with at least one of each.
Reply with the codes only, one per line. If there are no codes, reply
with exactly ` + noCodesSentinel + `.`

// Image size bounds: anything outside is skipped without a backend call.
const (
	minImageBytes = 1 << 10  // 1 KiB, filters tracking pixels and icons
	maxImageBytes = 20 << 20 // 20 MiB
)

// ImageRef identifies one image attached to or embedded in a message.
type ImageRef struct {
	URL     string `json:"url"`
	Alt     string `json:"alt,omitempty"`
	Subject string `json:"subject,omitempty"`
}

// Backend is a vision model that reads codes out of image bytes.
type Backend interface {
	Name() string
	DecodeImage(ctx context.Context, data []byte, mimeType string) ([]string, error)
}

// Fetcher downloads an image, returning its bytes and MIME type.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// Decoder runs images through fetch, backend, and cache.
type Decoder struct {
	backend Backend
	fetcher Fetcher
	store   *cache.Store
	log     *zap.Logger
}

// NewDecoder wires a decoder. Backend may be nil (decoding disabled);
// the decoder then only serves cache hits.
func NewDecoder(backend Backend, fetcher Fetcher, store *cache.Store, log *zap.Logger) *Decoder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Decoder{backend: backend, fetcher: fetcher, store: store, log: log}
}

type cachedResult struct {
	Codes []string `json:"codes"`
}

// DecodeAll resolves candidates for a batch of images. Per image: cache
// lookup by URL hash, then fetch, size check, backend call, and a cache
// write that happens even for an empty result so the image is not
// re-billed on the next run.
func (d *Decoder) DecodeAll(ctx context.Context, images []ImageRef) []codes.Candidate {
	var out []codes.Candidate
	seen := make(map[string]struct{}, len(images))

	for _, img := range images {
		if img.URL == "" {
			continue
		}
		if _, dup := seen[img.URL]; dup {
			continue
		}
		seen[img.URL] = struct{}{}

		key := cache.Key("img=" + img.URL)

		var hit cachedResult
		if d.store != nil && d.store.Get(key, &hit) {
			d.log.Debug("image decode cache hit",
				zap.String("url", img.URL), zap.Int("codes", len(hit.Codes)))
			out = append(out, d.candidates(img, hit.Codes, codes.ProvenanceCached)...)
			continue
		}

		decoded := d.decodeOne(ctx, img)
		if decoded == nil {
			// Fetch or backend failure: nothing cached, retried next run.
			continue
		}
		if d.store != nil {
			if err := d.store.Put(key, cachedResult{Codes: decoded}); err != nil {
				d.log.Warn("image decode cache write failed", zap.Error(err))
			}
		}
		out = append(out, d.candidates(img, decoded, codes.ProvenanceOCR)...)
	}
	return codes.Dedupe(out)
}

// decodeOne returns the decoded codes, an empty non-nil slice for a
// clean "no codes" answer, or nil when the attempt should not be cached.
func (d *Decoder) decodeOne(ctx context.Context, img ImageRef) []string {
	if d.backend == nil || d.fetcher == nil {
		return nil
	}

	data, mimeType, err := d.fetcher.Fetch(ctx, img.URL)
	if err != nil {
		d.log.Warn("image fetch failed", zap.String("url", img.URL), zap.Error(err))
		return nil
	}
	if len(data) < minImageBytes || len(data) > maxImageBytes {
		d.log.Debug("image outside size bounds",
			zap.String("url", img.URL), zap.Int("bytes", len(data)))
		return []string{}
	}

	raw, err := d.backend.DecodeImage(ctx, data, mimeType)
	if err != nil {
		d.log.Warn("vision decode failed",
			zap.String("backend", d.backend.Name()), zap.String("url", img.URL), zap.Error(err))
		return nil
	}

	d.log.Info("image decoded",
		zap.String("backend", d.backend.Name()),
		zap.String("url", img.URL),
		zap.Int("codes", len(raw)))
	return raw
}

// PurgeCache drops the decode result cache.
func (d *Decoder) PurgeCache() error {
	if d.store == nil {
		return nil
	}
	return d.store.Purge()
}

func (d *Decoder) candidates(img ImageRef, codeList []string, prov codes.Provenance) []codes.Candidate {
	conf := codes.ConfidenceMedium
	out := make([]codes.Candidate, 0, len(codeList))
	for _, code := range codeList {
		c := codes.NewCandidate(code, "", prov, conf)
		if m := codes.CourseToken.FindString(strings.ToUpper(img.Subject)); m != "" {
			c.CourseHint = m
		}
		if codes.IsValidCode(c.Code) {
			out = append(out, c)
		}
	}
	return out
}

// ParseResponse turns a backend's raw text answer into code tokens.
// The sentinel and any non-code chatter are dropped.
func ParseResponse(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" || strings.Contains(text, noCodesSentinel) {
		return []string{}
	}
	var out []string
	seen := make(map[string]struct{})
	for _, line := range strings.Split(text, "\n") {
		for _, tok := range codes.ExtractFromText(line) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			out = append(out, tok)
		}
	}
	return out
}
