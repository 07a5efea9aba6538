package mailbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"rollcall/internal/cache"
	"rollcall/internal/codes"
	"rollcall/internal/decode"
)

// UnknownCourse buckets candidates whose message carried no course token.
const UnknownCourse = "UNKNOWN"

// Message is one opened webmail message.
type Message struct {
	Subject string
	Preview string
	Body    string
	Images  []decode.ImageRef
}

// Driver is the webmail surface the extractor walks. Implementations
// own the browser; the extractor owns the semantics.
type Driver interface {
	// Search scopes the mailbox view to the query.
	Search(ctx context.Context, query string) error
	// Messages opens and returns up to limit messages from the view.
	Messages(ctx context.Context, limit int) ([]Message, error)
}

// Params controls one extraction run.
type Params struct {
	Week          string
	SearchDays    int
	MaxMessages   int
	DomainHint    string
	Identity      string
	QueryOverride string
	ForceRefresh  bool
	// DataDir enables precise-slot upgrades from local rosters.
	DataDir string
}

// Extractor groups mailbox-sourced candidates by course.
type Extractor struct {
	driver  Driver
	decoder *decode.Decoder
	store   *cache.Store
	log     *zap.Logger
	now     func() time.Time
}

// NewExtractor wires an extractor. Decoder and store may be nil.
func NewExtractor(driver Driver, decoder *decode.Decoder, store *cache.Store, log *zap.Logger) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{driver: driver, decoder: decoder, store: store, log: log, now: time.Now}
}

// Extract runs search, scan, decode, merge, and grouping. Results are
// served from the TTL cache when a live entry exists for the same
// query and identity; cached replays carry the cached provenance.
func (e *Extractor) Extract(ctx context.Context, p Params) (map[string][]codes.Candidate, error) {
	query := p.QueryOverride
	if query == "" {
		query = BuildQuery(p.DomainHint, p.Week, p.SearchDays, e.now())
	}
	key := cache.Key("q="+query, "e="+p.Identity)

	if e.store != nil && !p.ForceRefresh {
		var cached map[string][]codes.Candidate
		if e.store.Get(key, &cached) {
			e.log.Info("mailbox cache hit", zap.String("query", query))
			return replayCached(cached), nil
		}
	}

	if e.driver == nil {
		return nil, fmt.Errorf("no mailbox driver configured")
	}

	if err := e.driver.Search(ctx, query); err != nil {
		return nil, fmt.Errorf("mailbox search: %w", err)
	}

	limit := p.MaxMessages
	if limit <= 0 {
		limit = defaultMaxMessages
	}
	messages, err := e.driver.Messages(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("mailbox scan: %w", err)
	}
	e.log.Info("mailbox scan complete",
		zap.String("query", query), zap.Int("messages", len(messages)))

	var all []codes.Candidate
	var images []decode.ImageRef

	for _, msg := range messages {
		course := courseFromSubject(msg.Subject)

		for _, code := range codes.ExtractFromText(msg.Subject + "\n" + msg.Preview) {
			c := codes.NewCandidate(code, "", codes.ProvenanceText, codes.ConfidenceMedium)
			c.CourseHint = course
			all = append(all, c)
		}
		for _, code := range codes.ExtractFromText(msg.Body) {
			c := codes.NewCandidate(code, "", codes.ProvenanceTextBody, codes.ConfidenceMedium)
			c.CourseHint = course
			all = append(all, c)
		}
		for _, img := range msg.Images {
			img.Subject = msg.Subject
			images = append(images, img)
		}
	}

	if e.decoder != nil && len(images) > 0 {
		all = append(all, e.decoder.DecodeAll(ctx, images)...)
	}

	grouped := groupByCourse(codes.Dedupe(codes.FilterValid(all)))

	if p.DataDir != "" && p.Week != "" {
		for course, list := range grouped {
			if course == UnknownCourse {
				continue
			}
			roster, err := codes.LoadLocalRoster(p.DataDir, course, p.Week)
			if err != nil {
				continue
			}
			grouped[course] = codes.ApplyRoster(roster, list)
		}
	}

	if e.store != nil {
		if err := e.store.Put(key, grouped); err != nil {
			e.log.Warn("mailbox cache write failed", zap.Error(err))
		}
	}
	return grouped, nil
}

// PurgeCache drops the mailbox result cache and the decoder's image
// cache behind it.
func (e *Extractor) PurgeCache() error {
	if e.decoder != nil {
		if err := e.decoder.PurgeCache(); err != nil {
			return err
		}
	}
	if e.store == nil {
		return nil
	}
	return e.store.Purge()
}

func replayCached(grouped map[string][]codes.Candidate) map[string][]codes.Candidate {
	out := make(map[string][]codes.Candidate, len(grouped))
	for course, list := range grouped {
		replayed := make([]codes.Candidate, 0, len(list))
		for _, c := range list {
			// Precise slot bindings survive a cache replay; everything
			// else is downgraded to the cached provenance.
			if c.Provenance != codes.ProvenancePrecise {
				c.Provenance = codes.ProvenanceCached
			}
			replayed = append(replayed, c)
		}
		out[course] = replayed
	}
	return out
}

func courseFromSubject(subject string) string {
	if m := codes.CourseToken.FindString(strings.ToUpper(subject)); m != "" {
		return m
	}
	return ""
}

func groupByCourse(list []codes.Candidate) map[string][]codes.Candidate {
	grouped := make(map[string][]codes.Candidate)
	for _, c := range list {
		course := c.CourseHint
		if course == "" {
			course = UnknownCourse
		}
		grouped[course] = append(grouped[course], c)
	}
	return grouped
}
