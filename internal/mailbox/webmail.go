package mailbox

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"rollcall/internal/decode"
)

const webmailStepTimeout = 20 * time.Second

// Webmail row/detail selectors. Primary set targets Gmail's DOM; the
// fallbacks cover the basic-HTML view.
var (
	rowSelectors     = []string{"tr.zA", "table.th tr"}
	subjectSelectors = []string{"h2.hP", ".ha h2", "title"}
	bodySelectors    = []string{"div.a3s", "div.msg", "body"}
)

// WebmailDriver drives a signed-in webmail tab. The caller supplies a
// page whose session is already authenticated (via storage state).
type WebmailDriver struct {
	page    *rod.Page
	baseURL string
	log     *zap.Logger
}

// NewWebmailDriver wraps an authenticated page.
func NewWebmailDriver(page *rod.Page, baseURL string, log *zap.Logger) *WebmailDriver {
	if log == nil {
		log = zap.NewNop()
	}
	if baseURL == "" {
		baseURL = "https://mail.google.com/mail/u/0/"
	}
	return &WebmailDriver{page: page, baseURL: baseURL, log: log}
}

// Search navigates to the search-scoped mailbox view.
func (d *WebmailDriver) Search(ctx context.Context, query string) error {
	target := strings.TrimRight(d.baseURL, "/") + "/#search/" + url.PathEscape(query)
	page := d.page.Context(ctx).Timeout(webmailStepTimeout)

	if err := page.Navigate(target); err != nil {
		return fmt.Errorf("navigate to search: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("search view load: %w", err)
	}
	// The result list renders asynchronously after the hash route.
	time.Sleep(2 * time.Second)
	return nil
}

// Messages opens up to limit rows from the current view and reads each
// one. Rows are re-queried after every navigation because the list DOM
// is rebuilt when returning from a message.
func (d *WebmailDriver) Messages(ctx context.Context, limit int) ([]Message, error) {
	var out []Message

	for i := 0; i < limit; i++ {
		page := d.page.Context(ctx).Timeout(webmailStepTimeout)

		rows, err := d.findRows(page)
		if err != nil {
			return out, err
		}
		if i >= len(rows) {
			break
		}

		// The row snippet disappears once the message opens, so read it
		// first.
		preview := ""
		if text, err := rows[i].Text(); err == nil {
			preview = strings.Join(strings.Fields(text), " ")
		}

		if err := rows[i].Click(proto.InputMouseButtonLeft, 1); err != nil {
			d.log.Warn("webmail row click failed", zap.Int("row", i), zap.Error(err))
			continue
		}
		if err := page.WaitLoad(); err != nil {
			d.log.Warn("webmail message load failed", zap.Int("row", i), zap.Error(err))
		}
		time.Sleep(time.Second)

		msg := d.readOpenMessage(page)
		msg.Preview = preview
		out = append(out, msg)
		d.log.Debug("webmail message read",
			zap.Int("row", i),
			zap.String("subject", msg.Subject),
			zap.Int("images", len(msg.Images)))

		if err := page.NavigateBack(); err != nil {
			return out, fmt.Errorf("navigate back: %w", err)
		}
		if err := page.WaitLoad(); err != nil {
			d.log.Warn("webmail list reload failed", zap.Error(err))
		}
		time.Sleep(time.Second)
	}
	return out, nil
}

func (d *WebmailDriver) findRows(page *rod.Page) (rod.Elements, error) {
	for _, sel := range rowSelectors {
		rows, err := page.Elements(sel)
		if err == nil && len(rows) > 0 {
			return rows, nil
		}
	}
	return nil, fmt.Errorf("no message rows found")
}

func (d *WebmailDriver) readOpenMessage(page *rod.Page) Message {
	var msg Message

	for _, sel := range subjectSelectors {
		if el, err := page.Element(sel); err == nil {
			if text, err := el.Text(); err == nil && strings.TrimSpace(text) != "" {
				msg.Subject = strings.TrimSpace(text)
				break
			}
		}
	}

	for _, sel := range bodySelectors {
		el, err := page.Element(sel)
		if err != nil {
			continue
		}
		if text, err := el.Text(); err == nil && strings.TrimSpace(text) != "" {
			msg.Body = strings.TrimSpace(text)
		}
		msg.Images = append(msg.Images, collectImages(el)...)
		if msg.Body != "" {
			break
		}
	}
	return msg
}

func collectImages(container *rod.Element) []decode.ImageRef {
	var refs []decode.ImageRef
	imgs, err := container.Elements("img")
	if err != nil {
		return nil
	}
	for _, img := range imgs {
		src, err := img.Attribute("src")
		if err != nil || src == nil {
			continue
		}
		u := strings.TrimSpace(*src)
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			continue
		}
		ref := decode.ImageRef{URL: u}
		if alt, err := img.Attribute("alt"); err == nil && alt != nil {
			ref.Alt = *alt
		}
		refs = append(refs, ref)
	}
	return refs
}
