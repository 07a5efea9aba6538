package decode

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"os/exec"
	"time"

	"github.com/go-rod/rod"
	"golang.org/x/net/publicsuffix"
)

const fetchTimeout = 30 * time.Second

// PageFetcher downloads an image from inside an authenticated browser
// page, so cookie-gated mail attachments resolve the same way they do
// for the user.
type PageFetcher struct {
	page *rod.Page
}

// NewPageFetcher wraps an existing page.
func NewPageFetcher(page *rod.Page) *PageFetcher {
	return &PageFetcher{page: page}
}

// Fetch runs an in-page fetch with credentials and returns the bytes.
func (f *PageFetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	if f.page == nil {
		return nil, "", fmt.Errorf("no page attached")
	}

	res, err := f.page.Context(ctx).Timeout(fetchTimeout).Evaluate(&rod.EvalOptions{
		JS: `
		async (url) => {
			const resp = await fetch(url, { credentials: 'include' });
			if (!resp.ok) throw new Error('fetch status ' + resp.status);
			const type = resp.headers.get('content-type') || '';
			const buf = await resp.arrayBuffer();
			let binary = '';
			const bytes = new Uint8Array(buf);
			const chunk = 0x8000;
			for (let i = 0; i < bytes.length; i += chunk) {
				binary += String.fromCharCode.apply(null, bytes.subarray(i, i + chunk));
			}
			return { b64: btoa(binary), type };
		}
		`,
		JSArgs:       []interface{}{url},
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("in-page fetch: %w", err)
	}

	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, "", fmt.Errorf("marshal fetch result: %w", err)
	}
	var payload struct {
		B64  string `json:"b64"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, "", fmt.Errorf("decode fetch result: %w", err)
	}

	data, err := base64.StdEncoding.DecodeString(payload.B64)
	if err != nil {
		return nil, "", fmt.Errorf("decode image bytes: %w", err)
	}
	return data, payload.Type, nil
}

// HTTPFetcher downloads an image directly, with a public-suffix-aware
// cookie jar so redirects through auth domains keep their cookies.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher builds the direct HTTP fetcher.
func NewHTTPFetcher() (*HTTPFetcher, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	return &HTTPFetcher{
		client: &http.Client{Jar: jar, Timeout: fetchTimeout},
	}, nil
}

// Fetch GETs the URL and returns body bytes plus Content-Type.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", "rollcall/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", err
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// CurlFetcher shells out to curl as a last resort for hosts with TLS
// setups the Go client rejects.
type CurlFetcher struct{}

// Fetch downloads via curl -ksL.
func (CurlFetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	cmd := exec.CommandContext(ctx, "curl", "-ksL", "--max-time", "30", url)
	data, err := cmd.Output()
	if err != nil {
		return nil, "", fmt.Errorf("curl: %w", err)
	}
	return data, http.DetectContentType(data), nil
}

// ChainFetcher tries fetchers in order until one succeeds.
type ChainFetcher []Fetcher

// Fetch returns the first successful result.
func (c ChainFetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	var lastErr error
	for _, f := range c {
		data, mimeType, err := f.Fetch(ctx, url)
		if err == nil {
			return data, mimeType, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no fetchers configured")
	}
	return nil, "", lastErr
}
