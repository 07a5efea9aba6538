package portal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// StorageState is the persisted authentication snapshot: cookies plus
// per-origin localStorage, in the shape browser tooling commonly
// exports, so an externally captured login session can be dropped in.
type StorageState struct {
	Cookies []StateCookie `json:"cookies"`
	Origins []StateOrigin `json:"origins"`
}

// StateCookie is one persisted cookie.
type StateCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// StateOrigin carries localStorage entries for one origin.
type StateOrigin struct {
	Origin       string      `json:"origin"`
	LocalStorage []StateItem `json:"localStorage"`
}

// StateItem is one localStorage key/value pair.
type StateItem struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// LoadStorageState reads a storage-state file.
func LoadStorageState(path string) (*StorageState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var state StorageState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse storage state: %w", err)
	}
	return &state, nil
}

// SaveStorageState writes the snapshot to disk.
func SaveStorageState(path string, state *StorageState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Effective reports whether the snapshot can plausibly authenticate:
// it must carry at least one cookie.
func (s *StorageState) Effective() bool {
	return s != nil && len(s.Cookies) > 0
}

// StorageStateEffective checks a state file on disk without keeping it.
func StorageStateEffective(path string) bool {
	state, err := LoadStorageState(path)
	if err != nil {
		return false
	}
	return state.Effective()
}

// ApplyStorageState restores cookies into the page's browser context
// and localStorage into the page's current origin when it matches.
func ApplyStorageState(page *rod.Page, state *StorageState) error {
	if state == nil {
		return nil
	}

	params := make([]*proto.NetworkCookieParam, 0, len(state.Cookies))
	for _, c := range state.Cookies {
		p := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: sameSiteFromString(c.SameSite),
		}
		if c.Expires > 0 {
			p.Expires = proto.TimeSinceEpoch(c.Expires)
		}
		params = append(params, p)
	}
	if len(params) > 0 {
		if err := page.SetCookies(params); err != nil {
			return fmt.Errorf("restore cookies: %w", err)
		}
	}

	info, err := page.Info()
	if err != nil || info == nil {
		return nil
	}
	for _, origin := range state.Origins {
		if !originMatches(info.URL, origin.Origin) {
			continue
		}
		for _, item := range origin.LocalStorage {
			_, _ = page.Evaluate(&rod.EvalOptions{
				JS:      `(k, v) => { try { localStorage.setItem(k, v); } catch (e) {} }`,
				JSArgs:  []interface{}{item.Name, item.Value},
				ByValue: true,
			})
		}
	}
	return nil
}

// CaptureStorageState snapshots the page's cookies and localStorage.
func CaptureStorageState(page *rod.Page) (*StorageState, error) {
	res, err := proto.NetworkGetCookies{}.Call(page)
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}

	state := &StorageState{}
	for _, c := range res.Cookies {
		state.Cookies = append(state.Cookies, StateCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}

	info, err := page.Info()
	if err == nil && info != nil && info.URL != "" {
		items := snapshotLocalStorage(page)
		if len(items) > 0 {
			state.Origins = append(state.Origins, StateOrigin{
				Origin:       originOf(info.URL),
				LocalStorage: items,
			})
		}
	}
	return state, nil
}

func snapshotLocalStorage(page *rod.Page) []StateItem {
	res, err := page.Evaluate(&rod.EvalOptions{
		JS: `() => {
			try {
				const out = [];
				for (const key of Object.keys(localStorage)) {
					out.push({ name: key, value: localStorage.getItem(key) });
				}
				return out;
			} catch (e) {
				return [];
			}
		}`,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil || res == nil || res.Value.Nil() {
		return nil
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil
	}
	var items []StateItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	return items
}

func sameSiteFromString(s string) proto.NetworkCookieSameSite {
	switch s {
	case "Strict":
		return proto.NetworkCookieSameSiteStrict
	case "Lax":
		return proto.NetworkCookieSameSiteLax
	case "None":
		return proto.NetworkCookieSameSiteNone
	default:
		return ""
	}
}

func originOf(url string) string {
	// scheme://host portion only
	for i := 0; i < len(url); i++ {
		if url[i] == '/' && i+2 < len(url) && url[i+1] == '/' {
			for j := i + 2; j < len(url); j++ {
				if url[j] == '/' {
					return url[:j]
				}
			}
			return url
		}
	}
	return url
}

func originMatches(pageURL, origin string) bool {
	return origin != "" && originOf(pageURL) == origin
}
