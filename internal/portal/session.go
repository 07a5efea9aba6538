package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session describes the public metadata for a tracked browser context.
type Session struct {
	ID         string    `json:"id"`
	TargetID   string    `json:"target_id,omitempty"`
	URL        string    `json:"url,omitempty"`
	Status     string    `json:"status,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

type sessionRecord struct {
	meta Session
	page *rod.Page
}

// Config holds browser configuration.
type Config struct {
	// DebuggerURL attaches to an already-running Chrome instead of
	// launching one.
	DebuggerURL         string `yaml:"debugger_url"`
	Bin                 string `yaml:"bin"`
	Headless            bool   `yaml:"headless"`
	ViewportWidth       int    `yaml:"viewport_width"`
	ViewportHeight      int    `yaml:"viewport_height"`
	NavigationTimeoutMs int    `yaml:"navigation_timeout_ms"`
	SessionStore        string `yaml:"session_store"`
	// StorageState is the auth snapshot restored into every new page.
	StorageState string `yaml:"storage_state"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:            true,
		ViewportWidth:       1920,
		ViewportHeight:      1080,
		NavigationTimeoutMs: 30000,
	}
}

// NavigationTimeout returns the navigation timeout.
func (c Config) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// Manager owns the Chrome instance and tracks active pages.
type Manager struct {
	cfg Config
	log *zap.Logger

	mu         sync.RWMutex
	browser    *rod.Browser
	sessions   map[string]*sessionRecord
	controlURL string
}

// NewManager creates a session manager.
func NewManager(cfg Config, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		cfg:      cfg,
		log:      log,
		sessions: make(map[string]*sessionRecord),
	}
}

// Start connects to an existing Chrome or launches a new one.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		m.log.Warn("stale browser connection, reconnecting")
		_ = m.browser.Close()
		m.browser = nil
		m.controlURL = ""
		m.sessions = make(map[string]*sessionRecord)
	}

	controlURL := m.cfg.DebuggerURL
	if controlURL == "" {
		launch := launcher.New().Headless(m.cfg.Headless)
		if m.cfg.Bin != "" {
			launch = launch.Bin(m.cfg.Bin)
		}
		url, err := launch.Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	m.browser = browser
	m.controlURL = controlURL
	m.log.Info("browser connected", zap.Bool("headless", m.cfg.Headless))
	return nil
}

func (m *Manager) ensureStarted(ctx context.Context) error {
	m.mu.RLock()
	if m.browser != nil {
		m.mu.RUnlock()
		return nil
	}
	m.mu.RUnlock()
	return m.Start(ctx)
}

// ControlURL returns the WebSocket debugger URL.
func (m *Manager) ControlURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.controlURL
}

// IsConnected returns whether the browser is connected.
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser != nil
}

// NewPage opens a tracked page, restores the configured storage state
// into it, and navigates to url.
func (m *Manager) NewPage(ctx context.Context, url string) (*rod.Page, *Session, error) {
	if err := m.ensureStarted(ctx); err != nil {
		return nil, nil, err
	}
	m.mu.RLock()
	browser := m.browser
	m.mu.RUnlock()
	if browser == nil {
		return nil, nil, errors.New("browser not connected")
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, nil, fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             m.cfg.ViewportWidth,
		Height:            m.cfg.ViewportHeight,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		m.log.Warn("viewport override failed", zap.Error(err))
	}

	if m.cfg.StorageState != "" {
		state, err := LoadStorageState(m.cfg.StorageState)
		if err != nil {
			if !os.IsNotExist(err) {
				m.log.Warn("storage state unreadable",
					zap.String("path", m.cfg.StorageState), zap.Error(err))
			}
		} else if err := ApplyStorageState(page, state); err != nil {
			m.log.Warn("storage state restore failed", zap.Error(err))
		}
	}

	if url != "" {
		if err := page.Context(ctx).Timeout(m.cfg.NavigationTimeout()).Navigate(url); err != nil {
			_ = page.Close()
			return nil, nil, fmt.Errorf("navigate: %w", err)
		}
	}

	meta := Session{
		ID:         uuid.NewString(),
		TargetID:   string(page.TargetID),
		URL:        url,
		Status:     "active",
		CreatedAt:  time.Now(),
		LastActive: time.Now(),
	}

	m.mu.Lock()
	m.sessions[meta.ID] = &sessionRecord{meta: meta, page: page}
	m.mu.Unlock()
	_ = m.persistSessions()

	return page, &meta, nil
}

// Page returns the underlying page for a session.
func (m *Manager) Page(sessionID string) (*rod.Page, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return rec.page, true
}

// List returns metadata for all known sessions.
func (m *Manager) List() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Session, 0, len(m.sessions))
	for _, rec := range m.sessions {
		out = append(out, rec.meta)
	}
	return out
}

// SaveState captures a session's cookies and storage into the
// configured storage-state file, refreshing it for the next run.
func (m *Manager) SaveState(sessionID string) error {
	if m.cfg.StorageState == "" {
		return nil
	}
	page, ok := m.Page(sessionID)
	if !ok || page == nil {
		return fmt.Errorf("unknown session: %s", sessionID)
	}
	state, err := CaptureStorageState(page)
	if err != nil {
		return err
	}
	return SaveStorageState(m.cfg.StorageState, state)
}

// Shutdown closes tracked pages and the browser.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, rec := range m.sessions {
		if rec.page != nil {
			_ = rec.page.Close()
		}
		delete(m.sessions, id)
	}

	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	m.controlURL = ""
	return err
}

// persistSessions writes session metadata to disk.
func (m *Manager) persistSessions() error {
	if m.cfg.SessionStore == "" {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]Session, 0, len(m.sessions))
	for _, rec := range m.sessions {
		sessions = append(sessions, rec.meta)
	}

	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.cfg.SessionStore), 0o755); err != nil {
		return err
	}
	return os.WriteFile(m.cfg.SessionStore, data, 0o644)
}
