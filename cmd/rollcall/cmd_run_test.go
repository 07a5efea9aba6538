package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"rollcall/internal/config"
)

// The mailbox browser must be a fully independent instance: same saved
// login, but its own headless flag, no shared debugger attachment, and
// no shared session store.
func TestMailBrowserConfigIsIsolated(t *testing.T) {
	cfg := config.Default()
	cfg.Browser.DebuggerURL = "ws://127.0.0.1:9222/devtools"
	cfg.Browser.Headless = true
	cfg.Browser.StorageState = "state.json"
	cfg.Mailbox.Headless = false

	portalCfg := browserConfig(cfg)
	mailCfg := mailBrowserConfig(cfg)

	assert.Equal(t, portalCfg.StorageState, mailCfg.StorageState)
	assert.True(t, portalCfg.Headless)
	assert.False(t, mailCfg.Headless)
	assert.Empty(t, mailCfg.DebuggerURL)
	assert.Empty(t, mailCfg.SessionStore)
}
