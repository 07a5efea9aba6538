package portal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "storage_state.json")
	state := &StorageState{
		Cookies: []StateCookie{{
			Name: "session", Value: "abc", Domain: ".portal.example.edu",
			Path: "/", Secure: true, SameSite: "Lax",
		}},
		Origins: []StateOrigin{{
			Origin:       "https://portal.example.edu",
			LocalStorage: []StateItem{{Name: "token", Value: "xyz"}},
		}},
	}

	require.NoError(t, SaveStorageState(path, state))

	loaded, err := LoadStorageState(path)
	require.NoError(t, err)
	assert.Equal(t, state, loaded)
	assert.True(t, loaded.Effective())
}

func TestStorageStateEffective(t *testing.T) {
	dir := t.TempDir()

	// Missing file is not effective.
	assert.False(t, StorageStateEffective(filepath.Join(dir, "absent.json")))

	// Cookie-less state is not effective.
	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, SaveStorageState(empty, &StorageState{}))
	assert.False(t, StorageStateEffective(empty))

	// Corrupt file is not effective.
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{broken"), 0o644))
	assert.False(t, StorageStateEffective(bad))

	good := filepath.Join(dir, "good.json")
	require.NoError(t, SaveStorageState(good, &StorageState{
		Cookies: []StateCookie{{Name: "session", Value: "abc"}},
	}))
	assert.True(t, StorageStateEffective(good))
}

func TestOriginOf(t *testing.T) {
	assert.Equal(t, "https://portal.example.edu", originOf("https://portal.example.edu/AttendanceInfo.aspx"))
	assert.Equal(t, "https://portal.example.edu", originOf("https://portal.example.edu"))
}
