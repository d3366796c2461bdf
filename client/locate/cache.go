package locate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// positionCache persists the last-known fix for a device as a JSON file so a
// restarted client can render a position immediately, before the first fresh
// fix arrives.
type positionCache struct {
	path string
}

func newPositionCache(dir, deviceID string) *positionCache {
	return &positionCache{
		path: filepath.Join(dir, fmt.Sprintf("position-%s.json", deviceID)),
	}
}

// Load returns the cached fix, or nil when no usable cache exists. A corrupt
// cache file is treated as absent, never as an error.
func (c *positionCache) Load() *Position {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil
	}
	var fix Position
	if err := json.Unmarshal(data, &fix); err != nil {
		return nil
	}
	if fix.CapturedAt.IsZero() {
		return nil
	}
	return &fix
}

// Store atomically replaces the cached fix.
func (c *positionCache) Store(fix *Position) error {
	data, err := json.Marshal(fix)
	if err != nil {
		return err
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}
