// Package store implements the Persistent State Store: atomic load/save
// of the Subscriber set to a single JSON file on disk.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/levenlabs/go-llog"

	"github.com/levenlabs/gerrit-chat-bridge/subscriber"
)

// Load reads the subscriber set from path. A missing or unreadable file
// is logged and treated as an empty set rather than a fatal error -- the
// bridge should still come up and start accepting new subscribers.
func Load(path string) subscriber.Set {
	b, err := os.ReadFile(path)
	if err != nil {
		llog.Warn("error reading state file, starting empty", llog.ErrKV(err), llog.KV{"path": path})
		return subscriber.Set{Version: 1}
	}
	var set subscriber.Set
	if err := json.Unmarshal(b, &set); err != nil {
		llog.Warn("error parsing state file, starting empty", llog.ErrKV(err), llog.KV{"path": path})
		return subscriber.Set{Version: 1}
	}
	if set.Version == 0 {
		set.Version = 1
	}
	return set
}

// Save marshals set and atomically replaces the file at path: write to a
// sibling temp file, fsync it, then rename over path. A reader never
// observes a partially written file.
func Save(path string, set subscriber.Set) error {
	b, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling subscriber state: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsyncing temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp state file into place: %w", err)
	}
	return nil
}
