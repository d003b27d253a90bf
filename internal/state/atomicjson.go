// Package state holds the four persisted stores the transfer core depends
// on — queue, history, trust, identity — all JSON, all written via the
// write-temp-then-rename pattern the teacher uses for finished backups
// (internal/server/storage.go) and for its own JSONL event log
// (internal/server/observability/event_store.go). Corrupt files degrade to
// empty rather than crash, except identity, where a parse failure is a
// fatal tamper signal (spec §4.7).
package state

import (
	"encoding/json"
	"fmt"
	"os"
)

// writeJSONAtomic marshals v and writes it to path via a sibling ".tmp"
// file followed by an atomic rename.
func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("state: encoding %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("state: writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("state: renaming %s into place: %w", tmp, err)
	}
	return nil
}

// readJSONTolerant loads and unmarshals path into v. A missing file or a
// parse failure both result in v being left at its zero value with no
// error — the caller treats "corrupt" the same as "absent", per spec §4.7.
func readJSONTolerant(path string, v interface{}) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	_ = json.Unmarshal(data, v)
}

// readJSONStrict is readJSONTolerant's opposite: used only by the identity
// store, where a parse failure is fatal rather than silently ignored.
func readJSONStrict(path string, v interface{}) (found bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("state: reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("state: %s is corrupt: %w", path, err)
	}
	return true, nil
}
