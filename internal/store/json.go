package store

import (
	"encoding/json"
	"fmt"
	"io"
)

// ExportJSON writes the snapshot as indented JSON, the human-inspectable
// twin of the msgpack file.
func ExportJSON(w io.Writer, snap *ModuleSnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal snapshot: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("store: write snapshot: %w", err)
	}
	return nil
}
