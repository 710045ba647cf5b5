package index

import (
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/csound-plugins/risset/internal/logfields"
	"github.com/csound-plugins/risset/internal/plugin"
)

// snapshotSchema is bumped whenever the snapshot shape changes; a
// snapshot with a different schema is discarded and the catalogue
// rebuilt from the cloned repositories.
const snapshotSchema = 1

// snapshot is the on-disk cache of the parsed catalogue, written after
// an update so subsequent commands skip re-parsing every manifest.
type snapshot struct {
	Schema  int                `json:"schema"`
	Created time.Time          `json:"created"`
	Version string             `json:"version"`
	Sources map[string]*Source `json:"sources"`
	Plugins []*plugin.Plugin   `json:"plugins"`
}

// loadSnapshot restores the catalogue from the snapshot file. It reports
// false when there is no usable snapshot: missing, unreadable, a
// different schema, or older than the freshness window.
func (idx *MainIndex) loadSnapshot() bool {
	path := idx.cfg.SnapshotPath()
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.Warn("could not read the catalogue snapshot, removing it",
			logfields.Path(path), logfields.Error(err))
		if err := os.Remove(path); err != nil {
			slog.Warn("could not remove the snapshot", logfields.Path(path), logfields.Error(err))
		}
		return false
	}
	if snap.Schema != snapshotSchema {
		slog.Debug("snapshot schema mismatch, rebuilding the catalogue",
			slog.Int("have", snap.Schema), slog.Int("want", snapshotSchema))
		return false
	}
	if age := time.Since(snap.Created); age > idx.cfg.SnapshotTTL() {
		slog.Debug("snapshot is stale, rebuilding the catalogue",
			slog.Duration("age", age))
		return false
	}

	idx.Version = snap.Version
	idx.Sources = snap.Sources
	if idx.Sources == nil {
		idx.Sources = make(map[string]*Source)
	}
	idx.Plugins = make(map[string]*plugin.Plugin, len(snap.Plugins))
	for _, p := range snap.Plugins {
		idx.Plugins[strings.ToLower(p.Name)] = p
	}
	slog.Debug("catalogue loaded from snapshot",
		logfields.Path(path), logfields.Count(len(idx.Plugins)))
	return true
}

// writeSnapshot persists the parsed catalogue. A failed write only
// costs a re-parse on the next run, so it is logged and ignored.
func (idx *MainIndex) writeSnapshot() {
	snap := snapshot{
		Schema:  snapshotSchema,
		Created: time.Now().UTC(),
		Version: idx.Version,
		Sources: idx.Sources,
		Plugins: idx.Sorted(),
	}
	data, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		slog.Warn("could not serialize the catalogue snapshot", logfields.Error(err))
		return
	}
	path := idx.cfg.SnapshotPath()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		slog.Warn("could not write the catalogue snapshot",
			logfields.Path(path), logfields.Error(err))
		return
	}
	slog.Debug("catalogue snapshot written", logfields.Path(path))
}
