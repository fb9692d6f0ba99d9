// Package store keeps the in-memory snapshot of schedules, exceptions and
// appointments, loaded from a YAML or JSON file and refreshed on demand.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"laborcal/internal/config"
	appLog "laborcal/internal/log"
	"laborcal/internal/model"
)

// Document is the on-disk layout. Schedules use the wire form.
type Document struct {
	Schedules    []model.ScheduleRecord `yaml:"schedules" json:"schedules"`
	Exceptions   []model.Exception      `yaml:"exceptions" json:"exceptions"`
	Appointments []model.Appointment    `yaml:"appointments" json:"appointments"`
}

// Decode parses data as JSON when name ends in .json, YAML otherwise.
func Decode(name string, data []byte) (Document, error) {
	var doc Document
	var err error
	if isJSON(name) {
		err = json.Unmarshal(data, &doc)
	} else {
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return Document{}, fmt.Errorf("store: decode %s: %w", name, err)
	}
	return doc, nil
}

// Encode is the inverse of Decode.
func Encode(name string, doc Document) ([]byte, error) {
	if isJSON(name) {
		return json.MarshalIndent(doc, "", "  ")
	}
	return yaml.Marshal(doc)
}

func isJSON(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".json")
}

// Snapshot converts the document. Schedule records that cannot be read are
// skipped and returned as errors; the rest of the document still loads.
func (d Document) Snapshot() (model.Snapshot, []error) {
	snap := model.Snapshot{
		Schedules:    make([]model.RecurringSchedule, 0, len(d.Schedules)),
		Exceptions:   append([]model.Exception(nil), d.Exceptions...),
		Appointments: append([]model.Appointment(nil), d.Appointments...),
	}
	var errs []error
	for _, rec := range d.Schedules {
		s, err := rec.ToSchedule()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		snap.Schedules = append(snap.Schedules, s)
	}
	return snap, errs
}

// DocumentOf is the inverse of Document.Snapshot.
func DocumentOf(snap model.Snapshot) Document {
	doc := Document{
		Schedules:    make([]model.ScheduleRecord, 0, len(snap.Schedules)),
		Exceptions:   snap.Exceptions,
		Appointments: snap.Appointments,
	}
	for _, s := range snap.Schedules {
		doc.Schedules = append(doc.Schedules, model.RecordOf(s))
	}
	return doc
}

// Store guards the current snapshot. Readers get a copy.
type Store struct {
	path string

	mu       sync.RWMutex
	base     model.Snapshot
	feed     []model.Exception
	loadedAt time.Time
	version  uint64
}

// New creates a Store backed by path. Nothing is read until Load.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Load (re)reads the backing file. A missing file yields an empty snapshot.
// On a decode error the previous snapshot is kept.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			appLog.Warn("store: snapshot file not found, starting empty", "path", s.path)
			s.Replace(model.Snapshot{})
			return nil
		}
		return fmt.Errorf("store: read %s: %w", s.path, err)
	}

	doc, err := Decode(s.path, data)
	if err != nil {
		return err
	}
	snap, errs := doc.Snapshot()
	for _, e := range errs {
		appLog.Error("store: schedule record skipped", e, "path", s.path)
	}

	s.Replace(snap)
	appLog.Info("store: snapshot loaded",
		"path", s.path,
		"schedules", len(snap.Schedules),
		"exceptions", len(snap.Exceptions),
		"appointments", len(snap.Appointments),
		"skipped", len(errs),
	)
	return nil
}

// Replace swaps the file-backed part of the snapshot.
func (s *Store) Replace(snap model.Snapshot) {
	snap = snap.Clone()
	s.mu.Lock()
	s.base = snap
	s.loadedAt = time.Now()
	s.version++
	s.mu.Unlock()
}

// SetFeedExceptions replaces the exceptions coming from ICS feeds. They are
// kept apart from the file so a reload never drops them.
func (s *Store) SetFeedExceptions(ex []model.Exception) {
	ex = append([]model.Exception(nil), ex...)
	s.mu.Lock()
	s.feed = ex
	s.version++
	s.mu.Unlock()
}

// Snapshot returns a copy of the file data plus feed exceptions.
func (s *Store) Snapshot() model.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base.WithExceptions(s.feed)
}

// Version changes every time the data returned by Snapshot changes,
// whether from the file or from the feeds.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// LoadedAt is when the file-backed snapshot was last replaced.
func (s *Store) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// Save writes the file-backed part of the snapshot atomically.
func (s *Store) Save() error {
	s.mu.RLock()
	doc := DocumentOf(s.base)
	s.mu.RUnlock()

	data, err := Encode(s.path, doc)
	if err != nil {
		return fmt.Errorf("store: encode: %w", err)
	}
	return config.WriteFileAtomic(s.path, data, ".laborcal-snapshot-*.tmp")
}
