// Package nodestate persists the per-node lifecycle record so components
// can query the node's progress directly instead of re-deriving it from
// side effects on every run. The record is advisory: when it is absent
// (first run on a pre-existing node) components fall back to probing.
package nodestate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Phase is a node lifecycle phase.
type Phase string

// Lifecycle phases, in order of progress. Initialized and Joined are the
// leader and worker variants of the same stage.
const (
	Uninitialized Phase = "Uninitialized"
	Installed     Phase = "Installed"
	Initialized   Phase = "Initialized"
	Joined        Phase = "Joined"
	Networked     Phase = "Networked"
	Ready         Phase = "Ready"
)

// transitions lists the allowed forward edges. Re-asserting the current
// phase is always allowed (idempotent re-runs).
var transitions = map[Phase][]Phase{
	Uninitialized: {Installed},
	Installed:     {Initialized, Joined},
	Initialized:   {Networked},
	Joined:        {Networked, Ready},
	Networked:     {Ready},
	Ready:         {},
}

// Record is the persisted lifecycle state of one node.
type Record struct {
	Hostname  string    `yaml:"hostname"`
	Role      string    `yaml:"role"`
	Phase     Phase     `yaml:"phase"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

// Store reads and writes the lifecycle record at a fixed path.
type Store struct {
	path string
}

// FileName is the record file inside the state directory.
const FileName = "state.yaml"

// NewStore returns a store writing under stateDir.
func NewStore(stateDir string) *Store {
	return &Store{path: filepath.Join(stateDir, FileName)}
}

// Load returns the persisted record, or a fresh Uninitialized record when
// none exists yet.
func (s *Store) Load() (*Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			hostname, _ := os.Hostname()
			return &Record{Hostname: hostname, Phase: Uninitialized}, nil
		}
		return nil, fmt.Errorf("failed to read node state: %w", err)
	}

	var rec Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse node state %s: %w", s.path, err)
	}
	if rec.Phase == "" {
		rec.Phase = Uninitialized
	}
	return &rec, nil
}

// Transition advances the record to the given phase and persists it
// atomically. Re-asserting the current phase is a no-op success; any other
// edge not in the lifecycle graph is rejected.
func (s *Store) Transition(to Phase, role string) error {
	rec, err := s.Load()
	if err != nil {
		return err
	}

	if rec.Phase == to {
		return nil
	}

	allowed := false
	for _, next := range transitions[rec.Phase] {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("invalid lifecycle transition %s -> %s", rec.Phase, to)
	}

	rec.Phase = to
	rec.Role = role
	rec.UpdatedAt = time.Now().UTC()
	if rec.Hostname == "" {
		rec.Hostname, _ = os.Hostname()
	}

	return s.write(rec)
}

func (s *Store) write(rec *Record) error {
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal node state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, FileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write node state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to persist node state: %w", err)
	}
	return nil
}
