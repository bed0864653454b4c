// Copyright 2025 IntentFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package orgconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileStore is the durable local org-record store: a flat JSON record set
// keyed by orgId, atomically rewritten on every mutation (write-to-temp
// then rename) so a crash mid-write can never leave a corrupt file.
type FileStore struct {
	path string
	mu   sync.RWMutex
}

// fileFormat is the on-disk shape of the record set.
type fileFormat struct {
	Orgs map[string]*OrgConfig `json:"orgs"`
}

// NewFileStore creates a store backed by the given file path. The file is
// created on first mutation.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// load reads the whole record set. A missing file is an empty store.
func (s *FileStore) load() (*fileFormat, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &fileFormat{Orgs: make(map[string]*OrgConfig)}, nil
		}
		return nil, fmt.Errorf("failed to read org store: %w", err)
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse org store: %w", err)
	}
	if f.Orgs == nil {
		f.Orgs = make(map[string]*OrgConfig)
	}
	return &f, nil
}

// save atomically replaces the record set on disk.
func (s *FileStore) save(f *fileFormat) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode org store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create org store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".orgstore-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace org store: %w", err)
	}
	return nil
}

// Get returns the active (non-deleted) record for an org, or ErrNotFound.
func (s *FileStore) Get(orgID string) (*OrgConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := s.load()
	if err != nil {
		return nil, err
	}
	cfg, ok := f.Orgs[orgID]
	if !ok || cfg.Deleted {
		return nil, ErrNotFound
	}
	return cfg, nil
}

// List returns all active records sorted by org id.
func (s *FileStore) List() ([]*OrgConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := s.load()
	if err != nil {
		return nil, err
	}

	out := make([]*OrgConfig, 0, len(f.Orgs))
	for _, cfg := range f.Orgs {
		if !cfg.Deleted {
			out = append(out, cfg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrgID < out[j].OrgID })
	return out, nil
}

// Put creates or updates an org record.
func (s *FileStore) Put(cfg *OrgConfig) error {
	if cfg == nil || cfg.OrgID == "" {
		return fmt.Errorf("org config requires an org id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return err
	}
	cfg.UpdatedAt = time.Now().UTC()
	f.Orgs[cfg.OrgID] = cfg
	return s.save(f)
}

// SoftDelete flags a record deleted without removing it. Soft-deleted
// records are invisible to Get/List but restorable.
func (s *FileStore) SoftDelete(orgID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return err
	}
	cfg, ok := f.Orgs[orgID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	cfg.Deleted = true
	cfg.DeletedAt = &now
	return s.save(f)
}

// Restore clears the deleted flag on a soft-deleted record.
func (s *FileStore) Restore(orgID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return err
	}
	cfg, ok := f.Orgs[orgID]
	if !ok {
		return ErrNotFound
	}
	cfg.Deleted = false
	cfg.DeletedAt = nil
	return s.save(f)
}

// HardDelete permanently removes a record. Reserved for privileged
// callers; the serving path only ever soft-deletes.
func (s *FileStore) HardDelete(orgID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := f.Orgs[orgID]; !ok {
		return ErrNotFound
	}
	delete(f.Orgs, orgID)
	return s.save(f)
}
