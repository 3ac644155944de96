package storage

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/leandroasilva/lmcs-db/internal/errs"
	"github.com/leandroasilva/lmcs-db/internal/logentry"
	"github.com/leandroasilva/lmcs-db/internal/vault"
)

// JSONStorage keeps the whole log in memory and periodically rewrites it
// to a single JSON array file, the way the teacher's catalog loads and
// rewrites its whole index file rather than appending framed records.
type JSONStorage struct {
	mu      sync.Mutex
	cfg     Config
	entries []*logentry.Entry
	dirty   bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewJSONStorage returns a JSONStorage backed by cfg.Path.
func NewJSONStorage(cfg Config) *JSONStorage {
	return &JSONStorage{cfg: cfg}
}

func (s *JSONStorage) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return err
	}

	if s.cfg.AutosaveInterval > 0 {
		s.stopCh = make(chan struct{})
		s.doneCh = make(chan struct{})
		go s.autosaveLoop()
	}
	return nil
}

func (s *JSONStorage) loadLocked() error {
	data, err := os.ReadFile(s.cfg.Path)
	if os.IsNotExist(err) {
		s.entries = nil
		return nil
	}
	if err != nil {
		return errs.WrapCorruption("storage.json.read", "failed to read json snapshot", err)
	}
	if len(data) == 0 {
		s.entries = nil
		return nil
	}

	if s.cfg.Vault != nil {
		payload, uerr := vault.Unmarshal(data)
		if uerr != nil {
			s.cfg.logger().Warn("json snapshot envelope is malformed, starting with empty state: %v", uerr)
			s.entries = nil
			return nil
		}
		plain, derr := s.cfg.Vault.Decrypt(payload)
		if derr != nil {
			s.cfg.logger().Warn("json snapshot failed to decrypt, starting with empty state: %v", derr)
			s.entries = nil
			return nil
		}
		data = plain
	}

	var entries []*logentry.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return errs.WrapCorruption("storage.json.decode", "failed to decode json snapshot", err)
	}
	s.entries = entries
	return nil
}

func (s *JSONStorage) autosaveLoop() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.cfg.AutosaveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.dirty {
				_ = s.flushLocked()
			}
			s.mu.Unlock()
		}
	}
}

func (s *JSONStorage) Append(entry *logentry.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry.Clone())
	s.dirty = true
	if s.cfg.AutosaveInterval <= 0 {
		return s.flushLocked()
	}
	return nil
}

func (s *JSONStorage) ReadStream() (EntryIterator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make([]*logentry.Entry, len(s.entries))
	for i, e := range s.entries {
		snapshot[i] = e.Clone()
	}
	return newSliceIterator(snapshot), nil
}

func (s *JSONStorage) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *JSONStorage) flushLocked() error {
	data, err := json.Marshal(s.entries)
	if err != nil {
		return errs.WrapCorruption("storage.json.encode", "failed to encode json snapshot", err)
	}

	if s.cfg.Vault != nil {
		payload, eerr := s.cfg.Vault.Encrypt(data)
		if eerr != nil {
			return eerr
		}
		data, err = json.Marshal(payload)
		if err != nil {
			return errs.WrapCorruption("storage.json.encode_envelope", "failed to encode encrypted envelope", err)
		}
	}

	tmp := s.cfg.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errs.WrapCorruption("storage.json.write", "failed to write json snapshot", err)
	}
	if err := os.Rename(tmp, s.cfg.Path); err != nil {
		return errs.WrapCorruption("storage.json.rename", "failed to finalize json snapshot", err)
	}
	s.dirty = false
	return nil
}

func (s *JSONStorage) Close() error {
	s.mu.Lock()
	if s.stopCh != nil {
		close(s.stopCh)
	}
	s.mu.Unlock()

	if s.doneCh != nil {
		<-s.doneCh
	}

	return s.Flush()
}

// Clear discards every entry and rewrites an empty snapshot.
func (s *JSONStorage) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	return s.flushLocked()
}
