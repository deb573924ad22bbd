package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// Session IDs become file names, so anything that could escape the data
// directory is rejected outright.
var sessionIDRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// FileStore keeps one pretty-printed JSON file per session under
// <dataDir>/sessions. It is the zero-setup default backend.
type FileStore struct {
	dir    string
	logger *zap.Logger
	mu     sync.RWMutex
}

// NewFileStore creates the sessions directory under dataDir if needed.
// A leading ~ in dataDir is expanded to the user's home.
func NewFileStore(dataDir string, logger *zap.Logger) (*FileStore, error) {
	expanded, err := homedir.Expand(dataDir)
	if err != nil {
		return nil, fmt.Errorf("resolving data dir %q: %w", dataDir, err)
	}

	dir := filepath.Join(expanded, "sessions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating sessions dir %s: %w", dir, err)
	}

	return &FileStore{
		dir:    dir,
		logger: logger.Named("store.file"),
	}, nil
}

func (s *FileStore) SaveSession(_ context.Context, rec *schemas.SessionRecord) error {
	if rec == nil {
		return fmt.Errorf("nil session record")
	}
	if err := validSessionID(rec.ID); err != nil {
		return err
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", rec.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Write-then-rename so a crash mid-write never leaves a torn record.
	path := s.pathFor(rec.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing session %s: %w", rec.ID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("writing session %s: %w", rec.ID, err)
	}

	s.logger.Debug("Session record written.", zap.String("session_id", rec.ID), zap.String("path", path))
	return nil
}

func (s *FileStore) GetSession(_ context.Context, id string) (*schemas.SessionRecord, error) {
	if err := validSessionID(id); err != nil {
		return nil, err
	}

	s.mu.RLock()
	data, err := os.ReadFile(s.pathFor(id))
	s.mu.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("reading session %s: %w", id, err)
	}

	var rec schemas.SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", id, err)
	}
	return &rec, nil
}

func (s *FileStore) ListSessions(_ context.Context, limit int) ([]schemas.SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing sessions dir %s: %w", s.dir, err)
	}

	summaries := make([]schemas.SessionSummary, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			s.logger.Warn("Skipping unreadable session file.", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		var rec schemas.SessionRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			s.logger.Warn("Skipping corrupt session file.", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		summaries = append(summaries, summaryOf(&rec))
	}

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].StartedAt.Equal(summaries[j].StartedAt) {
			return summaries[i].ID > summaries[j].ID
		}
		return summaries[i].StartedAt.After(summaries[j].StartedAt)
	})

	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) pathFor(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func validSessionID(id string) error {
	if id == "" || !sessionIDRe.MatchString(id) || strings.Contains(id, "..") {
		return fmt.Errorf("invalid session id %q", id)
	}
	return nil
}
