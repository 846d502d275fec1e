package store

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"sectiondesk/internal/models"
)

// DefaultUploadTTL bounds how long a staged file may wait for a submission
// before the cleaner removes it.
const DefaultUploadTTL = 30 * time.Minute

// UploadStore tracks the two staged PDF slots. Files live on disk under the
// upload directory; the store owns their lifecycle from staging until a
// submission consumes them or the TTL expires.
type UploadStore struct {
	mu    sync.Mutex
	dir   string
	ttl   time.Duration
	slots map[models.Slot]*models.StagedFile
}

func NewUploadStore(dir string, ttl time.Duration) *UploadStore {
	if ttl <= 0 {
		ttl = DefaultUploadTTL
	}
	return &UploadStore{
		dir:   dir,
		ttl:   ttl,
		slots: make(map[models.Slot]*models.StagedFile),
	}
}

// Dir returns the base directory staged files are written under.
func (s *UploadStore) Dir() string {
	return s.dir
}

// TTL returns the staging lifetime applied to new files.
func (s *UploadStore) TTL() time.Duration {
	return s.ttl
}

// Stage records a newly saved file for its slot, replacing and deleting any
// previous staging. The file is expected to already exist at StoredPath.
func (s *UploadStore) Stage(file *models.StagedFile) {
	if file == nil {
		return
	}
	file.ExpiresAt = file.CreatedAt.Add(s.ttl)
	s.mu.Lock()
	prev := s.slots[file.Slot]
	s.slots[file.Slot] = file
	s.mu.Unlock()
	if prev != nil && prev.StoredPath != file.StoredPath {
		removeStored(prev)
	}
}

// Get returns the staged file for a slot without consuming it.
func (s *UploadStore) Get(slot models.Slot) (*models.StagedFile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.slots[slot]
	return f, ok
}

// Take consumes both slots for a submission. When either slot is empty
// nothing is consumed.
func (s *UploadStore) Take() (primary, secondary *models.StagedFile, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	primary = s.slots[models.SlotPrimary]
	secondary = s.slots[models.SlotSecondary]
	if primary == nil || secondary == nil {
		return nil, nil, false
	}
	delete(s.slots, models.SlotPrimary)
	delete(s.slots, models.SlotSecondary)
	return primary, secondary, true
}

// Discard deletes consumed files from disk once a submission is done with
// them.
func (s *UploadStore) Discard(files ...*models.StagedFile) {
	for _, f := range files {
		if f != nil {
			removeStored(f)
		}
	}
}

// RemoveExpired clears and deletes every staged file whose TTL has passed.
func (s *UploadStore) RemoveExpired(now time.Time) int {
	var expired []*models.StagedFile
	s.mu.Lock()
	for slot, f := range s.slots {
		if now.After(f.ExpiresAt) {
			delete(s.slots, slot)
			expired = append(expired, f)
		}
	}
	s.mu.Unlock()
	for _, f := range expired {
		removeStored(f)
	}
	return len(expired)
}

// StartCleaner sweeps expired stagings until the context is cancelled.
func (s *UploadStore) StartCleaner(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.ttl
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.RemoveExpired(time.Now()); n > 0 {
					log.Debug().Int("removed", n).Msg("expired staged uploads removed")
				}
			}
		}
	}()
}

func removeStored(f *models.StagedFile) {
	if err := os.Remove(f.StoredPath); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", f.StoredPath).Msg("remove staged file failed")
	}
}
