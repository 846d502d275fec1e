package store

import (
	"sync"

	"sectiondesk/internal/models"
)

// RecordStore owns the process-lifetime list of submission records plus the
// single in-flight flag. The list is append-only; the only mutation allowed
// afterwards is the in-place processing -> completed/error transition.
type RecordStore struct {
	mu       sync.RWMutex
	records  []*models.SubmissionRecord
	inFlight bool
}

func NewRecordStore() *RecordStore {
	return &RecordStore{}
}

// Append adds records to the end of the list.
func (s *RecordStore) Append(records ...*models.SubmissionRecord) {
	s.mu.Lock()
	s.records = append(s.records, records...)
	s.mu.Unlock()
}

// List returns copies of the records whose label matches, in insertion
// order. An empty label returns the whole list. The projection never
// touches the underlying slice.
func (s *RecordStore) List(label models.Label) []models.SubmissionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SubmissionRecord, 0, len(s.records))
	for _, rec := range s.records {
		if label != "" && rec.Label != label {
			continue
		}
		out = append(out, *rec)
	}
	return out
}

// Complete moves the record with the given id from processing to completed
// and sets its result. Records already in a terminal state are left alone.
func (s *RecordStore) Complete(id, result string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.ID != id {
			continue
		}
		if rec.Status != models.StatusProcessing {
			return false
		}
		rec.Status = models.StatusCompleted
		rec.Result = result
		return true
	}
	return false
}

// FailProcessing marks every record still in processing, across the whole
// list, as errored with the given message. Terminal records are untouched.
// Returns how many records changed.
func (s *RecordStore) FailProcessing(message string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := 0
	for _, rec := range s.records {
		if rec.Status != models.StatusProcessing {
			continue
		}
		rec.Status = models.StatusError
		rec.Result = message
		changed++
	}
	return changed
}

// TryBeginSubmission sets the in-flight flag if no submission is running.
func (s *RecordStore) TryBeginSubmission() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return false
	}
	s.inFlight = true
	return true
}

// EndSubmission clears the in-flight flag regardless of outcome.
func (s *RecordStore) EndSubmission() {
	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()
}

// InFlight reports whether a submission is currently running.
func (s *RecordStore) InFlight() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inFlight
}
