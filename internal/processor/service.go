package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"sectiondesk/internal/models"
	"sectiondesk/internal/store"
	"sectiondesk/internal/worker"
)

// Validation and gating failures surfaced to the form as alerts.
var (
	ErrMissingFile        = errors.New("both PDF files are required")
	ErrIncompleteSection  = errors.New("every section needs a number and a date")
	ErrSubmissionInFlight = errors.New("a submission is already in flight")
)

const (
	// FallbackResult is used when the processor omits a label's result.
	FallbackResult = "Processing complete"
	// ErrorResult is the only failure text records ever carry; the cause
	// is logged, never shown.
	ErrorResult = "Error processing files"
)

// Forwarder abstracts the processor client for tests.
type Forwarder interface {
	Process(ctx context.Context, primary, secondary *models.StagedFile, sections models.SectionForm) (map[models.Label]SectionResult, error)
}

// Service is the submission controller: it validates a form, appends the
// optimistic records, and forwards the files asynchronously.
type Service struct {
	records  *store.RecordStore
	uploads  *store.UploadStore
	client   Forwarder
	dispatch *worker.Dispatcher
}

func NewService(records *store.RecordStore, uploads *store.UploadStore, client Forwarder, dispatch *worker.Dispatcher) *Service {
	return &Service{
		records:  records,
		uploads:  uploads,
		client:   client,
		dispatch: dispatch,
	}
}

// Submit runs one submission. Validation failures leave every piece of
// state untouched. On success three processing records are visible before
// the network call starts, and the caller gets copies of them.
func (s *Service) Submit(form models.SectionForm) ([]models.SubmissionRecord, error) {
	if _, ok := s.uploads.Get(models.SlotPrimary); !ok {
		return nil, ErrMissingFile
	}
	if _, ok := s.uploads.Get(models.SlotSecondary); !ok {
		return nil, ErrMissingFile
	}
	for _, label := range models.Labels {
		entry := form[label]
		if entry.Number == "" || entry.Date == "" {
			return nil, ErrIncompleteSection
		}
	}

	if !s.records.TryBeginSubmission() {
		return nil, ErrSubmissionInFlight
	}
	primary, secondary, ok := s.uploads.Take()
	if !ok {
		s.records.EndSubmission()
		return nil, ErrMissingFile
	}

	now := time.Now()
	records := make([]*models.SubmissionRecord, 0, len(models.Labels))
	for _, label := range models.Labels {
		entry := form[label]
		records = append(records, &models.SubmissionRecord{
			ID:            fmt.Sprintf("%d-%s", now.UnixMilli(), label),
			Label:         label,
			Number:        entry.Number,
			Date:          entry.Date,
			PrimaryFile:   primary.FileName,
			SecondaryFile: secondary.FileName,
			Status:        models.StatusProcessing,
			CreatedAt:     now,
		})
	}
	s.records.Append(records...)

	// snapshot before dispatch: once the job is queued the worker owns
	// the shared records and mutates them under the store lock
	ids := make(map[models.Label]string, len(records))
	out := make([]models.SubmissionRecord, 0, len(records))
	for _, rec := range records {
		ids[rec.Label] = rec.ID
		out = append(out, *rec)
	}

	err := s.dispatch.Submit(worker.Job{
		Type: worker.Forward,
		Task: func() {
			s.forward(primary, secondary, form, ids)
		},
	})
	if err != nil {
		log.Warn().Err(err).Msg("submission dispatch rejected")
		s.records.FailProcessing(ErrorResult)
		s.records.EndSubmission()
		s.uploads.Discard(primary, secondary)
		return nil, err
	}
	return out, nil
}

// forward runs on the dispatcher pool. Whatever happens, the in-flight flag
// is cleared and the consumed files are removed.
func (s *Service) forward(primary, secondary *models.StagedFile, form models.SectionForm, ids map[models.Label]string) {
	defer s.records.EndSubmission()
	defer s.uploads.Discard(primary, secondary)

	results, err := s.client.Process(context.Background(), primary, secondary, form)
	if err != nil {
		log.Error().Err(err).Msg("forward to processor failed")
		s.records.FailProcessing(ErrorResult)
		return
	}
	for _, label := range models.Labels {
		result := results[label].Result
		if result == "" {
			result = FallbackResult
		}
		s.records.Complete(ids[label], result)
	}
}
