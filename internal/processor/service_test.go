package processor

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"sectiondesk/internal/models"
	"sectiondesk/internal/store"
	"sectiondesk/internal/worker"
)

type testEnv struct {
	service  *Service
	records  *store.RecordStore
	uploads  *store.UploadStore
	dispatch *worker.Dispatcher
	requests *atomic.Int64
}

func newTestEnv(t *testing.T, backend http.HandlerFunc) *testEnv {
	t.Helper()
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		backend(w, r)
	}))
	t.Cleanup(srv.Close)

	records := store.NewRecordStore()
	uploads := store.NewUploadStore(t.TempDir(), time.Minute)
	dispatch := worker.NewDispatcher(worker.DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 2})
	return &testEnv{
		service:  NewService(records, uploads, NewClient(srv.URL), dispatch),
		records:  records,
		uploads:  uploads,
		dispatch: dispatch,
		requests: &requests,
	}
}

var stageSeq atomic.Int64

func (e *testEnv) stageBoth(t *testing.T) (primaryPath, secondaryPath string) {
	t.Helper()
	seq := stageSeq.Add(1)
	for _, slot := range []models.Slot{models.SlotPrimary, models.SlotSecondary} {
		path := filepath.Join(e.uploads.Dir(), fmt.Sprintf("%s-%d.pdf", slot, seq))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte("%PDF-"+string(slot)), 0o644); err != nil {
			t.Fatalf("write staged: %v", err)
		}
		e.uploads.Stage(&models.StagedFile{
			ID:         string(slot),
			Slot:       slot,
			FileName:   string(slot) + ".pdf",
			StoredPath: path,
			CreatedAt:  time.Now(),
		})
		if slot == models.SlotPrimary {
			primaryPath = path
		} else {
			secondaryPath = path
		}
	}
	return primaryPath, secondaryPath
}

func waitSettled(t *testing.T, records *store.RecordStore) []models.SubmissionRecord {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		recs := records.List("")
		settled := len(recs) > 0 && !records.InFlight()
		for _, rec := range recs {
			if rec.Status == models.StatusProcessing {
				settled = false
			}
		}
		if settled {
			return recs
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("records never settled: %#v", records.List(""))
	return nil
}

func TestSubmitRejectsMissingFiles(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := env.service.Submit(testForm())
	if !errors.Is(err, ErrMissingFile) {
		t.Fatalf("expected ErrMissingFile, got %v", err)
	}
	if len(env.records.List("")) != 0 {
		t.Fatalf("validation failure must not append records")
	}
	if env.requests.Load() != 0 {
		t.Fatalf("validation failure must not reach the network")
	}
}

func TestSubmitRejectsIncompleteSections(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {})
	env.stageBoth(t)

	form := testForm()
	form[models.LabelB] = models.SectionEntry{Number: "5678"}
	_, err := env.service.Submit(form)
	if !errors.Is(err, ErrIncompleteSection) {
		t.Fatalf("expected ErrIncompleteSection, got %v", err)
	}
	if len(env.records.List("")) != 0 || env.requests.Load() != 0 {
		t.Fatalf("incomplete form must not submit anything")
	}
	// files stay staged for the next attempt
	if _, ok := env.uploads.Get(models.SlotPrimary); !ok {
		t.Fatalf("failed validation must not consume staged files")
	}
}

func TestSubmitCompletesPerLabel(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"A":{"result":"x"},"B":{"result":"y"},"S":{"result":"z"}}`)
	})
	primaryPath, secondaryPath := env.stageBoth(t)

	records, err := env.service.Submit(testForm())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 optimistic records, got %d", len(records))
	}
	for i, label := range models.Labels {
		rec := records[i]
		if rec.Label != label || rec.Status != models.StatusProcessing {
			t.Fatalf("unexpected optimistic record: %#v", rec)
		}
		if !strings.HasSuffix(rec.ID, "-"+string(label)) {
			t.Fatalf("id %q not derived from label %s", rec.ID, label)
		}
		if rec.PrimaryFile != "primary.pdf" || rec.SecondaryFile != "secondary.pdf" {
			t.Fatalf("record missing file names: %#v", rec)
		}
	}

	settled := waitSettled(t, env.records)
	want := map[models.Label]string{models.LabelA: "x", models.LabelB: "y", models.LabelS: "z"}
	for _, rec := range settled {
		if rec.Status != models.StatusCompleted || rec.Result != want[rec.Label] {
			t.Fatalf("unexpected settled record: %#v", rec)
		}
	}

	// consumed files are removed once the forward finishes
	for _, path := range []string{primaryPath, secondaryPath} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("expected consumed file %s removed", path)
		}
	}
}

func TestSubmitFallbackResult(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"A":{"result":"ok-A"}}`)
	})
	env.stageBoth(t)

	if _, err := env.service.Submit(testForm()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	settled := waitSettled(t, env.records)
	for _, rec := range settled {
		want := FallbackResult
		if rec.Label == models.LabelA {
			want = "ok-A"
		}
		if rec.Status != models.StatusCompleted || rec.Result != want {
			t.Fatalf("unexpected record for %s: %#v", rec.Label, rec)
		}
	}
}

func TestSubmitBackendErrorFansOut(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"error":"bad file"}`)
	})
	env.stageBoth(t)

	// a stuck processing record from an earlier run and a finished one
	stale := &models.SubmissionRecord{ID: "0-A", Label: models.LabelA, Status: models.StatusProcessing}
	done := &models.SubmissionRecord{ID: "0-B", Label: models.LabelB, Status: models.StatusCompleted, Result: "kept"}
	env.records.Append(stale, done)

	if _, err := env.service.Submit(testForm()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	settled := waitSettled(t, env.records)
	for _, rec := range settled {
		if rec.ID == "0-B" {
			if rec.Status != models.StatusCompleted || rec.Result != "kept" {
				t.Fatalf("completed record was touched: %#v", rec)
			}
			continue
		}
		if rec.Status != models.StatusError || rec.Result != ErrorResult {
			t.Fatalf("expected errored record, got %#v", rec)
		}
	}
}

func TestSubmitTransportFailure(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {})
	env.stageBoth(t)
	// swap in a client pointing at a dead endpoint
	env.service.client = NewClient("http://127.0.0.1:1/process-pdfs")

	if _, err := env.service.Submit(testForm()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	settled := waitSettled(t, env.records)
	for _, rec := range settled {
		if rec.Status != models.StatusError || rec.Result != ErrorResult {
			t.Fatalf("expected errored record, got %#v", rec)
		}
	}
}

func TestSubmitMissingFilesCheckedBeforeSections(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {})

	form := testForm()
	form[models.LabelA] = models.SectionEntry{Date: "2024-01-01"}
	_, err := env.service.Submit(form)
	if !errors.Is(err, ErrMissingFile) {
		t.Fatalf("expected ErrMissingFile for empty slots, got %v", err)
	}
}

func TestSubmitReturnsSnapshots(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{}`)
	})

	// an instant backend lets the worker finish while Submit is still
	// returning; the caller's copies must stay in the optimistic state
	for i := 0; i < 25; i++ {
		env.stageBoth(t)
		records, err := env.service.Submit(testForm())
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		for _, rec := range records {
			if rec.Status != models.StatusProcessing || rec.Result != "" {
				t.Fatalf("returned record not a pre-dispatch snapshot: %#v", rec)
			}
		}
		waitSettled(t, env.records)
	}
}

func TestSubmitDispatcherBusy(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {})

	// saturate the single worker and the queue with blocked jobs
	release := make(chan struct{})
	started := make(chan struct{})
	if err := env.dispatch.Submit(worker.Job{Type: worker.Forward, Task: func() {
		close(started)
		<-release
	}}); err != nil {
		t.Fatalf("blocking submit: %v", err)
	}
	<-started
	sawBusy := false
	for i := 0; i < 8; i++ {
		err := env.dispatch.Submit(worker.Job{Type: worker.Forward, Task: func() { <-release }})
		if errors.Is(err, worker.ErrDispatcherBusy) {
			sawBusy = true
			break
		}
		if err != nil {
			t.Fatalf("unexpected submit error: %v", err)
		}
	}
	if !sawBusy {
		t.Fatalf("queue never overflowed")
	}
	defer close(release)

	primaryPath, secondaryPath := env.stageBoth(t)
	_, err := env.service.Submit(testForm())
	if !errors.Is(err, worker.ErrDispatcherBusy) {
		t.Fatalf("expected ErrDispatcherBusy, got %v", err)
	}
	if env.records.InFlight() {
		t.Fatalf("rejected dispatch must clear the in-flight flag")
	}
	recs := env.records.List("")
	if len(recs) != 3 {
		t.Fatalf("expected 3 failed records, got %d", len(recs))
	}
	for _, rec := range recs {
		if rec.Status != models.StatusError || rec.Result != ErrorResult {
			t.Fatalf("expected errored record, got %#v", rec)
		}
	}
	if _, ok := env.uploads.Get(models.SlotPrimary); ok {
		t.Fatalf("rejected dispatch must not leave slots staged")
	}
	for _, path := range []string{primaryPath, secondaryPath} {
		if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
			t.Fatalf("expected consumed file %s removed", path)
		}
	}
	if env.requests.Load() != 0 {
		t.Fatalf("rejected dispatch must not reach the backend")
	}
}

func TestSubmitRejectsWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{}`)
	})
	env.stageBoth(t)

	if _, err := env.service.Submit(testForm()); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	env.stageBoth(t)
	if _, err := env.service.Submit(testForm()); !errors.Is(err, ErrSubmissionInFlight) {
		t.Fatalf("expected ErrSubmissionInFlight, got %v", err)
	}
	close(release)

	settled := waitSettled(t, env.records)
	if len(settled) != 3 {
		t.Fatalf("expected only the first submission's records, got %d", len(settled))
	}
	for _, rec := range settled {
		// empty response body means every label falls back
		if rec.Status != models.StatusCompleted || rec.Result != FallbackResult {
			t.Fatalf("unexpected record: %#v", rec)
		}
	}
}
