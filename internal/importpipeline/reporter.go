// Package importpipeline implements the two-phase import orchestrator
// (spec.md §4.3–§4.5): AcquisitionPipeline copies encrypted files from
// an external store to an internal one, IngestionPipeline decrypts and
// applies them to the document store, and ImportOrchestrator/
// ImportReporter tie the two phases together with progress tracking.
//
// Grounded on the teacher's runtime/run.go (orchestrator lifecycle:
// validate → run phases in sequence → classify outcome → build
// result) and runtime/executor.go / policy/buffered.go (bounded
// concurrency with a mutex-guarded stats recorder).
package importpipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/keeperdata/keeperdata/internal/docstore"
	"github.com/keeperdata/keeperdata/internal/kderrors"
	"github.com/keeperdata/keeperdata/internal/types"
)

const (
	importsCollection     = "imports"
	fileReportsCollection = "file_reports"
)

// ImportReporter is the progress/reporting contract (spec.md §4.5).
// All writes are single-document updates; readers observe monotonic
// progression of counters within one import.
type ImportReporter interface {
	GetImportReport(ctx context.Context, importID string) (types.ImportRun, bool, error)
	GetFileReports(ctx context.Context, importID string) ([]types.FileRecord, error)
	ListImports(ctx context.Context, skip, top int) ([]types.ImportRun, error)
	UpdateAcquisitionPhase(ctx context.Context, importID string, update func(*types.PhaseRecord)) (types.ImportRun, error)
	UpdateIngestionPhase(ctx context.Context, importID string, update func(*types.PhaseRecord)) (types.ImportRun, error)
	UpsertFileReport(ctx context.Context, record types.FileRecord) error
	CreateImport(ctx context.Context, importID string, sourceType types.SourceType) (types.ImportRun, bool, error)
	SetImportStatus(ctx context.Context, importID string, status types.ImportStatus, errText string) (types.ImportRun, error)
}

// DocumentReporter implements ImportReporter over a DocumentStore,
// keyed by import_id, mirroring the "single-document updates, mutex-
// guarded stats" shape of policy.BufferedPolicy's statsRecorder.
type DocumentReporter struct {
	store docstore.DocumentStore
	mu    sync.Mutex
}

// NewDocumentReporter creates a DocumentReporter over store.
func NewDocumentReporter(store docstore.DocumentStore) *DocumentReporter {
	return &DocumentReporter{store: store}
}

// CreateImport inserts a new ImportRun if import_id is unseen,
// otherwise returns the existing run with created=false — this backs
// ImportOrchestrator.Start's idempotency (spec.md §4.5).
func (r *DocumentReporter) CreateImport(ctx context.Context, importID string, sourceType types.SourceType) (types.ImportRun, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, found, err := r.store.Get(ctx, importsCollection, importID)
	if err != nil {
		return types.ImportRun{}, false, err
	}
	if found {
		run, err := decodeImportRun(rec)
		return run, false, err
	}

	run := types.ImportRun{
		ImportID:         importID,
		SourceType:       sourceType,
		Status:           types.ImportStarted,
		StartedAt:        time.Now().UTC(),
		AcquisitionPhase: types.PhaseRecord{Phase: types.PhaseAcquisition, Status: types.PhasePending},
		IngestionPhase:   types.PhaseRecord{Phase: types.PhaseIngestion, Status: types.PhasePending},
		SchemaVersion:    types.SchemaVersion,
	}
	if _, err := r.store.Upsert(ctx, importsCollection, importID, encodeImportRun(run)); err != nil {
		return types.ImportRun{}, false, err
	}
	return run, true, nil
}

// GetImportReport returns the current ImportRun.
func (r *DocumentReporter) GetImportReport(ctx context.Context, importID string) (types.ImportRun, bool, error) {
	rec, found, err := r.store.Get(ctx, importsCollection, importID)
	if err != nil || !found {
		return types.ImportRun{}, found, err
	}
	run, err := decodeImportRun(rec)
	return run, true, err
}

// GetFileReports returns every FileRecord recorded for importID.
func (r *DocumentReporter) GetFileReports(ctx context.Context, importID string) ([]types.FileRecord, error) {
	const pageSize = 1000
	files := make([]types.FileRecord, 0)
	for skip := 0; ; skip += pageSize {
		result, err := r.store.Query(ctx, docstore.QueryParameters{
			Collection: fileReportsCollection,
			Filter:     docstore.Eq("ImportID", importID),
			Skip:       skip,
			Top:        pageSize,
		})
		if err != nil {
			return nil, err
		}
		for _, d := range result.Data {
			files = append(files, decodeFileRecord(d))
		}
		if len(result.Data) < pageSize {
			return files, nil
		}
	}
}

// ListImports returns a skip/top page of imports ordered by StartedAt.
func (r *DocumentReporter) ListImports(ctx context.Context, skip, top int) ([]types.ImportRun, error) {
	if top <= 0 {
		top = 100
	}
	result, err := r.store.Query(ctx, docstore.QueryParameters{
		Collection: importsCollection,
		Skip:       skip,
		Top:        top,
		SortField:  "StartedAtUnix",
		SortDesc:   true,
	})
	if err != nil {
		return nil, err
	}
	runs := make([]types.ImportRun, 0, len(result.Data))
	for _, d := range result.Data {
		run, err := decodeImportRun(d)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// UpdateAcquisitionPhase applies update to the run's AcquisitionPhase
// and persists the result in one single-document write.
func (r *DocumentReporter) UpdateAcquisitionPhase(ctx context.Context, importID string, update func(*types.PhaseRecord)) (types.ImportRun, error) {
	return r.updatePhase(ctx, importID, func(run *types.ImportRun) { update(&run.AcquisitionPhase) })
}

// UpdateIngestionPhase applies update to the run's IngestionPhase.
func (r *DocumentReporter) UpdateIngestionPhase(ctx context.Context, importID string, update func(*types.PhaseRecord)) (types.ImportRun, error) {
	return r.updatePhase(ctx, importID, func(run *types.ImportRun) { update(&run.IngestionPhase) })
}

func (r *DocumentReporter) updatePhase(ctx context.Context, importID string, apply func(*types.ImportRun)) (types.ImportRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, found, err := r.store.Get(ctx, importsCollection, importID)
	if err != nil {
		return types.ImportRun{}, err
	}
	if !found {
		return types.ImportRun{}, kderrors.New(kderrors.ErrNotFound, "update_phase", importID, fmt.Errorf("no such import"))
	}
	run, err := decodeImportRun(rec)
	if err != nil {
		return types.ImportRun{}, err
	}
	apply(&run)
	if _, err := r.store.Upsert(ctx, importsCollection, importID, encodeImportRun(run)); err != nil {
		return types.ImportRun{}, err
	}
	return run, nil
}

// SetImportStatus stamps the run's terminal Status (and CompletedAt,
// Error for non-Started statuses) in one write.
func (r *DocumentReporter) SetImportStatus(ctx context.Context, importID string, status types.ImportStatus, errText string) (types.ImportRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, found, err := r.store.Get(ctx, importsCollection, importID)
	if err != nil {
		return types.ImportRun{}, err
	}
	if !found {
		return types.ImportRun{}, kderrors.New(kderrors.ErrNotFound, "set_import_status", importID, fmt.Errorf("no such import"))
	}
	run, err := decodeImportRun(rec)
	if err != nil {
		return types.ImportRun{}, err
	}
	run.Status = status
	run.Error = errText
	if status != types.ImportStarted {
		now := time.Now().UTC()
		run.CompletedAt = &now
	}
	if _, err := r.store.Upsert(ctx, importsCollection, importID, encodeImportRun(run)); err != nil {
		return types.ImportRun{}, err
	}
	return run, nil
}

// UpsertFileReport records/replaces one FileRecord, keyed by
// (ImportID, FileKey).
func (r *DocumentReporter) UpsertFileReport(ctx context.Context, record types.FileRecord) error {
	id := record.ImportID + "/" + record.FileKey
	_, err := r.store.Upsert(ctx, fileReportsCollection, id, encodeFileRecord(record))
	return err
}

var _ ImportReporter = (*DocumentReporter)(nil)
