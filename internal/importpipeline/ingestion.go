package importpipeline

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/keeperdata/keeperdata/internal/blobstore"
	"github.com/keeperdata/keeperdata/internal/crypto"
	"github.com/keeperdata/keeperdata/internal/dataset"
	"github.com/keeperdata/keeperdata/internal/docstore"
	"github.com/keeperdata/keeperdata/internal/kderrors"
	"github.com/keeperdata/keeperdata/internal/lineage"
	"github.com/keeperdata/keeperdata/internal/logging"
	"github.com/keeperdata/keeperdata/internal/types"
)

// progressEvery is how often (in rows) ingestion reports progress
// (spec.md §4.4).
const progressEvery = 100

// IngestionProgress carries one progress tick for the current file.
type IngestionProgress struct {
	RowNumber             int64
	TotalRows             int64
	RowsPerMinute         float64
	EstimatedTimeRemaining time.Duration
}

// IngestionProgressFunc receives progress ticks. May be nil.
type IngestionProgressFunc func(fileKey string, p IngestionProgress)

// Ingestion implements IngestionPipeline (spec.md §4.4): decrypt each
// Acquired file, parse its pipe-delimited rows, and apply them to the
// dataset's collection via RecordUpserter, emitting one lineage event
// per changed record.
//
// Grounded on runtime/executor.go's bounded worker pool for the
// across-file concurrency and on ipc/frame.go's streaming-read
// discipline for per-row parsing without buffering a whole file.
type Ingestion struct {
	Internal blobstore.BlobStore
	Datasets *dataset.Registry
	Crypto   crypto.StreamingCrypto
	Store    docstore.DocumentStore
	Lineage  lineage.Writer
	Reporter ImportReporter
	Salt     string
	Workers  int
	Progress IngestionProgressFunc
	Logger   *logging.Logger
}

// Run ingests every Acquired file recorded for importID, across
// Ingestion.Workers bounded concurrent workers.
func (ig *Ingestion) Run(ctx context.Context, importID string) error {
	now := time.Now().UTC()
	if _, err := ig.Reporter.UpdateIngestionPhase(ctx, importID, func(p *types.PhaseRecord) {
		p.Status = types.PhaseRunning
		p.StartedAt = &now
	}); err != nil {
		return err
	}

	files, err := ig.Reporter.GetFileReports(ctx, importID)
	if err != nil {
		return err
	}

	workers := ig.Workers
	if workers <= 0 {
		workers = 1
	}

	var mu sync.Mutex
	failed := false
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for _, f := range files {
		if f.Status != types.FileAcquired {
			continue
		}
		f := f

		select {
		case <-ctx.Done():
			mu.Lock()
			failed = true
			mu.Unlock()
		default:
		}

		mu.Lock()
		aborted := failed && ctx.Err() != nil
		mu.Unlock()
		if aborted {
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if err := ig.ingestOne(ctx, importID, f); err != nil {
				mu.Lock()
				failed = true
				mu.Unlock()
				if ig.Logger != nil {
					ig.Logger.Warn("ingestion: file failed", map[string]any{"file_key": f.FileKey, "error": err.Error()})
				}
			}
		}()
	}
	wg.Wait()

	completedAt := time.Now().UTC()
	finalStatus := types.PhaseCompleted
	if failed {
		finalStatus = types.PhaseFailed
	}
	cancelled := ctx.Err() != nil
	_, err = ig.Reporter.UpdateIngestionPhase(ctx, importID, func(p *types.PhaseRecord) {
		p.Status = finalStatus
		p.CompletedAt = &completedAt
		p.Cancelled = cancelled
	})
	return err
}

// ingestOne decrypts and applies one file's rows sequentially.
func (ig *Ingestion) ingestOne(ctx context.Context, importID string, file types.FileRecord) error {
	def, ok := ig.Datasets.Get(file.Dataset)
	if !ok {
		return fmt.Errorf("ingestion: unknown dataset %q for file %q", file.Dataset, file.FileKey)
	}

	password, err := crypto.DerivePassword(dataset.Basename(file.FileKey))
	if err != nil {
		ig.markFileFailed(ctx, file, err)
		return err
	}

	src, err := ig.Internal.Download(ctx, file.FileKey)
	if err != nil {
		ig.markFileFailed(ctx, file, err)
		return err
	}
	defer src.Close()

	pr, pw := io.Pipe()
	go func() {
		decErr := ig.Crypto.DecryptStream(ctx, src, pw, password, ig.Salt, 0, nil)
		pw.CloseWithError(decErr)
	}()

	rowsProcessed, rowErrors, applyErr := ig.applyRows(ctx, importID, file, def, pr)
	if applyErr != nil {
		ig.markFileFailed(ctx, file, applyErr)
		return applyErr
	}

	ingestedAt := time.Now().UTC()
	file.Status = types.FileIngested
	file.IngestedAt = &ingestedAt
	file.RowsProcessed = rowsProcessed
	file.RowErrors = rowErrors
	return ig.Reporter.UpsertFileReport(ctx, file)
}

func (ig *Ingestion) markFileFailed(ctx context.Context, file types.FileRecord, err error) {
	file.Status = types.FileFailed
	file.Error = err.Error()
	_ = ig.Reporter.UpsertFileReport(ctx, file)
}

// applyRows streams rows from r, validating the header and applying
// each data row in source order; it returns rows processed and the
// count of per-row errors. A fatal error (corrupt/missing header,
// scanner failure) aborts the file.
func (ig *Ingestion) applyRows(ctx context.Context, importID string, file types.FileRecord, def types.DataSetDefinition, r io.Reader) (int64, int64, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var header []string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		header = strings.Split(line, "|")
		break
	}
	if err := scanner.Err(); err != nil {
		return 0, 0, kderrors.New(kderrors.ErrCryptoIO, "ingestion_header", file.FileKey, err)
	}
	if header == nil {
		return 0, 0, fmt.Errorf("ingestion: %s has no header row", file.FileKey)
	}

	columns, err := validateHeader(header, def)
	if err != nil {
		return 0, 0, err
	}

	var rowsProcessed, rowErrors int64
	var rowIndex int64
	start := time.Now()

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return rowsProcessed, rowErrors, nil
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		rowIndex++
		fields := strings.Split(line, "|")
		if len(fields) != len(header) {
			rowErrors++
			if ig.Logger != nil {
				ig.Logger.Warn("ingestion: row length mismatch", map[string]any{"file_key": file.FileKey, "row_index": rowIndex})
			}
			continue
		}

		row := make(map[string]string, len(fields))
		for i, col := range header {
			row[col] = fields[i]
		}

		if err := ig.applyRow(ctx, importID, file, def, columns, row); err != nil {
			rowErrors++
			if ig.Logger != nil {
				ig.Logger.Warn("ingestion: row apply error", map[string]any{"file_key": file.FileKey, "row_index": rowIndex, "error": err.Error()})
			}
		}
		rowsProcessed++

		if rowsProcessed%progressEvery == 0 && ig.Progress != nil {
			elapsed := time.Since(start)
			rpm := 0.0
			if elapsed > 0 {
				rpm = float64(rowsProcessed) / elapsed.Minutes()
			}
			ig.Progress(file.FileKey, IngestionProgress{RowNumber: rowsProcessed, RowsPerMinute: rpm})
		}
	}
	if err := scanner.Err(); err != nil {
		return rowsProcessed, rowErrors, kderrors.New(kderrors.ErrCryptoIO, "ingestion_rows", file.FileKey, err)
	}
	return rowsProcessed, rowErrors, nil
}

// rowColumns is the resolved set of column names a row must carry.
type rowColumns struct {
	primaryKey []string
	changeType string
}

func validateHeader(header []string, def types.DataSetDefinition) (rowColumns, error) {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	var missing []string
	for _, k := range def.PrimaryKeyColumns {
		if !present[k] {
			missing = append(missing, k)
		}
	}
	if !present[def.ChangeTypeColumn] {
		missing = append(missing, def.ChangeTypeColumn)
	}
	for _, a := range def.AccumulatorColumns {
		if !present[a] {
			missing = append(missing, a)
		}
	}
	if len(missing) > 0 {
		return rowColumns{}, fmt.Errorf("ingestion: header missing required columns %v", missing)
	}
	return rowColumns{primaryKey: def.PrimaryKeyColumns, changeType: def.ChangeTypeColumn}, nil
}

// applyRow applies one validated row's change to the target
// collection, exactly implementing the I/U/D/R semantics of spec.md
// §4.4, and appends a lineage event for every mutation that actually
// changes field values.
func (ig *Ingestion) applyRow(ctx context.Context, importID string, file types.FileRecord, def types.DataSetDefinition, cols rowColumns, row map[string]string) error {
	change := types.ChangeType(row[cols.changeType])
	switch change {
	case types.ChangeInsert, types.ChangeUpdate, types.ChangeDelete, types.ChangeReactivate:
	default:
		return fmt.Errorf("ingestion: unknown change type %q", row[cols.changeType])
	}

	key := recordKey(cols.primaryKey, row)
	existing, found, err := ig.Store.Get(ctx, def.Name, key)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	newValues := make(map[string]any, len(def.AccumulatorColumns)+len(cols.primaryKey))
	for _, k := range cols.primaryKey {
		newValues[k] = row[k]
	}
	for _, a := range def.AccumulatorColumns {
		newValues[a] = row[a]
	}

	switch change {
	case types.ChangeInsert:
		if !found {
			return ig.mutate(ctx, def.Name, key, importID, file.FileKey, types.LineageCreated, change, nil, buildRecord(newValues, false, now, importID))
		}
		if toBool(existing[types.FieldIsDeleted]) {
			return ig.mutate(ctx, def.Name, key, importID, file.FileKey, types.LineageUndeleted, change, existing, buildRecord(newValues, false, now, importID))
		}
		return ig.update(ctx, def.Name, key, importID, file.FileKey, change, existing, newValues, now)

	case types.ChangeUpdate:
		if !found {
			return fmt.Errorf("ingestion: update for missing key %v", key)
		}
		return ig.update(ctx, def.Name, key, importID, file.FileKey, change, existing, newValues, now)

	case types.ChangeDelete:
		if !found {
			return nil
		}
		if toBool(existing[types.FieldIsDeleted]) {
			return nil
		}
		deleted := cloneRecord(existing)
		deleted[types.FieldIsDeleted] = true
		deleted[types.FieldUpdatedAtUtc] = now
		deleted[types.FieldBatchId] = importID
		return ig.mutate(ctx, def.Name, key, importID, file.FileKey, types.LineageDeleted, change, existing, deleted)

	case types.ChangeReactivate:
		undeleted := cloneRecord(existing)
		if undeleted == nil {
			undeleted = buildRecord(newValues, false, now, importID)
		}
		undeleted[types.FieldIsDeleted] = false
		undeleted[types.FieldUpdatedAtUtc] = now
		undeleted[types.FieldBatchId] = importID
		return ig.mutate(ctx, def.Name, key, importID, file.FileKey, types.LineageUndeleted, change, existing, undeleted)
	}
	return nil
}

// update applies an accumulator-field update, short-circuiting (no
// write, no lineage event) when the new values equal the existing
// ones — the idempotency guarantee spec.md §4.4 requires for at-most-
// once row replay.
func (ig *Ingestion) update(ctx context.Context, collection, key, importID, fileKey string, change types.ChangeType, existing map[string]any, newValues map[string]any, now time.Time) error {
	next := cloneRecord(existing)
	if next == nil {
		next = make(map[string]any)
	}
	changed := false
	for k, v := range newValues {
		if fmt.Sprintf("%v", next[k]) != fmt.Sprintf("%v", v) {
			changed = true
		}
		next[k] = v
	}
	if !changed {
		return nil
	}
	next[types.FieldUpdatedAtUtc] = now
	next[types.FieldBatchId] = importID
	return ig.mutate(ctx, collection, key, importID, fileKey, types.LineageUpdated, change, existing, next)
}

// mutate performs the Upsert and, only when it actually changed the
// stored document, appends exactly one lineage event.
func (ig *Ingestion) mutate(ctx context.Context, collection, key, importID, fileKey string, eventType types.LineageEventType, change types.ChangeType, previous map[string]any, next map[string]any) error {
	changedRecord, err := ig.Store.Upsert(ctx, collection, key, next)
	if err != nil {
		return err
	}
	if !changedRecord {
		return nil
	}
	if ig.Lineage == nil {
		return nil
	}
	_, err = ig.Lineage.Append(ctx, types.LineageEvent{
		RecordID:       key,
		Collection:     collection,
		EventType:      eventType,
		ImportID:       importID,
		FileKey:        fileKey,
		ChangeType:     change,
		PreviousValues: previous,
		NewValues:      next,
		EventDate:      time.Now().UTC(),
	})
	return err
}

func buildRecord(values map[string]any, isDeleted bool, now time.Time, importID string) map[string]any {
	rec := cloneRecord(values)
	rec[types.FieldIsDeleted] = isDeleted
	rec[types.FieldCreatedAtUtc] = now
	rec[types.FieldUpdatedAtUtc] = now
	rec[types.FieldBatchId] = importID
	return rec
}

func cloneRecord(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// recordKey derives the document id from the primary-key column
// values, joined deterministically so the same row always maps to the
// same key.
func recordKey(primaryKey []string, row map[string]string) string {
	parts := make([]string, len(primaryKey))
	for i, k := range primaryKey {
		parts[i] = row[k]
	}
	joined := strings.Join(parts, "\x1f")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}

func toBool(v any) bool {
	b, _ := v.(bool)
	return b
}
