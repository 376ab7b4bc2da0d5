package importpipeline

import (
	"bytes"
	"testing"

	"github.com/keeperdata/keeperdata/internal/blobstore"
	"github.com/keeperdata/keeperdata/internal/crypto"
	"github.com/keeperdata/keeperdata/internal/dataset"
	"github.com/keeperdata/keeperdata/internal/docstore"
	"github.com/keeperdata/keeperdata/internal/lineage"
	"github.com/keeperdata/keeperdata/internal/types"
)

func ingestionRegistry(t *testing.T) *dataset.Registry {
	t.Helper()
	reg, err := dataset.NewRegistry([]types.DataSetDefinition{
		{
			Name:               "cts_primary",
			FilePrefixFormat:   "LITP_SAMCPHHOLDING",
			PrimaryKeyColumns:  []string{"Cph"},
			ChangeTypeColumn:   "ChangeType",
			AccumulatorColumns: []string{"HolderName"},
		},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

func seedIngestedFile(t *testing.T, internal blobstore.BlobStore, key string, plaintext []byte) {
	t.Helper()
	ctx := t.Context()
	password, err := crypto.DerivePassword(dataset.Basename(key))
	if err != nil {
		t.Fatalf("DerivePassword: %v", err)
	}
	var ciphertext bytes.Buffer
	if err := crypto.New().EncryptStream(ctx, bytes.NewReader(plaintext), &ciphertext, password, testSalt, int64(len(plaintext)), nil); err != nil {
		t.Fatalf("EncryptStream: %v", err)
	}
	if err := internal.Upload(ctx, key, bytes.NewReader(ciphertext.Bytes()), "application/octet-stream", nil); err != nil {
		t.Fatalf("Upload: %v", err)
	}
}

func newTestIngestion(t *testing.T) (*Ingestion, blobstore.BlobStore, docstore.DocumentStore, ImportReporter, lineage.Writer) {
	t.Helper()
	internal := blobstore.NewMemoryStore()
	store := docstore.NewEngine()
	reporter := NewDocumentReporter(store)
	lw := lineage.NewBlobWriter(blobstore.NewMemoryStore())
	ig := &Ingestion{
		Internal: internal,
		Datasets: ingestionRegistry(t),
		Crypto:   crypto.New(),
		Store:    store,
		Lineage:  lw,
		Reporter: reporter,
		Salt:     testSalt,
		Workers:  2,
	}
	return ig, internal, store, reporter, lw
}

func seedAcquiredFileReport(t *testing.T, reporter ImportReporter, importID, fileKey string) {
	t.Helper()
	ctx := t.Context()
	if _, _, err := reporter.CreateImport(ctx, importID, types.SourceExternal); err != nil {
		t.Fatalf("CreateImport: %v", err)
	}
	if err := reporter.UpsertFileReport(ctx, types.FileRecord{
		ImportID: importID,
		FileKey:  fileKey,
		Dataset:  "cts_primary",
		Status:   types.FileAcquired,
	}); err != nil {
		t.Fatalf("UpsertFileReport: %v", err)
	}
}

func TestIngestionInsertCreatesRecordAndLineageEvent(t *testing.T) {
	ig, internal, store, reporter, lw := newTestIngestion(t)
	ctx := t.Context()
	key := "LITP_SAMCPHHOLDING_20260101.csv.enc"
	seedIngestedFile(t, internal, key, []byte("Cph|ChangeType|HolderName\n12-34/567/8901|I|Alice\n"))
	seedAcquiredFileReport(t, reporter, "import-1", key)

	if err := ig.Run(ctx, "import-1"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	run, _, err := reporter.GetImportReport(ctx, "import-1")
	if err != nil {
		t.Fatalf("GetImportReport: %v", err)
	}
	if run.IngestionPhase.Status != types.PhaseCompleted {
		t.Fatalf("IngestionPhase.Status = %v, want Completed", run.IngestionPhase.Status)
	}

	recordKeyFor := recordKey([]string{"Cph"}, map[string]string{"Cph": "12-34/567/8901"})
	rec, found, err := store.Get(ctx, "cts_primary", recordKeyFor)
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if rec["HolderName"] != "Alice" {
		t.Fatalf("HolderName = %v, want Alice", rec["HolderName"])
	}

	events, err := lw.Read(ctx, "cts_primary")
	if err != nil {
		t.Fatalf("Read lineage: %v", err)
	}
	if len(events) != 1 || events[0].EventType != types.LineageCreated {
		t.Fatalf("events = %+v, want one Created event", events)
	}
}

func TestIngestionUpdateWithUnchangedValuesSkipsLineageEvent(t *testing.T) {
	ig, internal, _, reporter, lw := newTestIngestion(t)
	ctx := t.Context()

	key1 := "LITP_SAMCPHHOLDING_20260101.csv.enc"
	seedIngestedFile(t, internal, key1, []byte("Cph|ChangeType|HolderName\n12-34/567/8901|I|Alice\n"))
	seedAcquiredFileReport(t, reporter, "import-1", key1)
	if err := ig.Run(ctx, "import-1"); err != nil {
		t.Fatalf("Run (insert): %v", err)
	}

	key2 := "LITP_SAMCPHHOLDING_20260102.csv.enc"
	seedIngestedFile(t, internal, key2, []byte("Cph|ChangeType|HolderName\n12-34/567/8901|U|Alice\n"))
	seedAcquiredFileReport(t, reporter, "import-2", key2)
	if err := ig.Run(ctx, "import-2"); err != nil {
		t.Fatalf("Run (update, unchanged): %v", err)
	}

	events, err := lw.Read(ctx, "cts_primary")
	if err != nil {
		t.Fatalf("Read lineage: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %+v, want exactly one event (unchanged update should not append)", events)
	}
}

func TestIngestionUpdateWithChangedValueAppendsOneEvent(t *testing.T) {
	ig, internal, store, reporter, lw := newTestIngestion(t)
	ctx := t.Context()

	key1 := "LITP_SAMCPHHOLDING_20260101.csv.enc"
	seedIngestedFile(t, internal, key1, []byte("Cph|ChangeType|HolderName\n12-34/567/8901|I|Alice\n"))
	seedAcquiredFileReport(t, reporter, "import-1", key1)
	if err := ig.Run(ctx, "import-1"); err != nil {
		t.Fatalf("Run (insert): %v", err)
	}

	key2 := "LITP_SAMCPHHOLDING_20260102.csv.enc"
	seedIngestedFile(t, internal, key2, []byte("Cph|ChangeType|HolderName\n12-34/567/8901|U|Bob\n"))
	seedAcquiredFileReport(t, reporter, "import-2", key2)
	if err := ig.Run(ctx, "import-2"); err != nil {
		t.Fatalf("Run (update, changed): %v", err)
	}

	recordKeyFor := recordKey([]string{"Cph"}, map[string]string{"Cph": "12-34/567/8901"})
	rec, _, err := store.Get(ctx, "cts_primary", recordKeyFor)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec["HolderName"] != "Bob" {
		t.Fatalf("HolderName = %v, want Bob", rec["HolderName"])
	}

	events, err := lw.Read(ctx, "cts_primary")
	if err != nil {
		t.Fatalf("Read lineage: %v", err)
	}
	if len(events) != 2 || events[1].EventType != types.LineageUpdated {
		t.Fatalf("events = %+v, want [Created, Updated]", events)
	}
}

func TestIngestionDeleteThenReactivateRoundTrips(t *testing.T) {
	ig, internal, store, reporter, lw := newTestIngestion(t)
	ctx := t.Context()

	key1 := "LITP_SAMCPHHOLDING_20260101.csv.enc"
	seedIngestedFile(t, internal, key1, []byte("Cph|ChangeType|HolderName\n12-34/567/8901|I|Alice\n"))
	seedAcquiredFileReport(t, reporter, "import-1", key1)
	if err := ig.Run(ctx, "import-1"); err != nil {
		t.Fatalf("Run (insert): %v", err)
	}

	key2 := "LITP_SAMCPHHOLDING_20260102.csv.enc"
	seedIngestedFile(t, internal, key2, []byte("Cph|ChangeType|HolderName\n12-34/567/8901|D|Alice\n"))
	seedAcquiredFileReport(t, reporter, "import-2", key2)
	if err := ig.Run(ctx, "import-2"); err != nil {
		t.Fatalf("Run (delete): %v", err)
	}

	recordKeyFor := recordKey([]string{"Cph"}, map[string]string{"Cph": "12-34/567/8901"})
	rec, _, err := store.Get(ctx, "cts_primary", recordKeyFor)
	if err != nil {
		t.Fatalf("Get after delete: %v", err)
	}
	if !toBool(rec[types.FieldIsDeleted]) {
		t.Fatalf("expected IsDeleted=true after delete row")
	}

	key3 := "LITP_SAMCPHHOLDING_20260103.csv.enc"
	seedIngestedFile(t, internal, key3, []byte("Cph|ChangeType|HolderName\n12-34/567/8901|R|Alice\n"))
	seedAcquiredFileReport(t, reporter, "import-3", key3)
	if err := ig.Run(ctx, "import-3"); err != nil {
		t.Fatalf("Run (reactivate): %v", err)
	}

	rec, _, err = store.Get(ctx, "cts_primary", recordKeyFor)
	if err != nil {
		t.Fatalf("Get after reactivate: %v", err)
	}
	if toBool(rec[types.FieldIsDeleted]) {
		t.Fatalf("expected IsDeleted=false after reactivate row")
	}

	events, err := lw.Read(ctx, "cts_primary")
	if err != nil {
		t.Fatalf("Read lineage: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("events = %+v, want 3 (Created, Deleted, Undeleted)", events)
	}
	if events[1].EventType != types.LineageDeleted || events[2].EventType != types.LineageUndeleted {
		t.Fatalf("event types = [%v, %v, %v], want [Created, Deleted, Undeleted]", events[0].EventType, events[1].EventType, events[2].EventType)
	}
}

func TestIngestionDeleteOnMissingKeyIsNoOp(t *testing.T) {
	ig, internal, _, reporter, lw := newTestIngestion(t)
	ctx := t.Context()

	key := "LITP_SAMCPHHOLDING_20260101.csv.enc"
	seedIngestedFile(t, internal, key, []byte("Cph|ChangeType|HolderName\n12-34/567/8901|D|Alice\n"))
	seedAcquiredFileReport(t, reporter, "import-1", key)
	if err := ig.Run(ctx, "import-1"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	run, _, err := reporter.GetImportReport(ctx, "import-1")
	if err != nil {
		t.Fatalf("GetImportReport: %v", err)
	}
	if run.IngestionPhase.Status != types.PhaseCompleted {
		t.Fatalf("IngestionPhase.Status = %v, want Completed", run.IngestionPhase.Status)
	}

	events, err := lw.Read(ctx, "cts_primary")
	if err != nil {
		t.Fatalf("Read lineage: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("events = %+v, want none", events)
	}
}

func TestIngestionUpdateOnMissingKeyCountsRowError(t *testing.T) {
	ig, internal, _, reporter, _ := newTestIngestion(t)
	ctx := t.Context()

	key := "LITP_SAMCPHHOLDING_20260101.csv.enc"
	seedIngestedFile(t, internal, key, []byte("Cph|ChangeType|HolderName\n12-34/567/8901|U|Alice\n"))
	seedAcquiredFileReport(t, reporter, "import-1", key)
	if err := ig.Run(ctx, "import-1"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	files, err := reporter.GetFileReports(ctx, "import-1")
	if err != nil {
		t.Fatalf("GetFileReports: %v", err)
	}
	if len(files) != 1 || files[0].RowErrors != 1 {
		t.Fatalf("files = %#v, want one file with RowErrors=1", files)
	}
}

func TestIngestionHeaderMissingRequiredColumnFailsFile(t *testing.T) {
	ig, internal, _, reporter, _ := newTestIngestion(t)
	ctx := t.Context()

	key := "LITP_SAMCPHHOLDING_20260101.csv.enc"
	seedIngestedFile(t, internal, key, []byte("Cph|HolderName\n12-34/567/8901|Alice\n"))
	seedAcquiredFileReport(t, reporter, "import-1", key)
	if err := ig.Run(ctx, "import-1"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	run, _, err := reporter.GetImportReport(ctx, "import-1")
	if err != nil {
		t.Fatalf("GetImportReport: %v", err)
	}
	if run.IngestionPhase.Status != types.PhaseFailed {
		t.Fatalf("IngestionPhase.Status = %v, want Failed", run.IngestionPhase.Status)
	}

	files, err := reporter.GetFileReports(ctx, "import-1")
	if err != nil {
		t.Fatalf("GetFileReports: %v", err)
	}
	if len(files) != 1 || files[0].Status != types.FileFailed {
		t.Fatalf("files = %#v, want one Failed record", files)
	}
}
