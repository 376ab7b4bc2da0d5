package importpipeline

import (
	"testing"
	"time"

	"github.com/keeperdata/keeperdata/internal/blobstore"
	"github.com/keeperdata/keeperdata/internal/crypto"
	"github.com/keeperdata/keeperdata/internal/docstore"
	"github.com/keeperdata/keeperdata/internal/lineage"
	"github.com/keeperdata/keeperdata/internal/types"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, blobstore.BlobStore, ImportReporter) {
	t.Helper()
	external := blobstore.NewMemoryStore()
	internal := blobstore.NewMemoryStore()
	store := docstore.NewEngine()
	reporter := NewDocumentReporter(store)
	reg := ingestionRegistry(t)

	o := &Orchestrator{
		Reporter: reporter,
		Acquisition: &Acquisition{
			External: external,
			Internal: internal,
			Datasets: reg,
			Crypto:   crypto.New(),
			Reporter: reporter,
			Salt:     testSalt,
		},
		Ingestion: &Ingestion{
			Internal: internal,
			Datasets: reg,
			Crypto:   crypto.New(),
			Store:    store,
			Lineage:  lineage.NewBlobWriter(blobstore.NewMemoryStore()),
			Reporter: reporter,
			Salt:     testSalt,
			Workers:  2,
		},
	}
	return o, external, reporter
}

func TestOrchestratorStartRunsBothPhasesToCompletion(t *testing.T) {
	o, external, reporter := newTestOrchestrator(t)
	ctx := t.Context()
	key := "LITP_SAMCPHHOLDING_20260101.csv.enc"
	seedEncryptedFile(t, external, key, []byte("Cph|ChangeType|HolderName\n12-34/567/8901|I|Alice\n"))

	run, err := o.Start(ctx, "import-1", types.SourceExternal)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if run.Status != types.ImportCompleted {
		t.Fatalf("Status = %v, want Completed", run.Status)
	}
	if run.AcquisitionPhase.Status != types.PhaseCompleted || run.IngestionPhase.Status != types.PhaseCompleted {
		t.Fatalf("phases = %+v / %+v, want both Completed", run.AcquisitionPhase, run.IngestionPhase)
	}

	stored, found, err := reporter.GetImportReport(ctx, "import-1")
	if err != nil || !found {
		t.Fatalf("GetImportReport: found=%v err=%v", found, err)
	}
	if stored.Status != types.ImportCompleted {
		t.Fatalf("stored.Status = %v, want Completed", stored.Status)
	}
}

func TestOrchestratorStartIsIdempotentOnImportID(t *testing.T) {
	o, external, reporter := newTestOrchestrator(t)
	ctx := t.Context()
	key := "LITP_SAMCPHHOLDING_20260101.csv.enc"
	seedEncryptedFile(t, external, key, []byte("Cph|ChangeType|HolderName\n12-34/567/8901|I|Alice\n"))

	first, err := o.Start(ctx, "import-1", types.SourceExternal)
	if err != nil {
		t.Fatalf("Start (first): %v", err)
	}

	second, err := o.Start(ctx, "import-1", types.SourceExternal)
	if err != nil {
		t.Fatalf("Start (second): %v", err)
	}
	if second.Status != first.Status {
		t.Fatalf("second.Status = %v, want unchanged %v", second.Status, first.Status)
	}
	if !second.StartedAt.Equal(first.StartedAt) {
		t.Fatalf("second.StartedAt = %v, want unchanged %v", second.StartedAt, first.StartedAt)
	}
}

func TestAwaitReturnsOnceRunReachesTerminalStatus(t *testing.T) {
	_, _, reporter := newTestOrchestrator(t)
	ctx := t.Context()
	if _, _, err := reporter.CreateImport(ctx, "import-1", types.SourceExternal); err != nil {
		t.Fatalf("CreateImport: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(10 * time.Millisecond)
		if _, err := reporter.SetImportStatus(ctx, "import-1", types.ImportCompleted, ""); err != nil {
			t.Errorf("SetImportStatus: %v", err)
		}
	}()

	run, err := Await(ctx, reporter, "import-1")
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if run.Status != types.ImportCompleted {
		t.Fatalf("Status = %v, want Completed", run.Status)
	}
	<-done
}
