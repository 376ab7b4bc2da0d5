package importpipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/keeperdata/keeperdata/internal/kderrors"
	"github.com/keeperdata/keeperdata/internal/logging"
	"github.com/keeperdata/keeperdata/internal/types"
)

// Orchestrator implements ImportOrchestrator (spec.md §4.5): run
// acquisition then ingestion for one import_id, and derive the run's
// terminal status from both phases' outcomes. Grounded on the
// teacher's runtime/run.go lifecycle (validate → run phases in
// sequence → classify outcome).
type Orchestrator struct {
	Reporter   ImportReporter
	Acquisition *Acquisition
	Ingestion   *Ingestion
	Logger      *logging.Logger
}

// Start runs importID's full two-phase pipeline. It is idempotent on
// import_id: starting with an id that already completed (or failed)
// is a no-op that returns the prior run unchanged (spec.md §4.5).
func (o *Orchestrator) Start(ctx context.Context, importID string, sourceType types.SourceType) (types.ImportRun, error) {
	run, created, err := o.Reporter.CreateImport(ctx, importID, sourceType)
	if err != nil {
		return types.ImportRun{}, err
	}
	if !created && run.Status != types.ImportStarted {
		return run, nil
	}

	if err := o.Acquisition.Run(ctx, importID); err != nil {
		if o.Logger != nil {
			o.Logger.Error("orchestrator: acquisition failed", map[string]any{"import_id": importID, "error": err.Error()})
		}
	}

	if err := o.Ingestion.Run(ctx, importID); err != nil {
		if o.Logger != nil {
			o.Logger.Error("orchestrator: ingestion failed", map[string]any{"import_id": importID, "error": err.Error()})
		}
	}

	run, found, err := o.Reporter.GetImportReport(ctx, importID)
	if err != nil {
		return types.ImportRun{}, err
	}
	if !found {
		return types.ImportRun{}, kderrors.New(kderrors.ErrNotFound, "orchestrator_start", importID, fmt.Errorf("import run vanished mid-pipeline"))
	}

	finalStatus := types.ImportCompleted
	errText := ""
	if run.AcquisitionPhase.Status != types.PhaseCompleted || run.IngestionPhase.Status != types.PhaseCompleted {
		finalStatus = types.ImportFailed
		errText = "one or more phases did not complete"
	}
	return o.Reporter.SetImportStatus(ctx, importID, finalStatus, errText)
}

// Await polls GetImportReport every second, up to a 5-minute cap,
// until the run reaches a terminal status (spec.md §5's bounded poll
// loop for "has import X finished yet?").
func Await(ctx context.Context, reporter ImportReporter, importID string) (types.ImportRun, error) {
	const pollInterval = time.Second
	const overallCap = 5 * time.Minute

	deadline := time.Now().Add(overallCap)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		run, found, err := reporter.GetImportReport(ctx, importID)
		if err != nil {
			return types.ImportRun{}, err
		}
		if found && (run.Status == types.ImportCompleted || run.Status == types.ImportFailed) {
			return run, nil
		}
		if time.Now().After(deadline) {
			return types.ImportRun{}, kderrors.New(kderrors.ErrTimeout, "await_import", importID, fmt.Errorf("import did not finish within %s", overallCap))
		}
		select {
		case <-ctx.Done():
			return types.ImportRun{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
