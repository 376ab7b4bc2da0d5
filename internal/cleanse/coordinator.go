package cleanse

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keeperdata/keeperdata/internal/lock"
	"github.com/keeperdata/keeperdata/internal/logging"
	"github.com/keeperdata/keeperdata/internal/types"
)

// LockName is the distributed lock name CleanseCoordinator serializes
// on, enforcing "at most one running CleanseOperation exists per
// cluster" (spec.md §3, §4.9).
const LockName = "cleanse-analysis"

// LockTTL and RenewInterval are the coordinator's lock lifecycle
// constants (spec.md §4.9).
const (
	LockTTL       = 5 * time.Minute
	RenewInterval = 2 * time.Minute
)

// Coordinator implements CleanseCoordinator (spec.md §4.9): acquires
// the singleton lock, runs Engine.Execute in a dedicated task, renews
// the lock every RenewInterval on a sibling task whose cancellation is
// linked to the analysis task, and on completion deactivates stale
// issues, marks the operation terminal, and exports the report.
//
// Grounded on the teacher's runtime/run.go lifecycle shape (explicit
// dedicated worker task, structured lifetime) for the analysis task,
// and the "renewer parallel to the main task, cancellation linked"
// pattern spec.md §9's design notes call for directly.
type Coordinator struct {
	Lock       lock.Lock
	Engine     *Engine
	Issues     *IssueCommandService
	Operations OperationStore
	Exporter   *ReportExporter
	Logger     *logging.Logger

	mu      sync.Mutex
	running bool
}

// StartAnalysis tries to acquire the lock and, on success, launches
// the analysis in a background goroutine and returns the operation
// descriptor immediately. Returns (nil, nil) if the lock is already
// held (spec.md §4.9).
func (c *Coordinator) StartAnalysis(ctx context.Context) (*types.CleanseOperation, error) {
	handle, acquired, err := c.Lock.TryAcquire(ctx, LockName, LockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, nil
	}

	op := c.newOperation()
	if err := c.Operations.Create(ctx, op); err != nil {
		_ = handle.Release(ctx)
		return nil, err
	}

	go func() {
		bg := context.Background()
		if _, err := c.runAnalysis(bg, handle, op.OperationID); err != nil && c.Logger != nil {
			c.Logger.Error("cleanse: background analysis failed", map[string]any{"operation_id": op.OperationID, "error": err.Error()})
		}
	}()

	return &op, nil
}

// RunAnalysis is the synchronous variant used by tests: it acquires
// the lock, runs the analysis to completion, and surfaces any error
// (spec.md §4.9).
func (c *Coordinator) RunAnalysis(ctx context.Context) (*types.CleanseOperation, error) {
	handle, acquired, err := c.Lock.TryAcquire(ctx, LockName, LockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, nil
	}

	op := c.newOperation()
	if err := c.Operations.Create(ctx, op); err != nil {
		_ = handle.Release(ctx)
		return nil, err
	}

	final, err := c.runAnalysis(ctx, handle, op.OperationID)
	if err != nil {
		return &final, err
	}
	return &final, nil
}

func (c *Coordinator) newOperation() types.CleanseOperation {
	return types.CleanseOperation{
		OperationID: uuid.NewString(),
		Status:      types.OperationRunning,
		StartedAt:   time.Now().UTC(),
	}
}

// runAnalysis runs Engine.Execute under handle's lock, with a renewer
// goroutine refreshing the lock every RenewInterval in parallel. Lock
// renewal failure is logged and does not abort the analysis — the
// coordinator treats lock-loss as non-fatal (spec.md §4.9, §7
// LockError.LostOwnership). On completion it deactivates stale issues,
// marks the operation terminal, cancels and awaits the renewer, then
// releases the lock, and finally exports the report.
func (c *Coordinator) runAnalysis(ctx context.Context, handle lock.Handle, operationID string) (types.CleanseOperation, error) {
	renewCtx, cancelRenew := context.WithCancel(ctx)
	var renewWg sync.WaitGroup
	renewWg.Add(1)
	go c.renew(renewCtx, &renewWg, handle)

	start := time.Now()
	stats, execErr := c.Engine.Execute(ctx, operationID)

	var resolved int
	if execErr == nil {
		n, err := c.Issues.DeactivateStaleIssues(ctx, operationID)
		if err != nil {
			execErr = err
		}
		resolved = n
	}

	cancelled := ctx.Err() != nil
	final, updateErr := c.Operations.Update(ctx, operationID, func(op *types.CleanseOperation) {
		now := time.Now().UTC()
		op.CompletedAt = &now
		op.DurationMillis = time.Since(start).Milliseconds()
		op.RecordsAnalyzed = stats.RecordsAnalyzed
		op.IssuesFound = stats.IssuesFound
		op.IssuesResolved = int64(resolved)
		op.Progress = 100
		switch {
		case cancelled:
			op.Status = types.OperationCancelled
		case execErr != nil:
			op.Status = types.OperationFailed
			op.Error = execErr.Error()
		default:
			op.Status = types.OperationCompleted
			op.StatusText = "analysis complete"
		}
	})

	cancelRenew()
	renewWg.Wait()
	_ = handle.Release(context.Background())

	if updateErr != nil {
		return final, updateErr
	}
	if execErr != nil {
		return final, execErr
	}

	if final.Status == types.OperationCompleted && c.Exporter != nil {
		issues, err := c.Issues.Store.ActiveIssues(ctx)
		if err != nil {
			return final, err
		}
		if err := c.Exporter.Export(ctx, operationID, issues); err != nil {
			return final, err
		}
		final, _, err = c.getOrEmpty(ctx, operationID)
		if err != nil {
			return final, err
		}
	}

	return final, nil
}

func (c *Coordinator) getOrEmpty(ctx context.Context, operationID string) (types.CleanseOperation, bool, error) {
	return c.Operations.Get(ctx, operationID)
}

// renew refreshes handle's TTL every RenewInterval until ctx is
// cancelled. A failed renewal is logged at warning and the loop
// continues trying — lock loss never aborts the in-flight analysis
// (spec.md §4.9, §5: "cancellation tokens in renewer tasks are
// expected and logged at warning only").
func (c *Coordinator) renew(ctx context.Context, wg *sync.WaitGroup, handle lock.Handle) {
	defer wg.Done()

	ticker := time.NewTicker(RenewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if c.Logger != nil {
				c.Logger.Warn("cleanse: lock renewer cancelled", map[string]any{"lock": handle.Name()})
			}
			return
		case <-ticker.C:
			ok, err := handle.TryRenew(ctx, LockTTL)
			if err != nil && c.Logger != nil {
				c.Logger.Warn("cleanse: lock renewal error", map[string]any{"lock": handle.Name(), "error": err.Error()})
				continue
			}
			if !ok && c.Logger != nil {
				c.Logger.Warn("cleanse: lock renewal lost ownership", map[string]any{"lock": handle.Name()})
			}
		}
	}
}
