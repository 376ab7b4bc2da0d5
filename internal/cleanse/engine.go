package cleanse

import (
	"context"
	"regexp"

	"github.com/keeperdata/keeperdata/internal/dataset"
	"github.com/keeperdata/keeperdata/internal/docstore"
	"github.com/keeperdata/keeperdata/internal/logging"
	"github.com/keeperdata/keeperdata/internal/types"
)

// pageSize is the fixed page size for both the CTS and SAM pumps
// (spec.md §4.7: "paged by (skip, 100)").
const pageSize = 100

// progressEvery is how often, in records analyzed, the engine reports
// progress (spec.md §4.7).
const progressEvery = 100

// CtsSamQueryService is the mid-layer query façade the engine scans
// through (component diagram, spec.md §2): it knows the two dataset
// names and the two lookup directions, but delegates all filtering
// and paging to QueryService.
type CtsSamQueryService struct {
	Store docstore.DocumentStore
}

// PageCts returns one page of non-deleted CTS rows, selecting only
// LID_FULL_IDENTIFIER (spec.md §4.7).
func (q *CtsSamQueryService) PageCts(ctx context.Context, skip int) (docstore.QueryResult, error) {
	return q.Store.Query(ctx, docstore.QueryParameters{
		Collection:   dataset.CtsCollection,
		Filter:       docstore.Eq(types.FieldIsDeleted, false),
		SelectFields: []string{dataset.FieldLidFullIdentifier},
		Skip:         skip,
		Top:          pageSize,
		IncludeCount: skip == 0,
	})
}

// PageSam returns one page of non-deleted SAM rows, selecting only CPH.
func (q *CtsSamQueryService) PageSam(ctx context.Context, skip int) (docstore.QueryResult, error) {
	return q.Store.Query(ctx, docstore.QueryParameters{
		Collection:   dataset.SamCollection,
		Filter:       docstore.Eq(types.FieldIsDeleted, false),
		SelectFields: []string{dataset.FieldCph},
		Skip:         skip,
		Top:          pageSize,
		IncludeCount: skip == 0,
	})
}

// GetSamByCph fetches the full SAM holding for cph, if one exists.
func (q *CtsSamQueryService) GetSamByCph(ctx context.Context, cph string) (types.Record, bool, error) {
	result, err := q.Store.Query(ctx, docstore.QueryParameters{
		Collection: dataset.SamCollection,
		Filter:     docstore.AndOf(docstore.Eq(types.FieldIsDeleted, false), docstore.Eq(dataset.FieldCph, cph)),
		Top:        1,
	})
	if err != nil || len(result.Data) == 0 {
		return nil, false, err
	}
	return result.Data[0], true, nil
}

// GetCtsByLid fetches the full CTS holding for lid, if one exists.
func (q *CtsSamQueryService) GetCtsByLid(ctx context.Context, lid string) (types.Record, bool, error) {
	result, err := q.Store.Query(ctx, docstore.QueryParameters{
		Collection: dataset.CtsCollection,
		Filter:     docstore.AndOf(docstore.Eq(types.FieldIsDeleted, false), docstore.Eq(dataset.FieldLidFullIdentifier, lid)),
		Top:        1,
	})
	if err != nil || len(result.Data) == 0 {
		return nil, false, err
	}
	return result.Data[0], true, nil
}

// GetCtsByCph fetches the CTS holding whose LID's embedded CPH matches
// cph — the lookup ProcessSamPrimary needs, since SAM rows carry only
// the bare CPH while CTS rows key on the region-prefixed LID.
func (q *CtsSamQueryService) GetCtsByCph(ctx context.Context, cph string) (types.Record, bool, error) {
	match, err := docstore.Match(dataset.FieldLidFullIdentifier, "-"+regexp.QuoteMeta(cph)+"$", true)
	if err != nil {
		return nil, false, err
	}
	result, err := q.Store.Query(ctx, docstore.QueryParameters{
		Collection: dataset.CtsCollection,
		Filter:     docstore.AndOf(docstore.Eq(types.FieldIsDeleted, false), match),
		Top:        1,
	})
	if err != nil || len(result.Data) == 0 {
		return nil, false, err
	}
	return result.Data[0], true, nil
}

// ProgressFunc receives (recordsAnalyzed, totalRecords) ticks.
type ProgressFunc func(recordsAnalyzed, totalRecords int64)

// Engine implements CleanseEngine (spec.md §4.7): it pumps CTS then
// SAM rows in series, evaluating the priority-ordered rule table per
// §4.7's table for every CTS row paired with a SAM counterpart.
type Engine struct {
	Queries  *CtsSamQueryService
	Issues   *IssueCommandService
	Progress ProgressFunc
	Logger   *logging.Logger
}

// Stats summarizes one Execute call.
type Stats struct {
	RecordsAnalyzed int64
	IssuesFound     int64
}

// Execute runs both pumps for operationID, recording issues as rules
// fire (spec.md §4.7). It does not call DeactivateStaleIssues —
// that is CleanseCoordinator's responsibility, invoked exactly once
// after Execute returns (spec.md §4.8, §4.9).
func (e *Engine) Execute(ctx context.Context, operationID string) (Stats, error) {
	var stats Stats

	total, err := e.totalRecords(ctx)
	if err != nil {
		return stats, err
	}
	e.reportProgress(0, total)

	if err := e.pumpCts(ctx, operationID, &stats, total); err != nil {
		return stats, err
	}
	if err := e.pumpSam(ctx, operationID, &stats, total); err != nil {
		return stats, err
	}

	return stats, nil
}

func (e *Engine) totalRecords(ctx context.Context) (int64, error) {
	ctsResult, err := e.Queries.PageCts(ctx, 0)
	if err != nil {
		return 0, err
	}
	samResult, err := e.Queries.PageSam(ctx, 0)
	if err != nil {
		return 0, err
	}
	var total int64
	if ctsResult.TotalCount != nil {
		total += int64(*ctsResult.TotalCount)
	}
	if samResult.TotalCount != nil {
		total += int64(*samResult.TotalCount)
	}
	return total, nil
}

func (e *Engine) pumpCts(ctx context.Context, operationID string, stats *Stats, total int64) error {
	skip := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := e.Queries.PageCts(ctx, skip)
		if err != nil {
			return err
		}
		for _, row := range page.Data {
			lidStr, _ := row[dataset.FieldLidFullIdentifier].(string)
			lid, ok := ParseLid(lidStr)
			stats.RecordsAnalyzed++
			if ok && InCtsCountyRange(lid.CountyCode) {
				if err := e.processCtsPrimary(ctx, operationID, lid, stats); err != nil {
					return err
				}
			} else if e.Logger != nil {
				e.Logger.Debug("cleanse: skipping unparseable or out-of-range CTS lid", map[string]any{"lid": lidStr})
			}
			e.maybeReportProgress(stats.RecordsAnalyzed, total)
		}
		skip += len(page.Data)
		if len(page.Data) < pageSize {
			return nil
		}
	}
}

func (e *Engine) pumpSam(ctx context.Context, operationID string, stats *Stats, total int64) error {
	skip := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := e.Queries.PageSam(ctx, skip)
		if err != nil {
			return err
		}
		for _, row := range page.Data {
			cphStr, _ := row[dataset.FieldCph].(string)
			cph, ok := ParseCph(cphStr)
			stats.RecordsAnalyzed++
			if ok {
				if err := e.processSamPrimary(ctx, operationID, cph, stats); err != nil {
					return err
				}
			} else if e.Logger != nil {
				e.Logger.Debug("cleanse: skipping unparseable SAM cph", map[string]any{"cph": cphStr})
			}
			e.maybeReportProgress(stats.RecordsAnalyzed, total)
		}
		skip += len(page.Data)
		if len(page.Data) < pageSize {
			return nil
		}
	}
}

// processCtsPrimary implements ProcessCtsPrimary(lid) (spec.md §4.7).
func (e *Engine) processCtsPrimary(ctx context.Context, operationID string, lid Lid, stats *Stats) error {
	samRow, found, err := e.Queries.GetSamByCph(ctx, lid.Cph)
	if err != nil {
		return err
	}
	if !found {
		return e.recordHit(ctx, operationID, stats, lid.Value, RuleCtsCphNotInSam, types.IssueContext{Cph: lid.Cph, Lid: lid.Value})
	}

	ctsRow, found, err := e.Queries.GetCtsByLid(ctx, lid.Value)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	ruleCtx := ruleContext{
		Lid: lid,
		Cts: dataset.NewCtsCphHoldingView(ctsRow),
		Sam: dataset.NewSamCphHoldingView(samRow),
	}
	for _, rule := range ctsSamRules {
		result := rule.Eval(ruleCtx)
		if !result.Fires {
			continue
		}
		if err := e.recordHit(ctx, operationID, stats, lid.Value, rule.RuleID, result.Context); err != nil {
			return err
		}
	}
	return nil
}

// processSamPrimary implements ProcessSamPrimary(cph) (spec.md §4.7).
func (e *Engine) processSamPrimary(ctx context.Context, operationID string, cph Cph, stats *Stats) error {
	_, found, err := e.Queries.GetCtsByCph(ctx, cph.Value)
	if err != nil {
		return err
	}
	if found {
		return nil
	}
	return e.recordHit(ctx, operationID, stats, cph.Value, RuleSamCphNotInCts, types.IssueContext{Cph: cph.Value})
}

func (e *Engine) recordHit(ctx context.Context, operationID string, stats *Stats, primaryRecordID, ruleID string, issueCtx types.IssueContext) error {
	result, err := e.Issues.RecordIssue(ctx, RecordIssueCommand{
		PrimaryRecordID: primaryRecordID,
		RuleID:          ruleID,
		Context:         issueCtx,
		OperationID:     operationID,
	})
	if err != nil {
		return err
	}
	if result == types.IssueCreated {
		stats.IssuesFound++
	}
	return nil
}

func (e *Engine) maybeReportProgress(analyzed, total int64) {
	if analyzed%progressEvery == 0 {
		e.reportProgress(analyzed, total)
	}
}

func (e *Engine) reportProgress(analyzed, total int64) {
	if e.Progress != nil {
		e.Progress(analyzed, total)
	}
}
