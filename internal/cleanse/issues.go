// Package cleanse implements the cleanse analysis engine (spec.md
// §4.7–§4.10): CleanseEngine's rule-driven scan of the CTS/SAM
// datasets, the IssueCommandService/IssueStore that records findings
// idempotently by fingerprint, CleanseCoordinator's lock-guarded
// singleton-per-cluster scheduling, and ReportExporter's compressed
// CSV export.
package cleanse

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/keeperdata/keeperdata/internal/docstore"
	"github.com/keeperdata/keeperdata/internal/kderrors"
	"github.com/keeperdata/keeperdata/internal/types"
)

const (
	issuesCollection  = "cleanse_issues"
	historyCollection = "cleanse_issue_history"
)

// Fingerprint computes the stable Issue key: hash(primaryRecordID ||
// ":" || ruleID) (spec.md §3, §4.7).
func Fingerprint(primaryRecordID, ruleID string) string {
	sum := sha256.Sum256([]byte(primaryRecordID + ":" + ruleID))
	return hex.EncodeToString(sum[:])
}

// RecordIssueCommand is one rule hit to be recorded against the
// fingerprint derived from (PrimaryRecordID, RuleID).
type RecordIssueCommand struct {
	PrimaryRecordID string
	RuleID          string
	Context         types.IssueContext
	OperationID     string
}

// IssueStore is the persistence contract for Issue/IssueHistory
// (spec.md §4.8).
type IssueStore interface {
	Get(ctx context.Context, fingerprint string) (types.Issue, bool, error)
	Put(ctx context.Context, issue types.Issue) error
	AppendHistory(ctx context.Context, history types.IssueHistory) error
	ActiveIssues(ctx context.Context) ([]types.Issue, error)
	// DeactivateStale sets active=false on every currently-active issue
	// whose LastSeenOperationID != operationID, returning the count
	// deactivated (spec.md §4.8).
	DeactivateStale(ctx context.Context, operationID string) (int, error)
}

// IssueCommandService implements RecordIssue/DeactivateStaleIssues
// (spec.md §4.8) over an IssueStore.
type IssueCommandService struct {
	Store IssueStore
	mu    sync.Mutex
}

// NewIssueCommandService creates a IssueCommandService over store.
func NewIssueCommandService(store IssueStore) *IssueCommandService {
	return &IssueCommandService{Store: store}
}

// RecordIssue implements the Created/Reactivated/Updated/Unchanged
// state machine of spec.md §4.8, and appends exactly one IssueHistory
// row per call (idempotent on (fingerprint, operationID) under retry —
// the store is responsible for that idempotency; this service always
// issues the append and trusts the store to de-duplicate).
func (s *IssueCommandService) RecordIssue(ctx context.Context, cmd RecordIssueCommand) (types.IssueRecordResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fingerprint := Fingerprint(cmd.PrimaryRecordID, cmd.RuleID)
	now := time.Now().UTC()

	existing, found, err := s.Store.Get(ctx, fingerprint)
	if err != nil {
		return "", err
	}

	var result types.IssueRecordResult
	var issue types.Issue

	switch {
	case !found:
		issue = types.Issue{
			Fingerprint:         fingerprint,
			RuleID:              cmd.RuleID,
			PrimaryRecordID:     cmd.PrimaryRecordID,
			Context:             cmd.Context,
			CreatedAt:           now,
			LastUpdatedAt:       now,
			LastSeenOperationID: cmd.OperationID,
			Active:              true,
		}
		result = types.IssueCreated

	case !existing.Active:
		issue = existing
		issue.Active = true
		issue.Context = cmd.Context
		issue.LastUpdatedAt = now
		issue.LastSeenOperationID = cmd.OperationID
		result = types.IssueReactivated

	case !contextEqual(existing.Context, cmd.Context):
		issue = existing
		issue.Context = cmd.Context
		issue.LastUpdatedAt = now
		issue.LastSeenOperationID = cmd.OperationID
		result = types.IssueUpdated

	default:
		issue = existing
		issue.LastSeenOperationID = cmd.OperationID
		result = types.IssueUnchanged
	}

	if err := s.Store.Put(ctx, issue); err != nil {
		return "", err
	}

	if err := s.Store.AppendHistory(ctx, types.IssueHistory{
		Fingerprint: fingerprint,
		OperationID: cmd.OperationID,
		Context:     issue.Context,
		ObservedAt:  now,
	}); err != nil {
		return "", err
	}

	return result, nil
}

// DeactivateStaleIssues deactivates every active issue not seen by
// operationID, called exactly once per operation after all rules have
// run (spec.md §4.8). The returned count contributes to
// CleanseOperation.IssuesResolved.
func (s *IssueCommandService) DeactivateStaleIssues(ctx context.Context, operationID string) (int, error) {
	return s.Store.DeactivateStale(ctx, operationID)
}

func contextEqual(a, b types.IssueContext) bool {
	return a.Cph == b.Cph &&
		a.Lid == b.Lid &&
		stringSliceEqual(a.EmailsCts, b.EmailsCts) &&
		stringSliceEqual(a.EmailsSam, b.EmailsSam) &&
		stringSliceEqual(a.PhonesCts, b.PhonesCts) &&
		stringSliceEqual(a.PhonesSam, b.PhonesSam) &&
		a.LocationCts == b.LocationCts &&
		a.LocationSam == b.LocationSam &&
		stringSliceEqual(a.MissingEmails, b.MissingEmails) &&
		stringSliceEqual(a.MissingPhones, b.MissingPhones)
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// DocumentIssueStore implements IssueStore over a docstore.DocumentStore,
// keyed by fingerprint for issues and by "fingerprint|operationID" for
// history rows (giving the store its own natural idempotency key).
type DocumentIssueStore struct {
	store docstore.DocumentStore
}

// NewDocumentIssueStore creates a DocumentIssueStore over store.
func NewDocumentIssueStore(store docstore.DocumentStore) *DocumentIssueStore {
	return &DocumentIssueStore{store: store}
}

func (s *DocumentIssueStore) Get(ctx context.Context, fingerprint string) (types.Issue, bool, error) {
	rec, found, err := s.store.Get(ctx, issuesCollection, fingerprint)
	if err != nil || !found {
		return types.Issue{}, found, err
	}
	return decodeIssue(rec), true, nil
}

func (s *DocumentIssueStore) Put(ctx context.Context, issue types.Issue) error {
	_, err := s.store.Upsert(ctx, issuesCollection, issue.Fingerprint, encodeIssue(issue))
	return err
}

func (s *DocumentIssueStore) AppendHistory(ctx context.Context, history types.IssueHistory) error {
	id := history.Fingerprint + "|" + history.OperationID
	_, err := s.store.Upsert(ctx, historyCollection, id, encodeHistory(history))
	return err
}

func (s *DocumentIssueStore) ActiveIssues(ctx context.Context) ([]types.Issue, error) {
	result, err := s.store.Query(ctx, docstore.QueryParameters{
		Collection: issuesCollection,
		Filter:     docstore.Eq("Active", true),
		Top:        1 << 30,
	})
	if err != nil {
		return nil, err
	}
	issues := make([]types.Issue, 0, len(result.Data))
	for _, rec := range result.Data {
		issues = append(issues, decodeIssue(rec))
	}
	return issues, nil
}

func (s *DocumentIssueStore) DeactivateStale(ctx context.Context, operationID string) (int, error) {
	result, err := s.store.Query(ctx, docstore.QueryParameters{
		Collection: issuesCollection,
		Filter:     docstore.Eq("Active", true),
		Top:        1 << 30,
	})
	if err != nil {
		return 0, err
	}

	count := 0
	for _, rec := range result.Data {
		issue := decodeIssue(rec)
		if issue.LastSeenOperationID == operationID {
			continue
		}
		issue.Active = false
		issue.LastUpdatedAt = time.Now().UTC()
		if _, err := s.store.Upsert(ctx, issuesCollection, issue.Fingerprint, encodeIssue(issue)); err != nil {
			return count, kderrors.New(kderrors.ErrStorageTransient, "deactivate_stale", issue.Fingerprint, err)
		}
		count++
	}
	return count, nil
}
