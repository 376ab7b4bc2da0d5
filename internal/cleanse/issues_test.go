package cleanse

import (
	"testing"

	"github.com/keeperdata/keeperdata/internal/docstore"
	"github.com/keeperdata/keeperdata/internal/types"
)

func newIssueService(t *testing.T) *IssueCommandService {
	t.Helper()
	store := NewDocumentIssueStore(docstore.NewEngine())
	return NewIssueCommandService(store)
}

func TestRecordIssueFirstSeenIsCreated(t *testing.T) {
	svc := newIssueService(t)
	ctx := t.Context()

	result, err := svc.RecordIssue(ctx, RecordIssueCommand{
		PrimaryRecordID: "AB-01/123/0001",
		RuleID:          RuleCtsSamNoEmails,
		Context:         types.IssueContext{Cph: "01/123/0001"},
		OperationID:     "op-1",
	})
	if err != nil {
		t.Fatalf("RecordIssue: %v", err)
	}
	if result != types.IssueCreated {
		t.Fatalf("result = %v, want Created", result)
	}
}

func TestRecordIssueUnchangedWhenContextIdentical(t *testing.T) {
	svc := newIssueService(t)
	ctx := t.Context()
	cmd := RecordIssueCommand{
		PrimaryRecordID: "AB-01/123/0001",
		RuleID:          RuleCtsSamNoEmails,
		Context:         types.IssueContext{Cph: "01/123/0001"},
		OperationID:     "op-1",
	}

	if _, err := svc.RecordIssue(ctx, cmd); err != nil {
		t.Fatalf("first RecordIssue: %v", err)
	}

	cmd.OperationID = "op-2"
	result, err := svc.RecordIssue(ctx, cmd)
	if err != nil {
		t.Fatalf("second RecordIssue: %v", err)
	}
	if result != types.IssueUnchanged {
		t.Fatalf("result = %v, want Unchanged", result)
	}
}

func TestRecordIssueUpdatedWhenContextChanges(t *testing.T) {
	svc := newIssueService(t)
	ctx := t.Context()
	cmd := RecordIssueCommand{
		PrimaryRecordID: "AB-01/123/0001",
		RuleID:          RuleSamMissingEmail,
		Context:         types.IssueContext{Cph: "01/123/0001", MissingEmails: []string{"a@example.com"}},
		OperationID:     "op-1",
	}
	if _, err := svc.RecordIssue(ctx, cmd); err != nil {
		t.Fatalf("first RecordIssue: %v", err)
	}

	cmd.OperationID = "op-2"
	cmd.Context.MissingEmails = []string{"a@example.com", "b@example.com"}
	result, err := svc.RecordIssue(ctx, cmd)
	if err != nil {
		t.Fatalf("second RecordIssue: %v", err)
	}
	if result != types.IssueUpdated {
		t.Fatalf("result = %v, want Updated", result)
	}
}

func TestRecordIssueReactivatedAfterDeactivation(t *testing.T) {
	svc := newIssueService(t)
	ctx := t.Context()
	cmd := RecordIssueCommand{
		PrimaryRecordID: "AB-01/123/0001",
		RuleID:          RuleCtsSamNoEmails,
		Context:         types.IssueContext{Cph: "01/123/0001"},
		OperationID:     "op-1",
	}
	if _, err := svc.RecordIssue(ctx, cmd); err != nil {
		t.Fatalf("first RecordIssue: %v", err)
	}

	// op-2 sees no issues at all (simulating the rule no longer firing),
	// so DeactivateStaleIssues marks the fingerprint inactive.
	n, err := svc.DeactivateStaleIssues(ctx, "op-2")
	if err != nil {
		t.Fatalf("DeactivateStaleIssues: %v", err)
	}
	if n != 1 {
		t.Fatalf("deactivated count = %d, want 1", n)
	}

	cmd.OperationID = "op-3"
	result, err := svc.RecordIssue(ctx, cmd)
	if err != nil {
		t.Fatalf("third RecordIssue: %v", err)
	}
	if result != types.IssueReactivated {
		t.Fatalf("result = %v, want Reactivated", result)
	}
}

func TestDeactivateStaleIssuesLeavesCurrentOperationActive(t *testing.T) {
	svc := newIssueService(t)
	ctx := t.Context()

	if _, err := svc.RecordIssue(ctx, RecordIssueCommand{
		PrimaryRecordID: "AB-01/123/0001",
		RuleID:          RuleCtsSamNoEmails,
		OperationID:     "op-1",
	}); err != nil {
		t.Fatalf("RecordIssue: %v", err)
	}

	n, err := svc.DeactivateStaleIssues(ctx, "op-1")
	if err != nil {
		t.Fatalf("DeactivateStaleIssues: %v", err)
	}
	if n != 0 {
		t.Fatalf("deactivated count = %d, want 0 (issue was seen this operation)", n)
	}

	active, err := svc.Store.ActiveIssues(ctx)
	if err != nil {
		t.Fatalf("ActiveIssues: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("active issues = %d, want 1", len(active))
	}
}

func TestFingerprintIsStableAndRuleSpecific(t *testing.T) {
	a := Fingerprint("AB-01/123/0001", RuleCtsSamNoEmails)
	b := Fingerprint("AB-01/123/0001", RuleCtsSamNoEmails)
	if a != b {
		t.Fatalf("Fingerprint is not stable across calls")
	}
	c := Fingerprint("AB-01/123/0001", RuleSamMissingEmail)
	if a == c {
		t.Fatalf("Fingerprint collided across different rule ids")
	}
}
