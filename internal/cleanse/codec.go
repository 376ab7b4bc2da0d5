package cleanse

import (
	"time"

	"github.com/keeperdata/keeperdata/internal/types"
)

// encodeIssue/decodeIssue and encodeHistory/decodeHistory translate
// between the typed domain structs and the string-keyed document maps
// docstore.DocumentStore stores, mirroring importpipeline's
// encode/decode helpers for ImportRun/FileRecord.
func encodeIssue(issue types.Issue) types.Record {
	rec := types.Record{
		"Fingerprint":         issue.Fingerprint,
		"RuleID":              issue.RuleID,
		"PrimaryRecordID":     issue.PrimaryRecordID,
		"Context":             encodeContext(issue.Context),
		"CreatedAt":           issue.CreatedAt,
		"LastUpdatedAt":       issue.LastUpdatedAt,
		"LastSeenOperationID": issue.LastSeenOperationID,
		"Active":              issue.Active,
		"Ignored":             issue.Ignored,
	}
	return rec
}

func decodeIssue(rec types.Record) types.Issue {
	issue := types.Issue{
		Fingerprint:         toString(rec["Fingerprint"]),
		RuleID:              toString(rec["RuleID"]),
		PrimaryRecordID:     toString(rec["PrimaryRecordID"]),
		LastSeenOperationID: toString(rec["LastSeenOperationID"]),
		Active:              toBool(rec["Active"]),
		Ignored:             toBool(rec["Ignored"]),
	}
	if ctx, ok := rec["Context"].(types.Record); ok {
		issue.Context = decodeContext(ctx)
	} else if ctx, ok := rec["Context"].(map[string]any); ok {
		issue.Context = decodeContext(ctx)
	}
	if t, ok := rec["CreatedAt"].(time.Time); ok {
		issue.CreatedAt = t
	}
	if t, ok := rec["LastUpdatedAt"].(time.Time); ok {
		issue.LastUpdatedAt = t
	}
	return issue
}

func encodeHistory(h types.IssueHistory) types.Record {
	return types.Record{
		"Fingerprint": h.Fingerprint,
		"OperationID": h.OperationID,
		"Context":     encodeContext(h.Context),
		"ObservedAt":  h.ObservedAt,
	}
}

func encodeContext(c types.IssueContext) types.Record {
	return types.Record{
		"Cph":           c.Cph,
		"Lid":           c.Lid,
		"EmailsCts":     c.EmailsCts,
		"EmailsSam":     c.EmailsSam,
		"PhonesCts":     c.PhonesCts,
		"PhonesSam":     c.PhonesSam,
		"LocationCts":   c.LocationCts,
		"LocationSam":   c.LocationSam,
		"MissingEmails": c.MissingEmails,
		"MissingPhones": c.MissingPhones,
	}
}

func decodeContext(m map[string]any) types.IssueContext {
	return types.IssueContext{
		Cph:           toString(m["Cph"]),
		Lid:           toString(m["Lid"]),
		EmailsCts:     toStringSlice(m["EmailsCts"]),
		EmailsSam:     toStringSlice(m["EmailsSam"]),
		PhonesCts:     toStringSlice(m["PhonesCts"]),
		PhonesSam:     toStringSlice(m["PhonesSam"]),
		LocationCts:   toString(m["LocationCts"]),
		LocationSam:   toString(m["LocationSam"]),
		MissingEmails: toStringSlice(m["MissingEmails"]),
		MissingPhones: toStringSlice(m["MissingPhones"]),
	}
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

func toBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func toStringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			out = append(out, toString(e))
		}
		return out
	default:
		return nil
	}
}
