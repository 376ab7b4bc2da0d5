package importpipeline

import (
	"fmt"
	"time"

	"github.com/keeperdata/keeperdata/internal/types"
)

// encodeImportRun/decodeImportRun and encodeFileRecord/decodeFileRecord
// translate between the strongly-typed domain structs and the
// string-keyed document maps the in-memory docstore.Engine (and any
// future document-database driver) stores. StartedAtUnix exists purely
// as a sortable projection of StartedAt for ListImports' ordering.
func encodeImportRun(run types.ImportRun) types.Record {
	rec := types.Record{
		"ImportID":         run.ImportID,
		"SourceType":       string(run.SourceType),
		"Status":           string(run.Status),
		"StartedAt":        run.StartedAt,
		"StartedAtUnix":    run.StartedAt.Unix(),
		"Error":            run.Error,
		"SchemaVersion":    run.SchemaVersion,
		"AcquisitionPhase": encodePhase(run.AcquisitionPhase),
		"IngestionPhase":   encodePhase(run.IngestionPhase),
	}
	if run.CompletedAt != nil {
		rec["CompletedAt"] = *run.CompletedAt
	}
	return rec
}

func decodeImportRun(rec types.Record) (types.ImportRun, error) {
	run := types.ImportRun{
		ImportID:      toString(rec["ImportID"]),
		SourceType:    types.SourceType(toString(rec["SourceType"])),
		Status:        types.ImportStatus(toString(rec["Status"])),
		Error:         toString(rec["Error"]),
		SchemaVersion: toInt(rec["SchemaVersion"]),
	}
	if t, ok := toTime(rec["StartedAt"]); ok {
		run.StartedAt = t
	}
	if t, ok := toTime(rec["CompletedAt"]); ok {
		run.CompletedAt = &t
	}
	if phase, ok := rec["AcquisitionPhase"].(types.PhaseRecord); ok {
		run.AcquisitionPhase = phase
	} else if m, ok := rec["AcquisitionPhase"].(map[string]any); ok {
		run.AcquisitionPhase = decodePhase(m)
	}
	if phase, ok := rec["IngestionPhase"].(types.PhaseRecord); ok {
		run.IngestionPhase = phase
	} else if m, ok := rec["IngestionPhase"].(map[string]any); ok {
		run.IngestionPhase = decodePhase(m)
	}
	return run, nil
}

func encodePhase(p types.PhaseRecord) map[string]any {
	m := map[string]any{
		"Phase":            string(p.Phase),
		"Status":           string(p.Status),
		"FilesDiscovered":  p.FilesDiscovered,
		"FilesProcessed":   p.FilesProcessed,
		"FilesFailed":      p.FilesFailed,
		"FilesSkipped":     p.FilesSkipped,
		"RecordsCreated":   p.RecordsCreated,
		"RecordsUpdated":   p.RecordsUpdated,
		"RecordsDeleted":   p.RecordsDeleted,
		"RecordsProcessed": p.RecordsProcessed,
		"Cancelled":        p.Cancelled,
	}
	if p.StartedAt != nil {
		m["StartedAt"] = *p.StartedAt
	}
	if p.CompletedAt != nil {
		m["CompletedAt"] = *p.CompletedAt
	}
	return m
}

func decodePhase(m map[string]any) types.PhaseRecord {
	p := types.PhaseRecord{
		Phase:            types.Phase(toString(m["Phase"])),
		Status:           types.PhaseStatus(toString(m["Status"])),
		FilesDiscovered:  toInt(m["FilesDiscovered"]),
		FilesProcessed:   toInt(m["FilesProcessed"]),
		FilesFailed:      toInt(m["FilesFailed"]),
		FilesSkipped:     toInt(m["FilesSkipped"]),
		RecordsCreated:   toInt64(m["RecordsCreated"]),
		RecordsUpdated:   toInt64(m["RecordsUpdated"]),
		RecordsDeleted:   toInt64(m["RecordsDeleted"]),
		RecordsProcessed: toInt64(m["RecordsProcessed"]),
		Cancelled:        toBool(m["Cancelled"]),
	}
	if t, ok := toTime(m["StartedAt"]); ok {
		p.StartedAt = &t
	}
	if t, ok := toTime(m["CompletedAt"]); ok {
		p.CompletedAt = &t
	}
	return p
}

func encodeFileRecord(f types.FileRecord) types.Record {
	rec := types.Record{
		"ImportID":         f.ImportID,
		"FileKey":          f.FileKey,
		"Dataset":          f.Dataset,
		"FileSize":         f.FileSize,
		"ContentHash":      f.ContentHash,
		"SourceKey":        f.SourceKey,
		"Status":           string(f.Status),
		"Error":            f.Error,
		"DecryptionMillis": f.DecryptionMillis,
		"RowsProcessed":    f.RowsProcessed,
		"RowErrors":        f.RowErrors,
	}
	if f.AcquiredAt != nil {
		rec["AcquiredAt"] = *f.AcquiredAt
	}
	if f.IngestedAt != nil {
		rec["IngestedAt"] = *f.IngestedAt
	}
	return rec
}

func decodeFileRecord(rec types.Record) types.FileRecord {
	f := types.FileRecord{
		ImportID:         toString(rec["ImportID"]),
		FileKey:          toString(rec["FileKey"]),
		Dataset:          toString(rec["Dataset"]),
		FileSize:         toInt64(rec["FileSize"]),
		ContentHash:      toString(rec["ContentHash"]),
		SourceKey:        toString(rec["SourceKey"]),
		Status:           types.FileProcessingStatus(toString(rec["Status"])),
		Error:            toString(rec["Error"]),
		DecryptionMillis: toInt64(rec["DecryptionMillis"]),
		RowsProcessed:    toInt64(rec["RowsProcessed"]),
		RowErrors:        toInt64(rec["RowErrors"]),
	}
	if t, ok := toTime(rec["AcquiredAt"]); ok {
		f.AcquiredAt = &t
	}
	if t, ok := toTime(rec["IngestedAt"]); ok {
		f.IngestedAt = &t
	}
	return f
}

func toString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func toBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func toTime(v any) (time.Time, bool) {
	t, ok := v.(time.Time)
	return t, ok
}
