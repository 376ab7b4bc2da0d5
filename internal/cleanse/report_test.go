package cleanse

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"io"
	"testing"
	"time"

	"github.com/keeperdata/keeperdata/internal/types"
)

func TestRenderCsvIncludesHeaderAndRows(t *testing.T) {
	issues := []types.Issue{
		{
			Fingerprint:   "fp1",
			RuleID:        RuleCtsCphNotInSam,
			Context:       types.IssueContext{Cph: "01/123/0001", Lid: "AB-01/123/0001"},
			CreatedAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			LastUpdatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
			Active:        true,
		},
	}

	data, err := renderCsv(issues)
	if err != nil {
		t.Fatalf("renderCsv: %v", err)
	}

	r := csv.NewReader(bytes.NewReader(data))
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("reading rendered CSV: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2 (header + one issue)", len(rows))
	}
	if len(rows[0]) != len(reportCsvHeader) {
		t.Fatalf("header has %d columns, want %d", len(rows[0]), len(reportCsvHeader))
	}
	if rows[1][0] != "01/123/0001" {
		t.Fatalf("CPH column = %q, want %q", rows[1][0], "01/123/0001")
	}
	if rows[1][2] != "fp1" {
		t.Fatalf("Issue Code column = %q, want %q", rows[1][2], "fp1")
	}
	if rows[1][13] != "true" {
		t.Fatalf("Active column = %q, want %q", rows[1][13], "true")
	}
}

func TestZipSingleEntryRoundTrips(t *testing.T) {
	content := []byte("a,b,c\n1,2,3\n")
	zipped, err := zipSingleEntry("report.csv", content)
	if err != nil {
		t.Fatalf("zipSingleEntry: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(zipped), int64(len(zipped)))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	if len(zr.File) != 1 || zr.File[0].Name != "report.csv" {
		t.Fatalf("zip contents = %+v, want one entry named report.csv", zr.File)
	}

	rc, err := zr.File[0].Open()
	if err != nil {
		t.Fatalf("opening zip entry: %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading zip entry: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("zip entry content mismatch")
	}
}
