package cleanse

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/keeperdata/keeperdata/internal/blobstore"
	"github.com/keeperdata/keeperdata/internal/kderrors"
	"github.com/keeperdata/keeperdata/internal/types"
)

// reportCsvHeader is the fixed column order spec.md §4.10 mandates.
var reportCsvHeader = []string{
	"CPH", "CTS LID Full Identifier", "Issue Code", "Rule Code", "Error Code", "Error Description",
	"Email (CTS)", "Email (SAM)", "Tel (CTS)", "Tel (SAM)", "FSA",
	"First Detected (UTC)", "Last Updated (UTC)", "Active", "Ignored", "Resolution Status", "Assigned To",
}

// ruleDescriptions gives each rule id a human-readable "Error
// Description" column value.
var ruleDescriptions = map[string]string{
	RuleCtsCphNotInSam:       "CPH present in CTS but missing from SAM",
	RuleSamCphNotInCts:       "CPH present in SAM but missing from CTS",
	RuleCtsSamNoEmails:       "No email addresses recorded in either system",
	RuleSamMissingEmail:      "SAM is missing one or more email addresses present in CTS",
	RuleCtsSamNoPhones:       "No telephone numbers recorded in either system",
	RuleSamMissingPhone:      "SAM is missing one or more telephone numbers present in CTS",
	RuleSamNoCattleUnit:      "SAM holding is not classified as a cattle unit",
	RuleSamCattleRelatedCphs: "SAM feature name does not match the CTS address name for a cattle holding",
}

// ReportExporter implements ReportExporter (spec.md §4.10): serialize
// every active issue as CSV, zip it, and upload the archive to the
// internal store under reportsPrefix, writing the object key and a
// freshly presigned URL back onto the operation.
type ReportExporter struct {
	Internal      blobstore.BlobStore
	Operations    OperationStore
	ReportsPrefix string
	PresignTTL    time.Duration
}

// Export writes the zipped CSV report of the given issues for
// operationID, and stamps the operation's ReportObjectKey/ReportURL.
func (e *ReportExporter) Export(ctx context.Context, operationID string, issues []types.Issue) error {
	csvBytes, err := renderCsv(issues)
	if err != nil {
		return err
	}

	zipBytes, err := zipSingleEntry(fmt.Sprintf("cleanse-report-%s.csv", operationID), csvBytes)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	key := fmt.Sprintf("%s/%s/cleanse-report-%s.zip", strings.TrimSuffix(e.ReportsPrefix, "/"), now.Format("2006/01/02"), operationID)

	if err := e.Internal.Upload(ctx, key, bytes.NewReader(zipBytes), "application/zip", nil); err != nil {
		return kderrors.New(kderrors.ErrStorageTransient, "report_export", key, err)
	}

	ttl := e.PresignTTL
	if ttl <= 0 {
		ttl = blobstore.DefaultPresignTTL
	}
	url, err := e.Internal.PresignGet(ctx, key, ttl)
	if err != nil {
		return kderrors.New(kderrors.ErrStorageTransient, "report_presign", key, err)
	}

	_, err = e.Operations.Update(ctx, operationID, func(op *types.CleanseOperation) {
		op.ReportObjectKey = key
		op.ReportURL = url
	})
	return err
}

func renderCsv(issues []types.Issue) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(reportCsvHeader); err != nil {
		return nil, err
	}
	for _, issue := range issues {
		row := []string{
			issue.Context.Cph,
			issue.Context.Lid,
			issue.Fingerprint,
			issue.RuleID,
			issue.RuleID,
			ruleDescriptions[issue.RuleID],
			strings.Join(issue.Context.EmailsCts, "; "),
			strings.Join(issue.Context.EmailsSam, "; "),
			strings.Join(issue.Context.PhonesCts, "; "),
			strings.Join(issue.Context.PhonesSam, "; "),
			issue.Context.LocationSam,
			issue.CreatedAt.UTC().Format(time.RFC3339),
			issue.LastUpdatedAt.UTC().Format(time.RFC3339),
			boolString(issue.Active),
			boolString(issue.Ignored),
			resolutionStatus(issue.Active),
			"",
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func resolutionStatus(active bool) string {
	if active {
		return "Open"
	}
	return "Resolved"
}

func zipSingleEntry(name string, content []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	fw, err := zw.Create(name)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(content); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
