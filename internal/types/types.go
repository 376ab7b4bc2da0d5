// Package types holds the domain entities shared across KeeperData's
// import and cleanse subsystems.
package types

import "time"

// SchemaVersion is stamped on every persisted ImportRun so additive
// column changes can be detected without a migration step; no other
// entity carries a version. Core logic never interprets the value; it
// is passthrough only.
const SchemaVersion = 1

// SourceType identifies where an ImportRun's files originate.
type SourceType string

const (
	SourceExternal SourceType = "external"
	SourceInternal SourceType = "internal"
)

// ImportStatus is the terminal/non-terminal status of an ImportRun.
type ImportStatus string

const (
	ImportStarted   ImportStatus = "Started"
	ImportCompleted ImportStatus = "Completed"
	ImportFailed    ImportStatus = "Failed"
)

// Phase identifies one of the two phases of an import.
type Phase string

const (
	PhaseAcquisition Phase = "Acquisition"
	PhaseIngestion   Phase = "Ingestion"
)

// PhaseStatus is the lifecycle status of a PhaseRecord.
type PhaseStatus string

const (
	PhasePending   PhaseStatus = "Pending"
	PhaseRunning   PhaseStatus = "Running"
	PhaseCompleted PhaseStatus = "Completed"
	PhaseFailed    PhaseStatus = "Failed"
)

// FileProcessingStatus is the lifecycle status of a FileRecord.
type FileProcessingStatus string

const (
	FileDiscovered FileProcessingStatus = "Discovered"
	FileAcquired   FileProcessingStatus = "Acquired"
	FileIngested   FileProcessingStatus = "Ingested"
	FileSkipped    FileProcessingStatus = "Skipped"
	FileFailed     FileProcessingStatus = "Failed"
)

// CleanseOperationStatus is the lifecycle status of a CleanseOperation.
type CleanseOperationStatus string

const (
	OperationNotStarted CleanseOperationStatus = "NotStarted"
	OperationRunning    CleanseOperationStatus = "Running"
	OperationCompleted  CleanseOperationStatus = "Completed"
	OperationFailed     CleanseOperationStatus = "Failed"
	OperationCancelled  CleanseOperationStatus = "Cancelled"
)

// IssueRecordResult is the outcome of IssueCommandService.RecordIssue.
type IssueRecordResult string

const (
	IssueCreated      IssueRecordResult = "Created"
	IssueReactivated  IssueRecordResult = "Reactivated"
	IssueUpdated      IssueRecordResult = "Updated"
	IssueUnchanged    IssueRecordResult = "Unchanged"
	IssueResolved     IssueRecordResult = "Resolved"
)

// LineageEventType classifies a LineageEvent.
type LineageEventType string

const (
	LineageCreated   LineageEventType = "Created"
	LineageUpdated   LineageEventType = "Updated"
	LineageDeleted   LineageEventType = "Deleted"
	LineageUndeleted LineageEventType = "Undeleted"
)

// ChangeType is the single-letter row discriminator used by the pipe
// delimited ingestion format.
type ChangeType string

const (
	ChangeInsert     ChangeType = "I"
	ChangeUpdate     ChangeType = "U"
	ChangeDelete     ChangeType = "D"
	ChangeReactivate ChangeType = "R"
)

// DataSetDefinition describes one ingestible dataset.
type DataSetDefinition struct {
	Name               string   `yaml:"name" json:"name"`
	FilePrefixFormat   string   `yaml:"filePrefixFormat" json:"filePrefixFormat"`
	DatePattern        string   `yaml:"datePattern" json:"datePattern"`
	PrimaryKeyColumns  []string `yaml:"primaryKeyColumns" json:"primaryKeyColumns"`
	ChangeTypeColumn   string   `yaml:"changeTypeColumn" json:"changeTypeColumn"`
	AccumulatorColumns []string `yaml:"accumulatorColumns" json:"accumulatorColumns"`
}

// ImportRun is one invocation of the import orchestrator.
type ImportRun struct {
	ImportID          string       `json:"import_id"`
	SourceType        SourceType   `json:"source_type"`
	Status            ImportStatus `json:"status"`
	StartedAt         time.Time    `json:"started_at"`
	CompletedAt       *time.Time   `json:"completed_at,omitempty"`
	AcquisitionPhase  PhaseRecord  `json:"acquisition_phase"`
	IngestionPhase    PhaseRecord  `json:"ingestion_phase"`
	Error             string       `json:"error,omitempty"`
	SchemaVersion     int          `json:"schema_version"`
}

// PhaseRecord tracks progress of one phase within an ImportRun.
type PhaseRecord struct {
	Phase          Phase       `json:"phase"`
	Status         PhaseStatus `json:"status"`
	FilesDiscovered int        `json:"files_discovered"`
	FilesProcessed  int        `json:"files_processed"`
	FilesFailed     int        `json:"files_failed"`
	FilesSkipped    int        `json:"files_skipped"`
	RecordsCreated  int64      `json:"records_created"`
	RecordsUpdated  int64      `json:"records_updated"`
	RecordsDeleted  int64      `json:"records_deleted"`
	RecordsProcessed int64     `json:"records_processed"`
	StartedAt      *time.Time  `json:"started_at,omitempty"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
	Cancelled      bool        `json:"cancelled,omitempty"`
}

// FileRecord tracks one file's progress through both phases.
type FileRecord struct {
	ImportID          string                `json:"import_id"`
	FileKey           string                `json:"file_key"`
	Dataset           string                `json:"dataset"`
	FileSize          int64                 `json:"file_size"`
	ContentHash       string                `json:"content_hash"`
	SourceKey         string                `json:"source_key"`
	Status            FileProcessingStatus  `json:"status"`
	Error             string                `json:"error,omitempty"`
	AcquiredAt        *time.Time            `json:"acquired_at,omitempty"`
	DecryptionMillis  int64                 `json:"decryption_duration_ms,omitempty"`
	IngestedAt        *time.Time            `json:"ingested_at,omitempty"`
	RowsProcessed     int64                 `json:"rows_processed,omitempty"`
	RowErrors         int64                 `json:"row_errors,omitempty"`
}

// Record is the generic shape of one domain document.
// Accumulator columns live alongside the metadata fields in the same map.
type Record map[string]any

// Metadata field names written onto every upserted Record.
const (
	FieldIsDeleted    = "IsDeleted"
	FieldCreatedAtUtc = "CreatedAtUtc"
	FieldUpdatedAtUtc = "UpdatedAtUtc"
	FieldBatchId      = "BatchId"
)

// LineageEvent is one append-only lineage log entry.
type LineageEvent struct {
	RecordID      string           `msgpack:"record_id"`
	Collection    string           `msgpack:"collection"`
	EventSeq      int64            `msgpack:"event_seq"`
	EventType     LineageEventType `msgpack:"event_type"`
	ImportID      string           `msgpack:"import_id"`
	FileKey       string           `msgpack:"file_key"`
	ChangeType    ChangeType       `msgpack:"change_type"`
	PreviousValues map[string]any  `msgpack:"previous_values,omitempty"`
	NewValues      map[string]any  `msgpack:"new_values,omitempty"`
	EventDate      time.Time       `msgpack:"event_date"`
}

// CleanseOperation is one invocation of the cleanse analysis.
type CleanseOperation struct {
	OperationID     string                 `json:"operation_id"`
	Status          CleanseOperationStatus `json:"status"`
	Progress        int                    `json:"progress"`
	StatusText      string                 `json:"status_text"`
	RecordsAnalyzed int64                  `json:"records_analyzed"`
	TotalRecords    int64                  `json:"total_records"`
	IssuesFound     int64                  `json:"issues_found"`
	IssuesResolved  int64                  `json:"issues_resolved"`
	DurationMillis  int64                  `json:"duration_ms"`
	ReportObjectKey string                 `json:"report_object_key,omitempty"`
	ReportURL       string                 `json:"report_url,omitempty"`
	StartedAt       time.Time              `json:"started_at"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
	Error           string                 `json:"error,omitempty"`
}

// IssueContext is the rule-hit detail recorded on an Issue and snapshotted
// into IssueHistory.
type IssueContext struct {
	Cph          string   `json:"cph,omitempty"`
	Lid          string   `json:"lid,omitempty"`
	EmailsCts    []string `json:"emails_cts,omitempty"`
	EmailsSam    []string `json:"emails_sam,omitempty"`
	PhonesCts    []string `json:"phones_cts,omitempty"`
	PhonesSam    []string `json:"phones_sam,omitempty"`
	LocationCts  string   `json:"location_cts,omitempty"`
	LocationSam  string   `json:"location_sam,omitempty"`
	MissingEmails []string `json:"missing_emails,omitempty"`
	MissingPhones []string `json:"missing_phones,omitempty"`
}

// Issue is one active or deactivated data-quality finding.
type Issue struct {
	Fingerprint        string       `json:"fingerprint"`
	RuleID             string       `json:"rule_id"`
	PrimaryRecordID    string       `json:"primary_record_id"`
	Context            IssueContext `json:"context"`
	CreatedAt          time.Time    `json:"created_at"`
	LastUpdatedAt      time.Time    `json:"last_updated_at"`
	LastSeenOperationID string      `json:"last_seen_operation_id"`
	Active             bool         `json:"active"`
	Ignored            bool         `json:"ignored"`
}

// IssueHistory is one append-only observation snapshot of an Issue.
type IssueHistory struct {
	Fingerprint string       `json:"fingerprint"`
	OperationID string       `json:"operation_id"`
	Context     IssueContext `json:"context"`
	ObservedAt  time.Time    `json:"observed_at"`
}

// DistributedLockEntry is the persisted shape of one lock record.
type DistributedLockEntry struct {
	Name      string    `json:"name"`
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expires_at"`
}
