package domain

import "time"

// BatchStatus represents the lifecycle state of a batch
type BatchStatus string

const (
	BatchQueued     BatchStatus = "queued"
	BatchProcessing BatchStatus = "processing"
	BatchPaused     BatchStatus = "paused"
	BatchCompleted  BatchStatus = "completed"
	BatchError      BatchStatus = "error"
	BatchCancelled  BatchStatus = "cancelled"
)

// Terminal reports whether no further automatic transition occurs from this status
func (s BatchStatus) Terminal() bool {
	return s == BatchCompleted || s == BatchError || s == BatchCancelled
}

// DocumentStatus reflects the per-document state machine. The string values
// form the external contract the search/frontend layer filters on.
type DocumentStatus string

const (
	DocConverted     DocumentStatus = "converted"
	DocTextExtracted DocumentStatus = "text_extracted"
	DocOCRProcessed  DocumentStatus = "ocr_processed"
	DocCompleted     DocumentStatus = "completed"
	DocSuccess       DocumentStatus = "success"
	DocSkipped       DocumentStatus = "skipped"
	DocError         DocumentStatus = "error"
)

// TerminalSuccess reports whether a stored document with this status should
// not be reprocessed on a batch re-run.
func (s DocumentStatus) TerminalSuccess() bool {
	switch s {
	case DocCompleted, DocSuccess, DocTextExtracted, DocOCRProcessed:
		return true
	}
	return false
}

// SourceRef identifies where a file's raw bytes come from: either a drive
// item in the external document store or an inline base64 payload.
type SourceRef struct {
	DriveID string `json:"drive_id,omitempty"`
	ItemID  string `json:"item_id,omitempty"`
	Inline  string `json:"inline,omitempty"`
}

// IsInline reports whether the payload is carried in the request itself
func (r SourceRef) IsInline() bool {
	return r.Inline != ""
}

// FileDescriptor describes one file in a batch. Immutable after batch creation.
type FileDescriptor struct {
	ID     string    `json:"id" validate:"required"`
	Name   string    `json:"name" validate:"required"`
	Source SourceRef `json:"source"`
	Size   int64     `json:"size"`
}

// Settings is the per-batch configuration bag. Immutable after batch creation.
type Settings struct {
	Engine              string  `json:"engine" validate:"omitempty,oneof=vision tesseract"`
	Language            string  `json:"language"`
	DPI                 int     `json:"dpi" validate:"omitempty,min=72,max=1200"`
	ColorMode           string  `json:"color_mode" validate:"omitempty,oneof=rgb gray"`
	Rotation            int     `json:"rotation"`
	PageRange           string  `json:"page_range"`
	UseGPU              bool    `json:"use_gpu"`
	ConfidenceThreshold float64 `json:"confidence_threshold" validate:"omitempty,min=0,max=1"`
	DirectoryID         string  `json:"directory_id"`
}

// PageResult is the outcome for a single rendered page
type PageResult struct {
	PageNumber       int            `json:"page_number"`
	ImagePath        string         `json:"image_path,omitempty"`
	Width            int            `json:"width"`
	Height           int            `json:"height"`
	ExtractedText    string         `json:"extracted_text"`
	WordCount        int            `json:"word_count"`
	CharacterCount   int            `json:"character_count"`
	Confidence       float64        `json:"confidence"`
	Status           DocumentStatus `json:"status"`
	HasEmbeddedText  bool           `json:"has_embedded_text"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
}

// DocumentResult aggregates all pages of one document
type DocumentResult struct {
	FileID           string         `json:"file_id"`
	FileName         string         `json:"file_name"`
	Status           DocumentStatus `json:"status"`
	Pages            []PageResult   `json:"pages"`
	PageCount        int            `json:"page_count"`
	TotalWords       int            `json:"total_words"`
	TotalCharacters  int            `json:"total_characters"`
	Engine           string         `json:"engine"`
	HasEmbeddedText  bool           `json:"has_embedded_text"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
	Skipped          bool           `json:"skipped"`
}

// FileError records a per-file failure inside a batch
type FileError struct {
	FileID   string    `json:"file_id"`
	FileName string    `json:"file_name"`
	Error    string    `json:"error"`
	Status   string    `json:"status"`
	At       time.Time `json:"at"`
}

// LogEntry is a timestamped human-readable batch event
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// ProcessingStats aggregates batch-level totals. AverageProcessingTime seeds
// the initial ETA estimate before any file completes, then becomes the
// running mean.
type ProcessingStats struct {
	TotalPages            int     `json:"total_pages"`
	TotalWords            int     `json:"total_words"`
	TotalCharacters       int     `json:"total_characters"`
	TotalProcessingTime   float64 `json:"total_processing_time"`
	AverageProcessingTime float64 `json:"average_processing_time"`
}

// StatusSnapshot is the read-only view of a batch the API layer depends on
type StatusSnapshot struct {
	BatchID                string           `json:"batch_id"`
	Status                 BatchStatus      `json:"status"`
	IsPaused               bool             `json:"is_paused"`
	TotalFiles             int              `json:"total_files"`
	ProcessedCount         int              `json:"processed_count"`
	FailedCount            int              `json:"failed_count"`
	SkippedCount           int              `json:"skipped_count"`
	RemainingFiles         int              `json:"remaining_files"`
	CurrentFileIndex       int              `json:"current_file_index"`
	CurrentFile            *FileDescriptor  `json:"current_file,omitempty"`
	ProgressPercentage     float64          `json:"progress_percentage"`
	EstimatedTimeRemaining float64          `json:"estimated_time_remaining"`
	StartTime              *time.Time       `json:"start_time,omitempty"`
	ProcessingStats        ProcessingStats  `json:"processing_stats"`
	Results                []DocumentResult `json:"results"`
	Errors                 []FileError      `json:"errors"`
	Logs                   []LogEntry       `json:"logs"`
	Stuck                  bool             `json:"stuck,omitempty"`
}

// DocumentRecord is the persisted per-document row, keyed by file ID.
// PDFImagePath and OCRImagePath hold JSON-serialized ordered lists of
// per-page image paths; ThumbnailPath is the single first-page preview.
type DocumentRecord struct {
	FileID        string    `db:"file_id" json:"file_id"`
	DirectoryID   string    `db:"directory_id" json:"directory_id"`
	PDFText       string    `db:"pdf_text" json:"pdf_text"`
	OCRText       string    `db:"ocr_text" json:"ocr_text"`
	PDFImagePath  string    `db:"pdf_image_path" json:"pdf_image_path"`
	OCRImagePath  string    `db:"ocr_image_path" json:"ocr_image_path"`
	ThumbnailPath string    `db:"thumbnail_path" json:"thumbnail_path"`
	Metrics       Metrics   `db:"-" json:"metrics"`
	MetricsJSON   []byte    `db:"metrics" json:"-"`
	Status        string    `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Metrics is the structured metrics blob stored on a DocumentRecord
type Metrics struct {
	PageCount        int    `json:"page_count"`
	TotalWords       int    `json:"total_words"`
	TotalCharacters  int    `json:"total_characters"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
	Engine           string `json:"engine"`
	HasEmbeddedText  bool   `json:"has_embedded_text"`
}
