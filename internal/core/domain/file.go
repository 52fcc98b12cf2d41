package domain

import (
	"bytes"
	"mime"
	"path/filepath"
	"strings"
	"time"
)

// FileType is the upload-side name for the source format; it selects the extractor.
type FileType = SourceType

// FileStatus tracks a file through the ingestion state machine.
type FileStatus string

const (
	FileStatusPending    FileStatus = "pending"
	FileStatusProcessing FileStatus = "processing"
	FileStatusCompleted  FileStatus = "completed"
	FileStatusFailed     FileStatus = "failed"
	FileStatusExpired    FileStatus = "expired"
)

// MaxErrorMessageLength bounds the failure message persisted on a file.
const MaxErrorMessageLength = 500

// DefaultMaxFileSize is the upload limit (50MB).
const DefaultMaxFileSize int64 = 50 * 1024 * 1024

// MIMETypes maps accepted content types to file types.
var MIMETypes = map[string]FileType{
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         SourceTypeExcel,
	"application/vnd.ms-excel":                                                  SourceTypeExcel,
	"text/csv":                                                                  SourceTypeCSV,
	"application/pdf":                                                           SourceTypePDF,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   SourceTypeWord,
	"application/msword":                                                        SourceTypeWord,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": SourceTypePowerPoint,
	"application/vnd.ms-powerpoint":                                             SourceTypePowerPoint,
	"text/plain":                                                                SourceTypeText,
}

var extensionTypes = map[string]FileType{
	".xlsx": SourceTypeExcel,
	".xls":  SourceTypeExcel,
	".csv":  SourceTypeCSV,
	".pdf":  SourceTypePDF,
	".docx": SourceTypeWord,
	".doc":  SourceTypeWord,
	".pptx": SourceTypePowerPoint,
	".ppt":  SourceTypePowerPoint,
	".txt":  SourceTypeText,
}

// DetectFileType resolves the file type from the declared content type,
// falling back to the filename extension when the content type is missing
// or generic.
func DetectFileType(contentType, filename string) (FileType, bool) {
	if contentType != "" {
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
			if ft, ok := MIMETypes[strings.ToLower(mediaType)]; ok {
				return ft, true
			}
		}
	}
	ft, ok := extensionTypes[strings.ToLower(filepath.Ext(filename))]
	return ft, ok
}

// oleSignature starts every pre-2007 binary Office document (.xls, .doc, .ppt).
var oleSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// IsLegacyOffice reports whether data is a binary Office document. The Excel,
// Word and PowerPoint extractors only read the OOXML formats.
func IsLegacyOffice(ft FileType, data []byte) bool {
	switch ft {
	case SourceTypeExcel, SourceTypeWord, SourceTypePowerPoint:
		return bytes.HasPrefix(data, oleSignature)
	}
	return false
}

// File is an uploaded document and its processing state.
type File struct {
	ID               string            `json:"id"`
	OwnerID          string            `json:"owner_id"`
	ConversationID   string            `json:"conversation_id,omitempty"`
	Filename         string            `json:"filename"`
	FileType         FileType          `json:"file_type"`
	SizeBytes        int64             `json:"file_size_bytes"`
	BlobKey          string            `json:"blob_key"`
	Status           FileStatus        `json:"processing_status"`
	ErrorMessage     string            `json:"error_message,omitempty"`
	ChunkCount       int               `json:"chunk_count"`
	TemporalMetadata *TemporalMetadata `json:"temporal_metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	ProcessedAt      *time.Time        `json:"processed_at,omitempty"`
	ExpiresAt        time.Time         `json:"expires_at"`
}

// BlobKeyFor builds the storage key for an uploaded file.
func BlobKeyFor(ownerID, fileID, filename string) string {
	return ownerID + "/" + fileID + "/" + filepath.Base(filename)
}

// IsExpired reports whether the file is past its retention window.
func (f *File) IsExpired() bool {
	return time.Now().After(f.ExpiresAt)
}

// MarkProcessing moves the file into processing and clears any previous failure.
func (f *File) MarkProcessing() {
	f.Status = FileStatusProcessing
	f.ErrorMessage = ""
}

// MarkCompleted records a successful ingestion.
func (f *File) MarkCompleted(chunkCount int) {
	now := time.Now()
	f.Status = FileStatusCompleted
	f.ErrorMessage = ""
	f.ChunkCount = chunkCount
	f.ProcessedAt = &now
}

// MarkFailed records a failed ingestion with a truncated message.
func (f *File) MarkFailed(err error) {
	f.Status = FileStatusFailed
	f.ErrorMessage = TruncateMessage(err.Error(), MaxErrorMessageLength)
}

// TruncateMessage shortens s to at most max runes.
func TruncateMessage(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// UploadRequest carries one uploaded file into the ingestion surface.
type UploadRequest struct {
	OwnerID        string
	ConversationID string
	Filename       string
	ContentType    string
	Data           []byte
}

// IngestionResult summarizes one successful ingestion run.
type IngestionResult struct {
	FileID       string        `json:"file_id"`
	ChunkCount   int           `json:"chunk_count"`
	IndexedCount int           `json:"indexed_count"`
	AlertCount   int           `json:"alert_count"`
	Duration     time.Duration `json:"duration"`
}

// PurgeResult counts what one expiry sweep removed.
type PurgeResult struct {
	Documents bool `json:"documents_purged"`
	Blobs     int  `json:"blobs_deleted"`
	Files     int  `json:"files_expired"`
	Tasks     int  `json:"tasks_purged"`
}
