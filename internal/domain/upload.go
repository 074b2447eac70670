package domain

import "time"

// UploadStatus is the lifecycle state of one tracked upload job.
type UploadStatus int

const (
	UploadPending UploadStatus = iota
	UploadProcessing
	UploadCompleted
	UploadFailed
)

func (s UploadStatus) String() string {
	switch s {
	case UploadPending:
		return "pending"
	case UploadProcessing:
		return "processing"
	case UploadCompleted:
		return "completed"
	case UploadFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status admits no further transitions.
func (s UploadStatus) Terminal() bool {
	return s == UploadCompleted || s == UploadFailed
}

// MarshalJSON renders the status in the lowercase wire form.
func (s UploadStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UploadJob is one tracked file transfer to the upload service.
// The gateway answers 202 at accept time; clients learn the outcome by
// polling the status endpoint, which reads this record.
type UploadJob struct {
	UploadID  string       `json:"upload_id"`
	Status    UploadStatus `json:"status"`
	FileName  string       `json:"file_name"`
	FileSize  int64        `json:"file_size"`
	Message   string       `json:"message,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
