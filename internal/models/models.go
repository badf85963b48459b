package models

import "time"

// Image is one catalog entry, derived entirely from the filesystem at read
// time. Folder is "" for images stored directly under the upload root.
type Image struct {
	Filename   string    `json:"filename"`
	Folder     string    `json:"folder"`
	URL        string    `json:"url"`
	Size       int64     `json:"size"`
	UploadDate time.Time `json:"uploadDate"`
}

// UploadedFile is the per-file success record in an upload response.
type UploadedFile struct {
	Filename     string `json:"filename"`
	OriginalName string `json:"originalName"`
	URL          string `json:"url"`
	Size         int64  `json:"size"`
	Folder       string `json:"folder"`
}

// UploadError reports a single file that failed the save/move step without
// aborting the rest of the batch.
type UploadError struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// APIResponse is the envelope for every /api/* endpoint.
type APIResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message,omitempty"`
	Error   string        `json:"error,omitempty"`
	Data    any           `json:"data,omitempty"`
	Errors  []UploadError `json:"errors,omitempty"`
}
