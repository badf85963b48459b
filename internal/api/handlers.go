// Package api serves the API-key-gated programmatic surface. Every response
// uses the {success, message, data, errors} envelope.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jsb0315/image-server/internal/auth"
	"github.com/jsb0315/image-server/internal/config"
	"github.com/jsb0315/image-server/internal/models"
	"github.com/jsb0315/image-server/internal/storage"
	"github.com/jsb0315/image-server/internal/upload"
)

// DefaultFolder receives API uploads when no folder is named.
const DefaultFolder = "api-uploads"

const serverVersion = "1.0.0"

type Handlers struct {
	cfg     config.Config
	store   *storage.Store
	auth    *auth.Service
	uploads *upload.Processor
	logger  *slog.Logger
}

func NewHandlers(cfg config.Config, store *storage.Store, authSvc *auth.Service, uploads *upload.Processor, logger *slog.Logger) *Handlers {
	return &Handlers{
		cfg:     cfg,
		store:   store,
		auth:    authSvc,
		uploads: uploads,
		logger:  logger,
	}
}

// RequireAPIKey exposes the key gate for route wiring.
func (h *Handlers) RequireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return h.auth.RequireAPIKey(next)
}

// HandleUpload stores a multipart batch under the requested folder, or
// api-uploads by default.
func (h *Handlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxRequestBytes())
	if err := r.ParseMultipartForm(h.cfg.MaxFileSize + (1 << 20)); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid multipart form", "the request body could not be parsed")
		return
	}
	folder := r.FormValue("folder")
	if folder == "" {
		folder = DefaultFolder
	}

	files, uploadErrs, err := h.uploads.Process(r.MultipartForm, folder, baseURL(r))
	if err != nil {
		h.writeUploadFailure(w, err)
		return
	}
	if len(files) == 0 {
		h.writeJSON(w, http.StatusInternalServerError, models.APIResponse{
			Success: false,
			Error:   "all file uploads failed",
			Errors:  uploadErrs,
		})
		return
	}

	message := fmt.Sprintf("%d files uploaded", len(files))
	if len(uploadErrs) > 0 {
		message = fmt.Sprintf("%s, %d files failed", message, len(uploadErrs))
	}
	h.writeJSON(w, http.StatusOK, models.APIResponse{
		Success: true,
		Message: message,
		Data: map[string]any{
			"files": files,
			"count": len(files),
		},
		Errors: uploadErrs,
	})
}

// HandleUploadSingle is the one-file variant with a flatter payload.
func (h *Handlers) HandleUploadSingle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxRequestBytes())
	if err := r.ParseMultipartForm(h.cfg.MaxFileSize + (1 << 20)); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid multipart form", "the request body could not be parsed")
		return
	}
	folder := r.FormValue("folder")
	if folder == "" {
		folder = DefaultFolder
	}

	file, err := h.uploads.ProcessSingle(r.MultipartForm, folder, baseURL(r))
	if err != nil {
		h.writeUploadFailure(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, models.APIResponse{
		Success: true,
		Message: "file uploaded",
		Data:    file,
	})
}

// HandleImages lists a folder (api-uploads by default). A nonexistent
// folder yields an empty success payload rather than a 404, matching the
// historical API contract.
func (h *Handlers) HandleImages(w http.ResponseWriter, r *http.Request) {
	folder := r.URL.Query().Get("folder")
	if folder == "" {
		folder = DefaultFolder
	}

	entries, err := h.store.ListImages(folder)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		h.writeJSON(w, http.StatusOK, models.APIResponse{
			Success: true,
			Message: "folder does not exist",
			Data: map[string]any{
				"files":  []models.Image{},
				"count":  0,
				"folder": folder,
			},
		})
		return
	case errors.Is(err, storage.ErrBadName):
		h.writeError(w, http.StatusBadRequest, "invalid folder name", "folder must be a single path segment")
		return
	case err != nil:
		h.logger.Error("listing images failed", "folder", folder, "error", err)
		h.writeError(w, http.StatusInternalServerError, "unable to read directory", "the folder could not be scanned")
		return
	}

	base := baseURL(r)
	images := make([]models.Image, len(entries))
	for i, e := range entries {
		images[i] = models.Image{
			Filename:   e.Name,
			Folder:     e.Folder,
			URL:        upload.ImageURL(base, e.Folder, e.Name),
			Size:       e.Size,
			UploadDate: e.ModTime,
		}
	}
	h.writeJSON(w, http.StatusOK, models.APIResponse{
		Success: true,
		Message: fmt.Sprintf("found %d images", len(images)),
		Data: map[string]any{
			"files":  images,
			"count":  len(images),
			"folder": folder,
		},
	})
}

// HandleDelete removes one file from a folder.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	folder := r.PathValue("folder")
	filename := r.PathValue("filename")

	switch err := h.store.Delete(folder, filename); {
	case errors.Is(err, storage.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "File not found", "the file does not exist")
	case errors.Is(err, storage.ErrBadName):
		h.writeError(w, http.StatusBadRequest, "invalid name", "folder and filename must be single path segments")
	case err != nil:
		h.logger.Error("deleting file failed", "folder", folder, "file", filename, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to delete file", "an unexpected filesystem error occurred")
	default:
		h.writeJSON(w, http.StatusOK, models.APIResponse{
			Success: true,
			Message: "file deleted successfully",
			Data: map[string]any{
				"filename": filename,
				"folder":   folder,
			},
		})
	}
}

// HandleStatus reports health plus the limits a client needs to know.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, models.APIResponse{
		Success: true,
		Message: "API is operational",
		Data: map[string]any{
			"server":            "Image Upload Server",
			"version":           serverVersion,
			"timestamp":         time.Now().UTC().Format(time.RFC3339),
			"maxFileSize":       fmt.Sprintf("%dMB", h.cfg.MaxFileSizeMB()),
			"maxFiles":          h.cfg.MaxFilesPerUpload,
			"allowedExtensions": h.cfg.AllowedExtensions,
		},
	})
}

// HandleDocs serves the API usage guide. It is the only /api route without
// the key gate.
func (h *Handlers) HandleDocs(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"title":       "Image Upload Server API",
		"version":     serverVersion,
		"description": "Upload and manage images from external systems",
		"authentication": map[string]any{
			"type":   "API Key",
			"header": "x-api-key",
			"query":  "api_key",
			"note":   "Include 'x-api-key: YOUR_API_KEY' as a header or '?api_key=YOUR_API_KEY' as a query parameter.",
		},
		"endpoints": map[string]any{
			"POST /api/upload": map[string]any{
				"description": "Upload multiple images",
				"parameters": map[string]string{
					"image":  "files (multiple)",
					"folder": "folder name (optional, default: api-uploads)",
				},
				"example": "curl -X POST -H 'x-api-key: YOUR_API_KEY' -F 'image=@image1.jpg' -F 'image=@image2.png' -F 'folder=my-folder' http://localhost:31533/api/upload",
			},
			"POST /api/upload-single": map[string]any{
				"description": "Upload a single image",
				"parameters": map[string]string{
					"image":  "file",
					"folder": "folder name (optional, default: api-uploads)",
				},
				"example": "curl -X POST -H 'x-api-key: YOUR_API_KEY' -F 'image=@image.jpg' -F 'folder=my-folder' http://localhost:31533/api/upload-single",
			},
			"GET /api/images": map[string]any{
				"description": "List images in a folder",
				"parameters": map[string]string{
					"folder": "folder name (query parameter, default: api-uploads)",
				},
				"example": "curl -H 'x-api-key: YOUR_API_KEY' 'http://localhost:31533/api/images?folder=my-folder'",
			},
			"DELETE /api/images/:folder/:filename": map[string]any{
				"description": "Delete an image",
				"example":     "curl -X DELETE -H 'x-api-key: YOUR_API_KEY' http://localhost:31533/api/images/my-folder/image.jpg",
			},
			"GET /api/status": map[string]any{
				"description": "Check API status",
				"example":     "curl -H 'x-api-key: YOUR_API_KEY' http://localhost:31533/api/status",
			},
		},
		"response_format": map[string]any{
			"success": true,
			"message": "description",
			"data":    "response payload",
			"errors":  "error list (when present)",
		},
	})
}

// --- helpers ---

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, errMsg, message string) {
	h.writeJSON(w, status, models.APIResponse{
		Success: false,
		Error:   errMsg,
		Message: message,
	})
}

func (h *Handlers) writeUploadFailure(w http.ResponseWriter, err error) {
	var (
		tooMany  *upload.TooManyFilesError
		tooLarge *upload.FileTooLargeError
		filtered *upload.FilterError
	)
	switch {
	case errors.Is(err, upload.ErrNoFiles):
		h.writeError(w, http.StatusBadRequest, "No files uploaded", "nothing to upload")
	case errors.As(err, &tooMany), errors.As(err, &tooLarge):
		h.writeError(w, http.StatusBadRequest, err.Error(), "adjust the request and retry")
	case errors.As(err, &filtered):
		h.writeError(w, http.StatusInternalServerError, err.Error(), "the file was rejected by the type filter")
	default:
		h.writeError(w, http.StatusInternalServerError, err.Error(), "an unexpected error occurred")
	}
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
