// Package web serves the password-gated browser surface: the login flow,
// the management UI, and the JSON endpoints it calls.
package web

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jsb0315/image-server/internal/auth"
	"github.com/jsb0315/image-server/internal/config"
	"github.com/jsb0315/image-server/internal/models"
	"github.com/jsb0315/image-server/internal/storage"
	"github.com/jsb0315/image-server/internal/upload"
)

//go:embed templates/*.html
var templateFS embed.FS

type Handlers struct {
	cfg     config.Config
	store   *storage.Store
	auth    *auth.Service
	uploads *upload.Processor
	logger  *slog.Logger
	tmpl    *template.Template
}

func NewHandlers(cfg config.Config, store *storage.Store, authSvc *auth.Service, uploads *upload.Processor, logger *slog.Logger) (*Handlers, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Handlers{
		cfg:     cfg,
		store:   store,
		auth:    authSvc,
		uploads: uploads,
		logger:  logger,
		tmpl:    tmpl,
	}, nil
}

// RequireSession exposes the session gate for route wiring.
func (h *Handlers) RequireSession(next http.HandlerFunc) http.HandlerFunc {
	return h.auth.RequireSession(next)
}

// HandleLoginPage renders the login form. ?error=1 shows the bad-password
// banner after a failed attempt.
func (h *Handlers) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, "login.html", struct{ Error bool }{Error: r.URL.Query().Get("error") != ""})
}

// HandleAuth checks the submitted password and establishes the session.
func (h *Handlers) HandleAuth(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/login?error=1", http.StatusFound)
		return
	}
	if !h.auth.CheckPassword(r.FormValue("password")) {
		http.Redirect(w, r, "/login?error=1", http.StatusFound)
		return
	}
	if err := h.auth.SetSession(w, r); err != nil {
		h.logger.Error("saving session failed", "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *Handlers) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.ClearSession(w, r); err != nil {
		h.logger.Error("clearing session failed", "error", err)
	}
	http.Redirect(w, r, "/login", http.StatusFound)
}

// HandleIndex renders the management UI.
func (h *Handlers) HandleIndex(w http.ResponseWriter, r *http.Request) {
	h.render(w, "index.html", nil)
}

// HandleUpload stores a multipart batch, optionally relocating into the
// folder named by the form field.
func (h *Handlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxRequestBytes())
	if err := r.ParseMultipartForm(h.cfg.MaxFileSize + (1 << 20)); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	folder := r.FormValue("folder")
	files, uploadErrs, err := h.uploads.Process(r.MultipartForm, folder, baseURL(r))
	if err != nil {
		writeUploadFailure(w, err)
		return
	}
	if len(files) == 0 {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  "all file uploads failed",
			"errors": uploadErrs,
		})
		return
	}

	message := fmt.Sprintf("%d files uploaded", len(files))
	resp := map[string]any{"message": message, "files": files}
	if len(uploadErrs) > 0 {
		resp["message"] = fmt.Sprintf("%s, %d files failed", message, len(uploadErrs))
		resp["errors"] = uploadErrs
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) HandleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FolderName string `json:"folderName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.FolderName)
	if name == "" {
		writeError(w, http.StatusBadRequest, "folder name required")
		return
	}
	switch err := h.store.CreateFolder(name); {
	case errors.Is(err, storage.ErrExists):
		writeError(w, http.StatusBadRequest, "folder already exists")
	case errors.Is(err, storage.ErrBadName):
		writeError(w, http.StatusBadRequest, "invalid folder name")
	case err != nil:
		h.logger.Error("creating folder failed", "folder", name, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create folder")
	default:
		writeJSON(w, http.StatusOK, map[string]any{"message": "folder created", "folderName": name})
	}
}

func (h *Handlers) HandleFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := h.store.ListFolders()
	if err != nil {
		h.logger.Error("listing folders failed", "error", err)
		writeError(w, http.StatusInternalServerError, "unable to read directory")
		return
	}
	writeJSON(w, http.StatusOK, folders)
}

// HandleImagesList serves the root listing; HandleFolderImagesList serves a
// folder listing and 404s when the folder is missing.
func (h *Handlers) HandleImagesList(w http.ResponseWriter, r *http.Request) {
	h.listImages(w, r, "")
}

func (h *Handlers) HandleFolderImagesList(w http.ResponseWriter, r *http.Request) {
	h.listImages(w, r, r.PathValue("folder"))
}

func (h *Handlers) listImages(w http.ResponseWriter, r *http.Request, folder string) {
	entries, err := h.store.ListImages(folder)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "folder not found")
		return
	case errors.Is(err, storage.ErrBadName):
		writeError(w, http.StatusBadRequest, "invalid folder name")
		return
	case err != nil:
		h.logger.Error("listing images failed", "folder", folder, "error", err)
		writeError(w, http.StatusInternalServerError, "unable to read directory")
		return
	}
	writeJSON(w, http.StatusOK, toImages(entries, baseURL(r)))
}

func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	h.deleteImage(w, r, "", r.PathValue("filename"))
}

func (h *Handlers) HandleFolderDelete(w http.ResponseWriter, r *http.Request) {
	h.deleteImage(w, r, r.PathValue("folder"), r.PathValue("filename"))
}

func (h *Handlers) deleteImage(w http.ResponseWriter, r *http.Request, folder, filename string) {
	switch err := h.store.Delete(folder, filename); {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "file not found")
	case errors.Is(err, storage.ErrBadName):
		writeError(w, http.StatusBadRequest, "invalid name")
	case err != nil:
		h.logger.Error("deleting file failed", "folder", folder, "file", filename, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete file")
	default:
		writeJSON(w, http.StatusOK, map[string]any{"message": "file deleted successfully"})
	}
}

func (h *Handlers) HandleRename(w http.ResponseWriter, r *http.Request) {
	h.renameImage(w, r, "", r.PathValue("filename"))
}

func (h *Handlers) HandleFolderRename(w http.ResponseWriter, r *http.Request) {
	h.renameImage(w, r, r.PathValue("folder"), r.PathValue("filename"))
}

func (h *Handlers) renameImage(w http.ResponseWriter, r *http.Request, folder, filename string) {
	var req struct {
		NewName string `json:"newName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	newName := strings.TrimSpace(req.NewName)
	if newName == "" {
		writeError(w, http.StatusBadRequest, "new file name required")
		return
	}
	switch err := h.store.Rename(folder, filename, newName); {
	case errors.Is(err, storage.ErrExists):
		writeError(w, http.StatusBadRequest, "file name already exists")
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "file not found")
	case errors.Is(err, storage.ErrBadName):
		writeError(w, http.StatusBadRequest, "invalid file name")
	case err != nil:
		h.logger.Error("renaming file failed", "folder", folder, "file", filename, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to rename file")
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "file renamed",
			"newUrl":  upload.ImageURL(baseURL(r), folder, newName),
			"newName": newName,
		})
	}
}

func (h *Handlers) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.tmpl.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error("template execution failed", "template", name, "error", err)
	}
}

// --- helpers ---

func toImages(entries []storage.Entry, base string) []models.Image {
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
	return images
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeUploadFailure maps batch-level upload errors onto the web error
// shape. Filter rejections surface as a 500 because they abort the whole
// multipart parse, not a single file.
func writeUploadFailure(w http.ResponseWriter, err error) {
	var (
		tooMany  *upload.TooManyFilesError
		tooLarge *upload.FileTooLargeError
		filtered *upload.FilterError
	)
	switch {
	case errors.Is(err, upload.ErrNoFiles):
		writeError(w, http.StatusBadRequest, "No files uploaded")
	case errors.As(err, &tooMany), errors.As(err, &tooLarge):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &filtered):
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
