// Package upload validates and stores multipart image batches. Validation
// failures (count, size, type filter) reject the whole request before
// anything touches disk; only the save/move step is tried per file.
package upload

import (
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/jsb0315/image-server/internal/config"
	"github.com/jsb0315/image-server/internal/models"
	"github.com/jsb0315/image-server/internal/sanitize"
	"github.com/jsb0315/image-server/internal/storage"
)

// FormField is the multipart field name carrying the image files.
const FormField = "image"

var ErrNoFiles = errors.New("no files uploaded")

type TooManyFilesError struct{ Max int }

func (e *TooManyFilesError) Error() string {
	return fmt.Sprintf("too many files (max %d)", e.Max)
}

type FileTooLargeError struct{ MaxMB int }

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("file too large (max %dMB)", e.MaxMB)
}

// FilterError marks a file rejected by the MIME/extension allow-lists. It
// surfaces as a generic 500 through the catch-all error path.
type FilterError struct{ Filename string }

func (e *FilterError) Error() string { return "file type not allowed" }

type Processor struct {
	cfg    config.Config
	store  *storage.Store
	logger *slog.Logger
}

func NewProcessor(cfg config.Config, store *storage.Store, logger *slog.Logger) *Processor {
	return &Processor{cfg: cfg, store: store, logger: logger}
}

// Process validates the whole batch, then saves each file under its
// sanitized name and moves it into folder when one is given. baseURL is
// "scheme://host" of the live request. Files that fail the save/move step
// are collected instead of aborting the batch.
func (p *Processor) Process(form *multipart.Form, folder, baseURL string) ([]models.UploadedFile, []models.UploadError, error) {
	fhs := form.File[FormField]
	if len(fhs) == 0 {
		return nil, nil, ErrNoFiles
	}
	if len(fhs) > p.cfg.MaxFilesPerUpload {
		return nil, nil, &TooManyFilesError{Max: p.cfg.MaxFilesPerUpload}
	}
	for _, fh := range fhs {
		if err := p.filter(fh); err != nil {
			return nil, nil, err
		}
		if fh.Size > p.cfg.MaxFileSize {
			return nil, nil, &FileTooLargeError{MaxMB: p.cfg.MaxFileSizeMB()}
		}
	}

	var (
		uploaded []models.UploadedFile
		failed   []models.UploadError
	)
	for _, fh := range fhs {
		file, err := p.save(fh, folder, baseURL)
		if err != nil {
			p.logger.Error("saving upload failed", "file", fh.Filename, "error", err)
			failed = append(failed, models.UploadError{
				Filename: fh.Filename,
				Error:    "failed to process file",
			})
			continue
		}
		uploaded = append(uploaded, file)
	}
	return uploaded, failed, nil
}

// ProcessSingle handles the one-file API variant.
func (p *Processor) ProcessSingle(form *multipart.Form, folder, baseURL string) (models.UploadedFile, error) {
	fhs := form.File[FormField]
	if len(fhs) == 0 {
		return models.UploadedFile{}, ErrNoFiles
	}
	fh := fhs[0]
	if err := p.filter(fh); err != nil {
		return models.UploadedFile{}, err
	}
	if fh.Size > p.cfg.MaxFileSize {
		return models.UploadedFile{}, &FileTooLargeError{MaxMB: p.cfg.MaxFileSizeMB()}
	}
	return p.save(fh, folder, baseURL)
}

// filter enforces both allow-lists: the declared MIME type and the
// extension of the original (unsanitized) filename must match.
func (p *Processor) filter(fh *multipart.FileHeader) error {
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	mimeType := fh.Header.Get("Content-Type")
	if !p.cfg.AllowedMIME(mimeType) || !p.cfg.AllowedExtension(ext) {
		return &FilterError{Filename: fh.Filename}
	}
	return nil
}

func (p *Processor) save(fh *multipart.FileHeader, folder, baseURL string) (models.UploadedFile, error) {
	name := sanitize.Filename(fh.Filename)

	src, err := fh.Open()
	if err != nil {
		return models.UploadedFile{}, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	size, err := p.store.SaveFile(name, src)
	if err != nil {
		return models.UploadedFile{}, err
	}
	if folder != "" {
		if err := p.store.MoveToFolder(name, folder); err != nil {
			return models.UploadedFile{}, err
		}
	}

	return models.UploadedFile{
		Filename:     name,
		OriginalName: fh.Filename,
		URL:          ImageURL(baseURL, folder, name),
		Size:         size,
		Folder:       folder,
	}, nil
}

// ImageURL builds the public URL for a stored image.
func ImageURL(baseURL, folder, name string) string {
	if folder == "" {
		return baseURL + "/images/" + name
	}
	return baseURL + "/images/" + folder + "/" + name
}
