package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/BradenHooton/covernote/internal/auth"
	"github.com/BradenHooton/covernote/internal/models"
	"github.com/BradenHooton/covernote/internal/services"
	pkghttp "github.com/BradenHooton/covernote/pkg/http"
	pkglogger "github.com/BradenHooton/covernote/pkg/logger"
)

const (
	// uploadFormField is the multipart field carrying the file
	uploadFormField = "file"

	// multipartOverhead leaves room for boundaries and part headers on top of the file
	multipartOverhead int64 = 1024 * 1024

	// maxUploadMemory is how much of a multipart body is buffered before spilling to disk
	maxUploadMemory int64 = 2 * 1024 * 1024
)

// UploadValidatorInterface defines the upload checks run before storage
type UploadValidatorInterface interface {
	ValidateFile(filename string, size int64, content io.ReadSeeker) (models.UploadOutcome, error)
}

// FileStore persists accepted uploads under a server-chosen name
type FileStore interface {
	Save(name string, r io.Reader) (int64, error)
}

// UploadHandler handles document uploads
type UploadHandler struct {
	validator   UploadValidatorInterface
	store       FileStore
	ipConfig    *pkghttp.IPConfig
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewUploadHandler creates a new UploadHandler
func NewUploadHandler(validator UploadValidatorInterface, store FileStore, ipConfig *pkghttp.IPConfig, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *UploadHandler {
	return &UploadHandler{
		validator:   validator,
		store:       store,
		ipConfig:    ipConfig,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// UploadResponse describes a stored upload
type UploadResponse struct {
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// Upload handles a multipart file upload
// @Summary Upload a document
// @Accept multipart/form-data
// @Param file formData file true "Document (jpg, jpeg, png, pdf, xlsx)"
// @Produce json
// @Success 201 {object} UploadResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 413 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /uploads [post]
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, services.MaxUploadSize+multipartOverhead)

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			pkghttp.WriteError(w, http.StatusRequestEntityTooLarge, string(models.RejectTooLarge),
				"File exceeds maximum size of "+strconv.FormatInt(services.MaxUploadSize/(1024*1024), 10)+" MB")
			return
		}
		pkghttp.WriteBadRequest(w, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(uploadFormField)
	if err != nil {
		pkghttp.WriteBadRequest(w, "Missing file field")
		return
	}
	defer file.Close()

	event := pkglogger.AuditEvent{
		EventType: "document_upload",
		IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent: r.Header.Get("User-Agent"),
	}
	if claims := auth.GetUserFromContext(r); claims != nil {
		event.Username = claims.Username
	}

	outcome, err := h.validator.ValidateFile(header.Filename, header.Size, file)
	if err != nil {
		event.FailureReason = string(models.RejectUnreadable)
		h.auditLogger.LogUpload(event)
		pkghttp.WriteError(w, http.StatusBadRequest, string(models.RejectUnreadable), "Could not verify file type")
		return
	}
	if !outcome.Valid() {
		event.FailureReason = string(outcome.Code)
		h.auditLogger.LogUpload(event)
		pkghttp.WriteError(w, http.StatusBadRequest, string(outcome.Code), outcome.Reason)
		return
	}

	written, err := h.store.Save(outcome.SafeFilename, file)
	if err != nil {
		h.logger.Error("failed to store upload",
			slog.String("stored_name", outcome.SafeFilename),
			slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	event.Success = true
	event.Metadata = map[string]string{
		"stored_name":  outcome.SafeFilename,
		"content_type": outcome.DetectedMIME,
		"size":         strconv.FormatInt(written, 10),
	}
	h.auditLogger.LogUpload(event)

	pkghttp.WriteJSON(w, http.StatusCreated, UploadResponse{
		Filename:    outcome.SafeFilename,
		Size:        written,
		ContentType: outcome.DetectedMIME,
	})
}
