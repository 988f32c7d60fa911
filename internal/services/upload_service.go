package services

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/BradenHooton/covernote/internal/models"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const (
	// MaxUploadSize is inclusive: a file of exactly this size is accepted
	MaxUploadSize int64 = 10 * 1024 * 1024

	// sniffLength matches mimetype's default read limit
	sniffLength = 3072
)

// allowedUploadTypes maps each accepted extension to the MIME types its content may sniff as
var allowedUploadTypes = map[string][]string{
	"jpg":  {"image/jpeg"},
	"jpeg": {"image/jpeg"},
	"png":  {"image/png"},
	"pdf":  {"application/pdf"},
	"xlsx": {
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/vnd.ms-excel",
		"application/zip",
	},
}

// allowedExtensionList is the human readable allowed set, in display order
const allowedExtensionList = "jpg, jpeg, png, pdf, xlsx"

// UploadValidator checks uploads before they reach storage. It holds no
// mutable state and is safe for concurrent use.
type UploadValidator struct {
	logger *slog.Logger
}

// NewUploadValidator creates a new UploadValidator
func NewUploadValidator(logger *slog.Logger) *UploadValidator {
	return &UploadValidator{logger: logger}
}

// ValidateFile runs the extension, size and content gates in that order and
// stops at the first failure. Rejections are reported in the outcome; the
// error is non-nil only when the content could not be read, in which case the
// outcome is also an "unreadable" rejection.
//
// The client-declared content type is never consulted. content is returned to
// its original offset after sniffing.
func (v *UploadValidator) ValidateFile(filename string, size int64, content io.ReadSeeker) (models.UploadOutcome, error) {
	ext, ok := fileExtension(filename)
	if !ok {
		return models.Rejected(models.RejectInvalidExtension,
			fmt.Sprintf("File type not allowed. Allowed types: %s", allowedExtensionList)), nil
	}
	accepted, ok := allowedUploadTypes[ext]
	if !ok {
		return models.Rejected(models.RejectInvalidExtension,
			fmt.Sprintf("File type not allowed. Allowed types: %s", allowedExtensionList)), nil
	}

	if size == 0 {
		return models.Rejected(models.RejectEmptyFile, "File cannot be empty"), nil
	}
	if size < 0 || size > MaxUploadSize {
		return models.Rejected(models.RejectTooLarge,
			fmt.Sprintf("File exceeds maximum size of %d MB", MaxUploadSize/(1024*1024))), nil
	}

	detected, err := sniff(content)
	if err != nil {
		v.logger.Error("failed to read upload content for type detection",
			slog.String("extension", ext),
			slog.Int64("size", size),
			slog.Any("error", err))
		return models.Rejected(models.RejectUnreadable, "Could not verify file type"),
			fmt.Errorf("%w: %v", models.ErrUploadUnreadable, err)
	}

	if detected == nil || detected.Is("application/octet-stream") {
		return models.Rejected(models.RejectUnknownType, "Could not determine file type"), nil
	}

	if !mimeAccepted(detected, accepted) {
		return models.Rejected(models.RejectTypeMismatch,
			fmt.Sprintf("File content does not match its extension: expected %s, detected %s",
				strings.Join(accepted, " or "), detected.String())), nil
	}

	return models.Accepted(GenerateSafeFilename(filename), detected.String()), nil
}

// GenerateSafeFilename returns a fresh random name that keeps only the
// (lower-cased) extension of original. The random part never contains the
// original base name.
func GenerateSafeFilename(original string) string {
	base := original
	ext, hasExt := fileExtension(original)
	if hasExt {
		base = original[:strings.LastIndex(original, ".")]
	}
	base = strings.ToLower(base)

	name := randomName()
	for base != "" && strings.Contains(name, base) {
		name = randomName()
	}

	if hasExt {
		return name + "." + ext
	}
	return name
}

func randomName() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// fileExtension returns the lower-cased text after the last dot. A name that
// is only an extension, like ".png", has none.
func fileExtension(filename string) (string, bool) {
	idx := strings.LastIndex(filename, ".")
	if idx <= 0 || idx == len(filename)-1 {
		return "", false
	}
	return strings.ToLower(filename[idx+1:]), true
}

// sniff detects the content type from the leading bytes and seeks back.
// A nil MIME means there was no content to inspect.
func sniff(content io.ReadSeeker) (*mimetype.MIME, error) {
	start, err := content.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("seek: %w", err)
	}

	buf := make([]byte, sniffLength)
	n, err := io.ReadFull(content, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("read: %w", err)
	}

	if _, err := content.Seek(start, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind: %w", err)
	}

	if n == 0 {
		return nil, nil
	}
	return mimetype.Detect(buf[:n]), nil
}

// mimeAccepted matches the detected type against the accepted list. Subtypes
// of the extension's primary type (accepted[0]) also match, so an animated
// PNG passes as image/png while a docx does not pass as a bare zip.
func mimeAccepted(detected *mimetype.MIME, accepted []string) bool {
	for _, m := range accepted {
		if detected.Is(m) {
			return true
		}
	}
	for parent := detected.Parent(); parent != nil; parent = parent.Parent() {
		if parent.Is("application/octet-stream") {
			break
		}
		if parent.Is(accepted[0]) {
			return true
		}
	}
	return false
}
