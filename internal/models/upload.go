package models

// RejectionCode identifies which upload gate refused a file
type RejectionCode string

const (
	RejectInvalidExtension RejectionCode = "invalid_extension"
	RejectEmptyFile        RejectionCode = "empty_file"
	RejectTooLarge         RejectionCode = "file_too_large"
	RejectUnknownType      RejectionCode = "unknown_type"
	RejectTypeMismatch     RejectionCode = "type_mismatch"
	RejectUnreadable       RejectionCode = "unreadable"
)

// UploadOutcome is the result of validating an upload. Exactly one of
// SafeFilename (accepted) or Code/Reason (rejected) is set.
type UploadOutcome struct {
	SafeFilename string
	DetectedMIME string
	Code         RejectionCode
	Reason       string
}

// Accepted builds an outcome for a file that passed every gate
func Accepted(safeFilename, detectedMIME string) UploadOutcome {
	return UploadOutcome{SafeFilename: safeFilename, DetectedMIME: detectedMIME}
}

// Rejected builds an outcome for a refused file
func Rejected(code RejectionCode, reason string) UploadOutcome {
	return UploadOutcome{Code: code, Reason: reason}
}

// Valid reports whether the upload was accepted
func (o UploadOutcome) Valid() bool {
	return o.Code == ""
}
