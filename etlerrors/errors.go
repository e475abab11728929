package etlerrors

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline error so the runner can decide whether to skip a
// file, degrade to a full reload, or abort the pipeline.
type Kind int

const (
	// KindFileRead marks an unreadable or malformed source file. Recoverable:
	// the file is skipped and the batch continues.
	KindFileRead Kind = iota
	// KindBadSchema marks a source file missing an expected column. Recoverable
	// per file.
	KindBadSchema
	// KindWatermark marks a missing or corrupt watermark snapshot. Recoverable
	// per run: the caller degrades to a full reload.
	KindWatermark
	// KindFileLocked marks a destination snapshot held open by another program
	// (typically the reporting tool). Fatal for the pipeline run.
	KindFileLocked
	// KindPersist marks any other failure while writing the snapshot. Fatal for
	// the pipeline run.
	KindPersist
	// KindAmbiguousPeriod marks a filename that matches more than one period
	// convention. Recoverable per file.
	KindAmbiguousPeriod
)

// String returns the kind tag used in logs.
func (k Kind) String() string {
	switch k {
	case KindFileRead:
		return "file_read"
	case KindBadSchema:
		return "bad_schema"
	case KindWatermark:
		return "watermark"
	case KindFileLocked:
		return "file_locked"
	case KindPersist:
		return "persist"
	case KindAmbiguousPeriod:
		return "ambiguous_period"
	default:
		return "unknown"
	}
}

// PipelineError is the error type carried through the engine. It tags the
// failure with a Kind so callers can branch on error class instead of matching
// message text.
type PipelineError struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped cause for errors.Is and errors.As.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is matches two pipeline errors by Kind.
func (e *PipelineError) Is(target error) bool {
	var pe *PipelineError
	if errors.As(target, &pe) {
		return pe.Kind == e.Kind
	}
	return false
}

// NewFileReadError creates a recoverable per-file read error.
func NewFileReadError(message string, err error) *PipelineError {
	return &PipelineError{Kind: KindFileRead, Message: message, Err: err}
}

// NewBadSchemaError creates a recoverable missing-column error.
func NewBadSchemaError(message string, err error) *PipelineError {
	return &PipelineError{Kind: KindBadSchema, Message: message, Err: err}
}

// NewWatermarkError creates a recoverable watermark-detection error.
func NewWatermarkError(message string, err error) *PipelineError {
	return &PipelineError{Kind: KindWatermark, Message: message, Err: err}
}

// NewFileLockedError creates the distinct "file locked by another program"
// error. It must never be reported as a generic I/O failure.
func NewFileLockedError(path string, err error) *PipelineError {
	return &PipelineError{
		Kind:    KindFileLocked,
		Message: fmt.Sprintf("destination %s is locked by another program, close it and re-run", path),
		Err:     err,
	}
}

// NewPersistError creates a fatal snapshot-write error.
func NewPersistError(message string, err error) *PipelineError {
	return &PipelineError{Kind: KindPersist, Message: message, Err: err}
}

// NewAmbiguousPeriodError flags a filename matching more than one period
// convention.
func NewAmbiguousPeriodError(filename string) *PipelineError {
	return &PipelineError{
		Kind:    KindAmbiguousPeriod,
		Message: fmt.Sprintf("filename %q matches more than one period convention", filename),
	}
}

// KindOf extracts the Kind of err, or -1 when err is not a PipelineError.
func KindOf(err error) Kind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return Kind(-1)
}

// IsKind reports whether err is a PipelineError of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
