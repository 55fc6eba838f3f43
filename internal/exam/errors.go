package exam

import "fmt"

// Stage identifies the pipeline stage a rejection came from.
type Stage string

const (
	StageAdmission  Stage = "admission"
	StageScan       Stage = "scan"
	StageValidation Stage = "validation"
	StageTransform  Stage = "transform"
	StageStorage    Stage = "storage"
	StagePublish    Stage = "publish"
)

// Code is the client-visible, transport-independent reason code.
type Code string

const (
	CodeAdmissionDenied      Code = "admission-denied"
	CodeContentUnsafe        Code = "content-unsafe"
	CodeScanUnavailable      Code = "scan-unavailable"
	CodeUnsupportedExamType  Code = "unsupported-exam-type"
	CodeValidationFailed     Code = "validation-failed"
	CodeTransformationFailed Code = "transformation-failed"
	CodeStorageFailure       Code = "storage-failure"
	CodePublishFailure       Code = "publish-failure"
	CodeStoredNotPublished   Code = "stored-not-published"
)

// PipelineError is the terminal outcome of a rejected invocation. Reason
// carries the machine-readable detail (e.g. "spoofed-content-type"). It never
// holds raw payload bytes.
type PipelineError struct {
	Stage  Stage
	Code   Code
	Reason string
	Err    error
}

func (e *PipelineError) Error() string {
	msg := fmt.Sprintf("%s rejected: %s", e.Stage, e.Code)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func Reject(stage Stage, code Code, reason string) *PipelineError {
	return &PipelineError{Stage: stage, Code: code, Reason: reason}
}

func RejectErr(stage Stage, code Code, reason string, err error) *PipelineError {
	return &PipelineError{Stage: stage, Code: code, Reason: reason, Err: err}
}

// ValidationError is returned by validators; the pipeline wraps it into a
// PipelineError with CodeValidationFailed.
type ValidationError struct {
	Reason string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return e.Reason
	}
	return e.Reason + ": " + e.Detail
}

func Invalid(reason, format string, args ...any) *ValidationError {
	return &ValidationError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// TransformError is returned by transformers for payloads that validated but
// cannot be converted (unsupported color depth, numeric overflow, ...).
type TransformError struct {
	Reason string
	Detail string
}

func (e *TransformError) Error() string {
	if e.Detail == "" {
		return e.Reason
	}
	return e.Reason + ": " + e.Detail
}

func Untransformable(reason, format string, args ...any) *TransformError {
	return &TransformError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}
