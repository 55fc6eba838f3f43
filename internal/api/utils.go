package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"exam-gateway/internal/exam"
	"exam-gateway/pkg/api"
)

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(code int, err error) error {
	return &codedError{err: err, code: code}
}

func CodedErrorf(code int, format string, args ...any) error {
	return &codedError{err: fmt.Errorf(format, args...), code: code}
}

// RestHandler adapts a handler returning (result, error) into an http.HandlerFunc.
// Pipeline rejections become structured error bodies with a stage and reason
// code; everything else is reported as a coded or internal error.
func RestHandler(handler func(r *http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := handler(r)
		if err != nil {
			var perr *exam.PipelineError
			var cerr *codedError
			switch {
			case errors.As(err, &perr):
				writeErrorResponse(w, statusForCode(perr.Code), api.Error{
					Stage:      string(perr.Stage),
					ReasonCode: string(perr.Code),
					Message:    rejectionMessage(perr),
				})
			case errors.As(err, &cerr):
				if cerr.code == http.StatusInternalServerError {
					slog.Error("internal server error received in endpoint", "error", err)
				}
				writeErrorResponse(w, cerr.code, api.Error{
					ReasonCode: "request-error",
					Message:    err.Error(),
				})
			default:
				slog.Error("received non coded error from endpoint", "error", err)
				writeErrorResponse(w, http.StatusInternalServerError, api.Error{
					ReasonCode: "internal-error",
					Message:    "internal server error",
				})
			}
			return
		}

		if res == nil {
			res = struct{}{}
		}

		WriteJsonResponse(w, res)
	}
}

// statusForCode maps transport-independent reason codes onto HTTP statuses.
func statusForCode(code exam.Code) int {
	switch code {
	case exam.CodeAdmissionDenied:
		return http.StatusTooManyRequests
	case exam.CodeScanUnavailable:
		return http.StatusServiceUnavailable
	case exam.CodeUnsupportedExamType:
		return http.StatusUnsupportedMediaType
	case exam.CodeContentUnsafe, exam.CodeValidationFailed, exam.CodeTransformationFailed:
		return http.StatusUnprocessableEntity
	case exam.CodeStorageFailure, exam.CodePublishFailure, exam.CodeStoredNotPublished:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// rejectionMessage builds the client-facing message without leaking wrapped
// infrastructure errors.
func rejectionMessage(perr *exam.PipelineError) string {
	if perr.Reason != "" {
		return perr.Reason
	}
	return string(perr.Code)
}

func writeErrorResponse(w http.ResponseWriter, status int, body api.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("error serializing error response", "error", err)
	}
}

func WriteJsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	err := json.NewEncoder(w).Encode(data)
	if err != nil {
		slog.Error("error serializing response body", "error", err)
		http.Error(w, fmt.Sprintf("error serializing response body: %v", err), http.StatusInternalServerError)
	}
}
