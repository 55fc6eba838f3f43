package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"exam-gateway/internal/database"
	"exam-gateway/internal/exam"
	"exam-gateway/internal/pipeline"
	"exam-gateway/pkg/api"
)

const (
	hospitalIdHeader  = "Hospital-Id"
	hospitalKeyHeader = "Hospital-Key"

	defaultMaxBodyBytes = 32 << 20
)

type GatewayService struct {
	db           *gorm.DB
	pipeline     *pipeline.Pipeline
	maxBodyBytes int64
}

func NewGatewayService(db *gorm.DB, p *pipeline.Pipeline, maxBodyBytes int64) *GatewayService {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return &GatewayService{db: db, pipeline: p, maxBodyBytes: maxBodyBytes}
}

func (s *GatewayService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Route("/v1/exams", func(r chi.Router) {
		r.Post("/{exam_type}", RestHandler(s.SubmitExam))
	})
	r.Route("/v1/reconciliation", func(r chi.Router) {
		r.Get("/pending", RestHandler(s.ListPendingPublications))
	})
}

// SubmitExam accepts one raw exam payload and runs it through the full
// pipeline synchronously. A success response means the artifact is durable and
// its availability event was acknowledged.
func (s *GatewayService) SubmitExam(r *http.Request) (any, error) {
	hospitalId, err := authenticateHospital(r)
	if err != nil {
		return nil, err
	}

	examType, ok := exam.ParseExamType(chi.URLParam(r, "exam_type"))
	if !ok {
		return nil, CodedErrorf(http.StatusNotFound, "unknown exam type %q", chi.URLParam(r, "exam_type"))
	}

	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, s.maxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, CodedErrorf(http.StatusRequestEntityTooLarge, "request body exceeds %d bytes", s.maxBodyBytes)
		}
		return nil, CodedErrorf(http.StatusBadRequest, "unable to read request body")
	}

	receipt, err := s.pipeline.Process(r.Context(), exam.Submission{
		HospitalId:          hospitalId,
		ExamType:            examType,
		Raw:                 body,
		DeclaredContentType: r.Header.Get("Content-Type"),
	})
	if err != nil {
		return nil, err
	}

	return api.SubmitExamResponse{
		ExamId: receipt.ExamId,
		Bucket: receipt.Ref.Bucket,
		Key:    receipt.Ref.Key,
	}, nil
}

// ListPendingPublications reports exams that are stored but whose availability
// event has not been acknowledged yet.
func (s *GatewayService) ListPendingPublications(r *http.Request) (any, error) {
	pending, err := database.ListPendingPublications(r.Context(), s.db, 0)
	if err != nil {
		slog.Error("error listing pending publications", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error listing pending publications")
	}

	out := make([]api.PendingPublication, 0, len(pending))
	for _, p := range pending {
		out = append(out, api.PendingPublication{
			ExamId:       p.ExamId,
			Bucket:       p.Bucket,
			Key:          p.ObjectKey,
			Attempts:     p.Attempts,
			CreationTime: p.CreationTime,
		})
	}
	return out, nil
}

// authenticateHospital checks the submitting hospital's credential headers.
// The hospital id doubles as the tenant key for rate limiting and object
// layout, so its shape is enforced here rather than per exam type.
func authenticateHospital(r *http.Request) (string, error) {
	hospitalId := r.Header.Get(hospitalIdHeader)
	hospitalKey := r.Header.Get(hospitalKeyHeader)
	if hospitalId == "" || hospitalKey == "" {
		return "", CodedErrorf(http.StatusUnauthorized, "missing hospital credentials")
	}
	if !exam.IsHexDigest(hospitalId, 32) {
		return "", CodedErrorf(http.StatusUnauthorized, "invalid hospital id")
	}
	return hospitalId, nil
}
