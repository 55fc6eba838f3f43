package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	backend "exam-gateway/internal/api"
	"exam-gateway/internal/database"
	"exam-gateway/internal/exam"
	"exam-gateway/internal/exam/ecg"
	"exam-gateway/internal/exam/xray"
	"exam-gateway/internal/messaging"
	"exam-gateway/internal/pipeline"
	"exam-gateway/internal/ratelimit"
	"exam-gateway/internal/scanner"
	"exam-gateway/internal/storage"
	"exam-gateway/pkg/api"
)

const testHospitalId = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

type cleanScanner struct{}

func (cleanScanner) Scan(ctx context.Context, data []byte) scanner.Result {
	return scanner.Result{Verdict: scanner.VerdictClean}
}

func createDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.GetMigrator(db).Migrate())
	return db
}

func createRouter(t *testing.T, quota int) (*chi.Mux, *gorm.DB) {
	db := createDB(t)

	registry := exam.NewRegistry()
	registry.Register(exam.TypeXray, xray.NewValidator(xray.DefaultValidatorConfig()), xray.NewTransformer(xray.DefaultTransformerConfig()))
	registry.Register(exam.TypeEcg, ecg.NewValidator(ecg.DefaultValidatorConfig()), ecg.NewTransformer(ecg.DefaultTransformerConfig()))

	p := pipeline.New(
		ratelimit.NewHospitalLimiter(ratelimit.Config{Quota: quota, Window: time.Minute}),
		cleanScanner{},
		registry,
		storage.NewMemoryObjectStore(),
		messaging.NewInMemoryQueue(),
		db,
		pipeline.Config{Bucket: "exams", MaxInfraRetries: 1, RetryInitialBackoff: time.Millisecond},
	)

	router := chi.NewRouter()
	backend.NewGatewayService(db, p, 0).AddRoutes(router)
	return router, db
}

func submit(router http.Handler, examType, contentType string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/exams/"+examType, bytes.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func hospitalHeaders() map[string]string {
	return map[string]string{
		"Hospital-Id":  testHospitalId,
		"Hospital-Key": "secret",
	}
}

func ecgBody(t *testing.T) []byte {
	leads := make([]api.EcgLead, 0, 10)
	for i := 0; i < 10; i++ {
		samples := make([]float32, 5000)
		samples[0] = 0.5
		leads = append(leads, api.EcgLead{Name: fmt.Sprintf("lead_%d", i), Samples: samples})
	}
	body, err := json.Marshal(api.EcgPayload{
		PatientId:       strings.Repeat("b", 64),
		SampleRateHz:    500,
		DurationSeconds: 10,
		LeadCount:       10,
		Leads:           leads,
	})
	require.NoError(t, err)
	return body
}

func TestHealth(t *testing.T) {
	router, _ := createRouter(t, 100)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSubmitEcg(t *testing.T) {
	router, db := createRouter(t, 100)

	w := submit(router, "ecg", "application/json", ecgBody(t), hospitalHeaders())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res api.SubmitExamResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.NotEqual(t, uuid.Nil, res.ExamId)
	assert.Equal(t, "exams", res.Bucket)
	assert.True(t, strings.HasPrefix(res.Key, "ecg/"+testHospitalId+"/"))

	var record database.Exam
	require.NoError(t, db.First(&record, "id = ?", res.ExamId).Error)
	assert.Equal(t, database.ExamCompleted, record.Status)
}

func TestSubmitRequiresCredentials(t *testing.T) {
	router, _ := createRouter(t, 100)

	w := submit(router, "ecg", "application/json", ecgBody(t), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = submit(router, "ecg", "application/json", ecgBody(t), map[string]string{
		"Hospital-Id":  "not-a-digest",
		"Hospital-Key": "secret",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSubmitUnknownExamType(t *testing.T) {
	router, _ := createRouter(t, 100)

	w := submit(router, "dental", "application/json", ecgBody(t), hospitalHeaders())
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmitReservedExamType(t *testing.T) {
	router, _ := createRouter(t, 100)

	w := submit(router, "ct", "application/octet-stream", []byte("scan"), hospitalHeaders())
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	var res api.Error
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "unsupported-exam-type", res.ReasonCode)
}

func TestSubmitRejectionBody(t *testing.T) {
	router, _ := createRouter(t, 100)

	w := submit(router, "xray", "image/png", []byte("not an image"), hospitalHeaders())
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var res api.Error
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "validation", res.Stage)
	assert.Equal(t, "validation-failed", res.ReasonCode)
	assert.NotEmpty(t, res.Message)
}

func TestSubmitRateLimited(t *testing.T) {
	router, _ := createRouter(t, 1)

	w := submit(router, "ecg", "application/json", ecgBody(t), hospitalHeaders())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = submit(router, "ecg", "application/json", ecgBody(t), hospitalHeaders())
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	var res api.Error
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "admission", res.Stage)
	assert.Equal(t, "admission-denied", res.ReasonCode)
}

func TestSubmitBodyTooLarge(t *testing.T) {
	db := createDB(t)
	p := pipeline.New(
		ratelimit.NewHospitalLimiter(ratelimit.Config{Quota: 100, Window: time.Minute}),
		cleanScanner{},
		exam.NewRegistry(),
		storage.NewMemoryObjectStore(),
		messaging.NewInMemoryQueue(),
		db,
		pipeline.Config{Bucket: "exams"},
	)
	router := chi.NewRouter()
	backend.NewGatewayService(db, p, 16).AddRoutes(router)

	w := submit(router, "ecg", "application/json", make([]byte, 64), hospitalHeaders())
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

type brokenBody struct{}

func (brokenBody) Read(p []byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestSubmitBodyReadFailure(t *testing.T) {
	router, _ := createRouter(t, 100)

	req := httptest.NewRequest(http.MethodPost, "/v1/exams/ecg", brokenBody{})
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hospitalHeaders() {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// A client that dies mid-body is their error, not an oversized payload.
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListPendingPublications(t *testing.T) {
	router, db := createRouter(t, 100)

	examId := uuid.New()
	require.NoError(t, db.Create(&database.Exam{
		Id:           examId,
		HospitalId:   testHospitalId,
		ExamType:     "ecg",
		Status:       database.ExamStoredNotPublished,
		Bucket:       "exams",
		ObjectKey:    "ecg/key",
		CreationTime: time.Now().UTC(),
	}).Error)
	require.NoError(t, db.Create(&database.PendingPublication{
		ExamId:       examId,
		Bucket:       "exams",
		ObjectKey:    "ecg/key",
		Event:        datatypes.JSON([]byte(`{}`)),
		Attempts:     2,
		CreationTime: time.Now().UTC(),
	}).Error)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/reconciliation/pending", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var res []api.PendingPublication
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res, 1)
	assert.Equal(t, examId, res[0].ExamId)
	assert.Equal(t, "ecg/key", res[0].Key)
	assert.Equal(t, 2, res[0].Attempts)
}
