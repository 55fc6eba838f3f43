package exam

import (
	"crypto/sha256"
	"encoding/hex"
)

// ExamType is the closed set of exam modalities the gateway knows about.
// Types without a registered validator and transformer are rejected, so the
// reserved variants are safe to accept on the wire before they are built out.
type ExamType string

const (
	TypeXray ExamType = "xray"
	TypeEcg  ExamType = "ecg"

	// Reserved for future modalities, no handlers registered yet.
	TypeCt         ExamType = "ct"
	TypeMri        ExamType = "mri"
	TypeUltrasound ExamType = "ultrasound"
)

func ParseExamType(s string) (ExamType, bool) {
	switch ExamType(s) {
	case TypeXray, TypeEcg, TypeCt, TypeMri, TypeUltrasound:
		return ExamType(s), true
	default:
		return "", false
	}
}

// Submission is one inbound exam request. It is immutable once constructed
// and owned by a single pipeline invocation; the raw payload is never
// persisted past the end of that invocation.
type Submission struct {
	HospitalId          string
	ExamType            ExamType
	Raw                 []byte
	DeclaredContentType string
}

// ValidatedPayload is the exam-type-specific decoded structure produced by a
// validator. Transformers type-assert to their own payload type.
type ValidatedPayload interface {
	ExamType() ExamType
}

// CanonicalArtifact is the storage-ready encoding of an exam. Bytes are
// deterministic for identical validated payloads.
type CanonicalArtifact struct {
	Data        []byte
	Format      string
	ContentType string
	SizeBytes   int64
	Checksum    string
}

func NewArtifact(data []byte, format, contentType string) CanonicalArtifact {
	sum := sha256.Sum256(data)
	return CanonicalArtifact{
		Data:        data,
		Format:      format,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
		Checksum:    hex.EncodeToString(sum[:]),
	}
}

// StorageReference points at a durably written artifact.
type StorageReference struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

type Validator interface {
	// Validate decodes and checks the raw payload. It is pure: no I/O, no
	// retained references to the submission.
	Validate(sub Submission) (ValidatedPayload, error)
}

type Transformer interface {
	Transform(payload ValidatedPayload) (CanonicalArtifact, error)
}

// IsHexDigest reports whether s is a lowercase-insensitive hex string of the
// given byte length, e.g. IsHexDigest(id, 32) for a sha256 digest.
func IsHexDigest(s string, bytes int) bool {
	if len(s) != bytes*2 {
		return false
	}
	if _, err := hex.DecodeString(s); err != nil {
		return false
	}
	return true
}
