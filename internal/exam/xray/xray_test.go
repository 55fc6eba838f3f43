package xray

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exam-gateway/internal/exam"
)

func encodePNG(t *testing.T, w, h int) []byte {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x + y) % 256)})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	img := image.NewGray(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func submission(raw []byte, contentType string) exam.Submission {
	return exam.Submission{
		HospitalId:          "b1b1b1",
		ExamType:            exam.TypeXray,
		Raw:                 raw,
		DeclaredContentType: contentType,
	}
}

func TestValidateAcceptsFrontalPNG(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())

	payload, err := v.Validate(submission(encodePNG(t, 512, 512), "image/png"))
	require.NoError(t, err)

	p := payload.(*Payload)
	assert.Equal(t, "png", p.Format)
	assert.Equal(t, 512, p.Width)
	assert.Equal(t, exam.TypeXray, p.ExamType())
}

func TestValidateRejectsSpoofedContentType(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())

	// JPEG bytes declared as PNG must fail the signature check.
	_, err := v.Validate(submission(encodeJPEG(t, 512, 512), "image/png"))
	require.Error(t, err)

	var verr *exam.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "spoofed-content-type", verr.Reason)
}

func TestValidateRejectsNonImage(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())

	_, err := v.Validate(submission([]byte("definitely not an image"), ""))
	var verr *exam.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "undecodable-image", verr.Reason)
}

func TestValidateRejectsUnsupportedDeclaredFormat(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())

	_, err := v.Validate(submission(encodePNG(t, 512, 512), "image/tiff"))
	var verr *exam.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "unsupported-format", verr.Reason)
}

func TestValidateRejectsTooSmall(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())

	_, err := v.Validate(submission(encodePNG(t, 64, 64), "image/png"))
	var verr *exam.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "image-too-small", verr.Reason)
}

func TestValidateRejectsBadOrientation(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())

	// A wide strip is not a plausible frontal view.
	_, err := v.Validate(submission(encodePNG(t, 2048, 300), "image/png"))
	var verr *exam.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "orientation-check-failed", verr.Reason)
}

func TestTransformDeterministic(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())
	tr := NewTransformer(TransformerConfig{TargetWidth: 256, TargetHeight: 256})

	payload, err := v.Validate(submission(encodePNG(t, 512, 640), "image/png"))
	require.NoError(t, err)

	first, err := tr.Transform(payload)
	require.NoError(t, err)
	second, err := tr.Transform(payload)
	require.NoError(t, err)

	assert.Equal(t, first.Checksum, second.Checksum)
	assert.Equal(t, first.Data, second.Data)
	assert.Equal(t, int64(len(first.Data)), first.SizeBytes)
}

func TestTransformRoundTripDimensions(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())
	tr := NewTransformer(TransformerConfig{TargetWidth: 300, TargetHeight: 400})

	payload, err := v.Validate(submission(encodePNG(t, 600, 800), "image/png"))
	require.NoError(t, err)

	artifact, err := tr.Transform(payload)
	require.NoError(t, err)
	assert.Equal(t, "png", artifact.Format)

	decoded, format, err := image.Decode(bytes.NewReader(artifact.Data))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 300, decoded.Bounds().Dx())
	assert.Equal(t, 400, decoded.Bounds().Dy())
}

func TestTransformRejectsForeignPayload(t *testing.T) {
	tr := NewTransformer(DefaultTransformerConfig())

	_, err := tr.Transform(fakePayload{})
	var terr *exam.TransformError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "unexpected-payload", terr.Reason)
}

type fakePayload struct{}

func (fakePayload) ExamType() exam.ExamType { return exam.TypeEcg }
