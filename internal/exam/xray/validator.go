package xray

import (
	"bytes"
	"image"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"exam-gateway/internal/exam"
)

// Magic numbers for the raster formats the gateway accepts. The declared
// content type is never trusted on its own; the leading bytes must agree.
var imageSignatures = map[string][]byte{
	"jpeg": {0xFF, 0xD8},
	"png":  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	"webp": {0x52, 0x49, 0x46, 0x46},
}

// ValidatorConfig bounds what counts as a plausible frontal X-ray capture.
// Values are deployment configuration; the defaults are documented choices,
// not clinical constants.
type ValidatorConfig struct {
	MinWidth  int
	MinHeight int
	MinAspect float64
	MaxAspect float64
}

func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{MinWidth: 256, MinHeight: 256, MinAspect: 0.5, MaxAspect: 2.0}
}

// Payload is a decoded, structurally valid X-ray image.
type Payload struct {
	Img    image.Image
	Format string
	Width  int
	Height int
}

func (p *Payload) ExamType() exam.ExamType { return exam.TypeXray }

type Validator struct {
	cfg ValidatorConfig
}

func NewValidator(cfg ValidatorConfig) *Validator {
	if cfg.MinWidth <= 0 || cfg.MinHeight <= 0 {
		d := DefaultValidatorConfig()
		cfg.MinWidth, cfg.MinHeight = d.MinWidth, d.MinHeight
	}
	if cfg.MinAspect <= 0 || cfg.MaxAspect <= cfg.MinAspect {
		d := DefaultValidatorConfig()
		cfg.MinAspect, cfg.MaxAspect = d.MinAspect, d.MaxAspect
	}
	return &Validator{cfg: cfg}
}

// normalizeFormat reduces a declared content type like "image/jpeg" or "jpg"
// to a signature-table key.
func normalizeFormat(contentType string) string {
	f := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(f, ";"); i >= 0 {
		f = strings.TrimSpace(f[:i])
	}
	f = strings.TrimPrefix(f, "image/")
	if f == "jpg" {
		f = "jpeg"
	}
	return f
}

func (v *Validator) Validate(sub exam.Submission) (exam.ValidatedPayload, error) {
	if len(sub.Raw) == 0 {
		return nil, exam.Invalid("empty-payload", "x-ray submission carries no image bytes")
	}

	declared := normalizeFormat(sub.DeclaredContentType)
	if declared != "" {
		sig, ok := imageSignatures[declared]
		if !ok {
			return nil, exam.Invalid("unsupported-format", "declared content type %q is not an accepted raster format", sub.DeclaredContentType)
		}
		if len(sub.Raw) < len(sig) || !bytes.Equal(sub.Raw[:len(sig)], sig) {
			return nil, exam.Invalid("spoofed-content-type", "payload signature does not match declared %q", sub.DeclaredContentType)
		}
	}

	img, format, err := image.Decode(bytes.NewReader(sub.Raw))
	if err != nil {
		return nil, exam.Invalid("undecodable-image", "payload does not decode as a supported raster image")
	}
	if declared != "" && format != declared {
		return nil, exam.Invalid("spoofed-content-type", "payload decodes as %s but was declared %q", format, sub.DeclaredContentType)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < v.cfg.MinWidth || h < v.cfg.MinHeight {
		return nil, exam.Invalid("image-too-small", "%dx%d is below the minimum %dx%d", w, h, v.cfg.MinWidth, v.cfg.MinHeight)
	}

	aspect := float64(w) / float64(h)
	if aspect < v.cfg.MinAspect || aspect > v.cfg.MaxAspect {
		return nil, exam.Invalid("orientation-check-failed",
			"aspect ratio %.2f outside frontal-view bounds [%.2f, %.2f]", aspect, v.cfg.MinAspect, v.cfg.MaxAspect)
	}

	return &Payload{Img: img, Format: format, Width: w, Height: h}, nil
}
