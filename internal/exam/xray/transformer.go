package xray

import (
	"bytes"
	"image"
	"image/png"

	"golang.org/x/image/draw"

	"exam-gateway/internal/exam"
)

// TransformerConfig sets the canonical raster dimensions. Defaults are the
// documented deployment choice, overridable per environment.
type TransformerConfig struct {
	TargetWidth  int
	TargetHeight int
}

func DefaultTransformerConfig() TransformerConfig {
	return TransformerConfig{TargetWidth: 1024, TargetHeight: 1024}
}

// Transformer re-encodes a validated X-ray into the canonical grayscale PNG
// at fixed dimensions. Catmull-Rom scaling has no randomness, so identical
// inputs produce bit-identical artifacts.
type Transformer struct {
	cfg TransformerConfig
}

func NewTransformer(cfg TransformerConfig) *Transformer {
	if cfg.TargetWidth <= 0 || cfg.TargetHeight <= 0 {
		cfg = DefaultTransformerConfig()
	}
	return &Transformer{cfg: cfg}
}

func (t *Transformer) Transform(payload exam.ValidatedPayload) (exam.CanonicalArtifact, error) {
	p, ok := payload.(*Payload)
	if !ok {
		return exam.CanonicalArtifact{}, exam.Untransformable("unexpected-payload", "x-ray transformer received %T", payload)
	}

	dst := image.NewGray16(image.Rect(0, 0, t.cfg.TargetWidth, t.cfg.TargetHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), p.Img, p.Img.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := encoder.Encode(&buf, dst); err != nil {
		return exam.CanonicalArtifact{}, exam.Untransformable("encode-failed", "canonical png encoding failed: %v", err)
	}

	return exam.NewArtifact(buf.Bytes(), "png", "image/png"), nil
}
