package ecg

import (
	"bytes"
	"math"

	"github.com/parquet-go/parquet-go"

	"exam-gateway/internal/exam"
)

// sampleRow is one cell of the canonical columnar table: long format, one row
// per lead sample, ordered by lead position then sample index.
type sampleRow struct {
	Lead        string  `parquet:"lead,dict"`
	LeadIndex   int32   `parquet:"lead_index"`
	SampleIndex int32   `parquet:"sample_index"`
	TimestampMs float64 `parquet:"timestamp_ms"`
	Value       float32 `parquet:"value"`
}

// TransformerConfig sets the normalization range. Samples are scaled by
// 1/MaxAmplitude so canonical values land in [-1, 1].
type TransformerConfig struct {
	MaxAmplitude float64
}

func DefaultTransformerConfig() TransformerConfig {
	return TransformerConfig{MaxAmplitude: 2.0}
}

// Transformer normalizes a validated lead set and encodes it as a Parquet
// table. Row order is fully determined by the payload, so identical payloads
// yield bit-identical artifacts.
type Transformer struct {
	cfg TransformerConfig
}

func NewTransformer(cfg TransformerConfig) *Transformer {
	if cfg.MaxAmplitude <= 0 {
		cfg = DefaultTransformerConfig()
	}
	return &Transformer{cfg: cfg}
}

func (t *Transformer) Transform(payload exam.ValidatedPayload) (exam.CanonicalArtifact, error) {
	p, ok := payload.(*Payload)
	if !ok {
		return exam.CanonicalArtifact{}, exam.Untransformable("unexpected-payload", "ecg transformer received %T", payload)
	}

	msPerSample := 1000.0 / p.SampleRateHz
	scale := float32(1.0 / t.cfg.MaxAmplitude)

	total := 0
	for _, lead := range p.Leads {
		total += len(lead.Samples)
	}

	rows := make([]sampleRow, 0, total)
	for leadIdx, lead := range p.Leads {
		for sampleIdx, sample := range lead.Samples {
			value := sample * scale
			if math.IsNaN(float64(value)) || math.IsInf(float64(value), 0) {
				return exam.CanonicalArtifact{}, exam.Untransformable("non-finite-sample",
					"lead %q sample %d does not normalize to a finite value", lead.Name, sampleIdx)
			}
			rows = append(rows, sampleRow{
				Lead:        lead.Name,
				LeadIndex:   int32(leadIdx),
				SampleIndex: int32(sampleIdx),
				TimestampMs: float64(sampleIdx) * msPerSample,
				Value:       value,
			})
		}
	}

	var buf bytes.Buffer
	writer := parquet.NewGenericWriter[sampleRow](&buf)
	if _, err := writer.Write(rows); err != nil {
		return exam.CanonicalArtifact{}, exam.Untransformable("encode-failed", "parquet encoding failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		return exam.CanonicalArtifact{}, exam.Untransformable("encode-failed", "parquet encoding failed: %v", err)
	}

	return exam.NewArtifact(buf.Bytes(), "parquet", "application/vnd.apache.parquet"), nil
}
