package ecg

import (
	"bytes"
	"encoding/json"
	"math"

	"exam-gateway/internal/exam"
	"exam-gateway/pkg/api"
)

// ValidatorConfig bounds the accepted waveform shape. MaxAmplitude is in the
// recording's native units (millivolts for standard 12-lead captures);
// SampleTolerance is the allowed relative deviation between a lead's sample
// count and sample_rate × duration.
type ValidatorConfig struct {
	MaxAmplitude    float64
	SampleTolerance float64
}

func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{MaxAmplitude: 2.0, SampleTolerance: 0.01}
}

// Payload is a parsed, internally consistent ECG lead set.
type Payload struct {
	PatientId       string
	SampleRateHz    float64
	DurationSeconds float64
	Leads           []api.EcgLead
}

func (p *Payload) ExamType() exam.ExamType { return exam.TypeEcg }

type Validator struct {
	cfg ValidatorConfig
}

func NewValidator(cfg ValidatorConfig) *Validator {
	d := DefaultValidatorConfig()
	if cfg.MaxAmplitude <= 0 {
		cfg.MaxAmplitude = d.MaxAmplitude
	}
	if cfg.SampleTolerance <= 0 {
		cfg.SampleTolerance = d.SampleTolerance
	}
	return &Validator{cfg: cfg}
}

func (v *Validator) Validate(sub exam.Submission) (exam.ValidatedPayload, error) {
	decoder := json.NewDecoder(bytes.NewReader(sub.Raw))
	decoder.DisallowUnknownFields()

	var wire api.EcgPayload
	if err := decoder.Decode(&wire); err != nil {
		return nil, exam.Invalid("malformed-payload", "ecg submission is not a valid waveform record")
	}

	if !exam.IsHexDigest(wire.PatientId, 32) {
		return nil, exam.Invalid("invalid-patient-id", "patient_id must be a sha256 hex digest")
	}
	if wire.SampleRateHz <= 0 {
		return nil, exam.Invalid("invalid-sample-rate", "sample_rate_hz must be positive")
	}
	if wire.DurationSeconds <= 0 {
		return nil, exam.Invalid("invalid-duration", "duration_seconds must be positive")
	}
	if wire.LeadCount < 1 {
		return nil, exam.Invalid("invalid-lead-count", "lead_count must be at least 1")
	}
	if wire.LeadCount != len(wire.Leads) {
		return nil, exam.Invalid("lead-count-mismatch", "declared %d leads but %d sample arrays present", wire.LeadCount, len(wire.Leads))
	}

	expected := wire.SampleRateHz * wire.DurationSeconds
	tolerance := expected * v.cfg.SampleTolerance

	seen := make(map[string]struct{}, len(wire.Leads))
	for _, lead := range wire.Leads {
		if lead.Name == "" {
			return nil, exam.Invalid("unnamed-lead", "every lead requires a name")
		}
		if _, dup := seen[lead.Name]; dup {
			return nil, exam.Invalid("duplicate-lead", "lead %q appears more than once", lead.Name)
		}
		seen[lead.Name] = struct{}{}

		if len(lead.Samples) == 0 {
			return nil, exam.Invalid("empty-lead", "lead %q has no samples", lead.Name)
		}
		if math.Abs(float64(len(lead.Samples))-expected) > tolerance {
			return nil, exam.Invalid("sample-length-mismatch",
				"lead %q has %d samples, expected %.0f from %.0f Hz x %.1f s", lead.Name, len(lead.Samples), expected, wire.SampleRateHz, wire.DurationSeconds)
		}

		flat := true
		for _, s := range lead.Samples {
			if math.Abs(float64(s)) > v.cfg.MaxAmplitude {
				return nil, exam.Invalid("amplitude-out-of-range",
					"lead %q exceeds the +-%.1f amplitude bound", lead.Name, v.cfg.MaxAmplitude)
			}
			if s != 0 {
				flat = false
			}
		}
		if flat {
			return nil, exam.Invalid("flat-line-lead", "lead %q is flat-line", lead.Name)
		}
	}

	return &Payload{
		PatientId:       wire.PatientId,
		SampleRateHz:    wire.SampleRateHz,
		DurationSeconds: wire.DurationSeconds,
		Leads:           wire.Leads,
	}, nil
}
