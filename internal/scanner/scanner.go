package scanner

import "context"

// Verdict is the outcome of screening a payload. Unavailable is a distinct
// verdict rather than an error so the pipeline can fail closed with its own
// reason code when the engine cannot answer.
type Verdict int

const (
	VerdictClean Verdict = iota
	VerdictInfected
	VerdictUnavailable
)

func (v Verdict) String() string {
	switch v {
	case VerdictClean:
		return "clean"
	case VerdictInfected:
		return "infected"
	default:
		return "unavailable"
	}
}

// Result carries the verdict plus the matched signature name when infected.
type Result struct {
	Verdict   Verdict
	Signature string
}

// Scanner is the capability boundary to the external scanning engine. The
// gateway owns timeout enforcement and verdict mapping only.
type Scanner interface {
	Scan(ctx context.Context, data []byte) Result
}
