package scanner

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	clamd "github.com/dutchcoders/go-clamd"
)

// ClamdScanner screens payloads against a clamd daemon over its stream
// protocol. A scan that cannot complete within the configured timeout maps to
// VerdictUnavailable, never to a silent pass.
type ClamdScanner struct {
	client  *clamd.Clamd
	timeout time.Duration
}

// NewClamdScanner connects to clamd at address, e.g. "tcp://localhost:3310".
// The initial ping verifies the engine is reachable at startup.
func NewClamdScanner(address string, timeout time.Duration) (*ClamdScanner, error) {
	client := clamd.NewClamd(address)
	if err := client.Ping(); err != nil {
		return nil, err
	}
	return &ClamdScanner{client: client, timeout: timeout}, nil
}

func (s *ClamdScanner) Scan(ctx context.Context, data []byte) Result {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	abort := make(chan bool)
	defer close(abort)

	results, err := s.client.ScanStream(bytes.NewReader(data), abort)
	if err != nil {
		slog.Error("clamd stream scan failed", "error", err)
		return Result{Verdict: VerdictUnavailable}
	}

	return awaitVerdict(ctx, results)
}

// awaitVerdict maps the engine's answer to a verdict. On timeout the result
// channel is drained in the background; the library sends on it unbuffered, so
// abandoning it would strand the reader goroutine and its connection.
func awaitVerdict(ctx context.Context, results chan *clamd.ScanResult) Result {
	select {
	case res, ok := <-results:
		if !ok || res == nil {
			slog.Error("clamd returned no scan result")
			return Result{Verdict: VerdictUnavailable}
		}
		switch res.Status {
		case clamd.RES_OK:
			return Result{Verdict: VerdictClean}
		case clamd.RES_FOUND:
			slog.Warn("clamd flagged payload", "signature", res.Description)
			return Result{Verdict: VerdictInfected, Signature: res.Description}
		default:
			slog.Error("clamd scan error", "status", res.Status, "description", res.Description)
			return Result{Verdict: VerdictUnavailable}
		}
	case <-ctx.Done():
		slog.Warn("clamd scan timed out")
		go func() {
			for range results {
			}
		}()
		return Result{Verdict: VerdictUnavailable}
	}
}
