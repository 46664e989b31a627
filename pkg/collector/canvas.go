package collector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"

	"deviceprint/pkg/host"
)

// Canvas hashes the host's rendered canvas output. Rendering differences
// between GPU, driver, and font stacks make the hash strongly identifying.
type Canvas struct {
	env host.Environment
	log *slog.Logger
}

// NewCanvas creates the canvas probe.
func NewCanvas(env host.Environment, log *slog.Logger) *Canvas {
	if log == nil {
		log = slog.Default()
	}
	return &Canvas{env: env, log: log.With("collector", KindCanvas)}
}

// Kind implements Collector.
func (c *Canvas) Kind() Kind { return KindCanvas }

// Collect implements Collector.
func (c *Canvas) Collect(ctx context.Context) (AttributeSet, StrengthReport) {
	data, err := c.env.CanvasData()
	if err != nil {
		c.log.Warn("canvas probe unavailable", "error", err)
		return AttributeSet{}, StrengthReport{}
	}

	sum := sha256.Sum256([]byte(data))
	attrs := AttributeSet{
		"canvasFingerprint": hex.EncodeToString(sum[:16]),
	}
	report := StrengthReport{
		Score:   20,
		Details: []string{"Canvas rendering fingerprint captured"},
	}
	return attrs, report
}
