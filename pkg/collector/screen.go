package collector

import (
	"context"
	"fmt"
	"log/slog"

	"deviceprint/pkg/host"
)

// Screen reads display geometry and color properties from the host.
type Screen struct {
	env host.Environment
	log *slog.Logger
}

// NewScreen creates the screen probe.
func NewScreen(env host.Environment, log *slog.Logger) *Screen {
	if log == nil {
		log = slog.Default()
	}
	return &Screen{env: env, log: log.With("collector", KindScreen)}
}

// Kind implements Collector.
func (s *Screen) Kind() Kind { return KindScreen }

// Collect implements Collector.
func (s *Screen) Collect(ctx context.Context) (AttributeSet, StrengthReport) {
	info, err := s.env.Screen()
	if err != nil {
		s.log.Warn("screen probe unavailable", "error", err)
		return AttributeSet{}, StrengthReport{}
	}

	attrs := AttributeSet{
		"screenResolution":          fmt.Sprintf("%dx%d", info.Width, info.Height),
		"availableScreenResolution": fmt.Sprintf("%dx%d", info.AvailWidth, info.AvailHeight),
		"colorDepth":                fmt.Sprintf("%d", info.ColorDepth),
		"pixelRatio":                fmt.Sprintf("%g", info.PixelRatio),
	}
	report := StrengthReport{
		Score: 12,
		Details: []string{
			"Screen resolution and color depth captured",
		},
	}
	if info.PixelRatio > 1 {
		report.Details = append(report.Details, "High-density display adds distinguishing power")
	}
	return attrs, report
}
