package collector

import (
	"context"
	"fmt"
	"log/slog"

	"deviceprint/pkg/host"
)

// Hardware reads the stable hardware and platform signals: WebGL/GPU
// parameters, audio configuration, user agent, and machine characteristics
// that survive browser restarts.
type Hardware struct {
	env host.Environment
	log *slog.Logger
}

// NewHardware creates the stable-hardware probe.
func NewHardware(env host.Environment, log *slog.Logger) *Hardware {
	if log == nil {
		log = slog.Default()
	}
	return &Hardware{env: env, log: log.With("collector", KindHardware)}
}

// Kind implements Collector.
func (h *Hardware) Kind() Kind { return KindHardware }

// Collect implements Collector.
func (h *Hardware) Collect(ctx context.Context) (AttributeSet, StrengthReport) {
	attrs := AttributeSet{}
	report := StrengthReport{}

	if ua := h.env.UserAgent(); ua != "" {
		attrs["userAgent"] = ua
		report.Score += 8
		report.Details = append(report.Details, "User agent captured")
	}
	if platform := h.env.Platform(); platform != "" {
		attrs["platform"] = platform
	}
	if tz := h.env.Timezone(); tz != "" {
		attrs["timezone"] = tz
	}
	if cores := h.env.HardwareConcurrency(); cores > 0 {
		attrs["hardwareConcurrency"] = fmt.Sprintf("%d", cores)
		report.Score += 2
	}
	if mem := h.env.DeviceMemory(); mem > 0 {
		attrs["deviceMemory"] = fmt.Sprintf("%g", mem)
		report.Score += 2
	}

	if gl, err := h.env.WebGL(); err != nil {
		h.log.Warn("webgl probe unavailable", "error", err)
	} else {
		attrs["webglVendor"] = gl.Vendor
		attrs["webglRenderer"] = gl.Renderer
		attrs["webglVersion"] = gl.Version
		if gl.MaxTextureSize > 0 {
			attrs["webglMaxTextureSize"] = fmt.Sprintf("%d", gl.MaxTextureSize)
		}
		report.Score += 15
		report.Details = append(report.Details, "GPU renderer parameters captured")
	}

	if audio, err := h.env.Audio(); err != nil {
		h.log.Warn("audio probe unavailable", "error", err)
	} else {
		attrs["audioSampleRate"] = fmt.Sprintf("%g", audio.SampleRate)
		if audio.ChannelCount > 0 {
			attrs["audioChannelCount"] = fmt.Sprintf("%d", audio.ChannelCount)
		}
		report.Score += 6
		report.Details = append(report.Details, "Audio stack configuration captured")
	}

	return attrs, report
}
