package behavior

import (
	"math"
	"time"
)

// pointerSample is one rate-limited movement observation.
type pointerSample struct {
	t    time.Time
	x, y float64
}

// touchSample is one touch contact observation.
type touchSample struct {
	t    time.Time
	x, y float64
	size float64
}

// keySample is one key-down observation, identified per privacy mode.
type keySample struct {
	id        string
	t         time.Time
	backspace bool
}

// reduceMouse collapses movement samples into summary metrics. Returns nil
// below the sample threshold.
func reduceMouse(samples []pointerSample) *MouseMetrics {
	if len(samples) < MouseSampleThreshold {
		return nil
	}

	m := &MouseMetrics{SampleCount: len(samples)}

	var speedSum float64
	var speedN int
	prevAxis := ""
	for i := 1; i < len(samples); i++ {
		prev, cur := samples[i-1], samples[i]
		dt := cur.t.Sub(prev.t)
		dx := cur.x - prev.x
		dy := cur.y - prev.y

		if dt > 0 {
			dist := math.Hypot(dx, dy)
			speedSum += dist / dt.Seconds()
			speedN++
		}
		if dt > hesitationGap {
			m.HesitationCount++
		}

		// Dominant movement axis; a change of axis between consecutive
		// samples counts as a direction change.
		axis := "x"
		if math.Abs(dy) > math.Abs(dx) {
			axis = "y"
		}
		if prevAxis != "" && axis != prevAxis {
			m.DirectionChanges++
		}
		prevAxis = axis
	}

	if speedN > 0 {
		m.AverageSpeed = speedSum / float64(speedN)
	}
	return m
}

// reduceKeyboard collapses key samples and matched hold durations into
// summary metrics. Returns nil below the sample threshold.
func reduceKeyboard(downs []keySample, holdsMs []float64, mode PrivacyMode) *KeyboardMetrics {
	if len(downs) < KeyboardSampleThreshold {
		return nil
	}

	k := &KeyboardMetrics{SampleCount: len(downs)}

	if len(holdsMs) > 0 {
		sum := 0.0
		for _, h := range holdsMs {
			sum += h
		}
		k.AverageHoldTime = sum / float64(len(holdsMs))
	}

	span := downs[len(downs)-1].t.Sub(downs[0].t)
	if span > 0 {
		k.CharsPerSecond = float64(len(downs)) / span.Seconds()
	}

	if mode == ModeFull && len(downs) >= backspaceRatioThreshold {
		backspaces := 0
		for _, d := range downs {
			if d.backspace {
				backspaces++
			}
		}
		ratio := float64(backspaces) / float64(len(downs))
		k.BackspaceRatio = &ratio
	}
	return k
}

// reduceTouch collapses touch samples into summary metrics. Returns nil
// below the sample threshold.
func reduceTouch(samples []touchSample) *TouchMetrics {
	if len(samples) < TouchSampleThreshold {
		return nil
	}

	t := &TouchMetrics{SampleCount: len(samples)}

	var sizeSum float64
	var sizeN int
	for _, s := range samples {
		if s.size > 0 {
			sizeSum += s.size
			sizeN++
		}
	}
	if sizeN > 0 {
		t.AverageTouchSize = sizeSum / float64(sizeN)
	}

	// Swipe speed counts only consecutive pairs close enough in time to
	// belong to one gesture.
	var speedSum float64
	var speedN int
	for i := 1; i < len(samples); i++ {
		dt := samples[i].t.Sub(samples[i-1].t)
		if dt <= 0 || dt > hesitationGap {
			continue
		}
		dist := math.Hypot(samples[i].x-samples[i-1].x, samples[i].y-samples[i-1].y)
		speedSum += dist / dt.Seconds()
		speedN++
	}
	if speedN > 0 {
		t.AverageSwipeSpeed = speedSum / float64(speedN)
	}
	return t
}
