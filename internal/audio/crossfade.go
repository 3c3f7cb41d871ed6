package audio

// Smoothstep returns the smoothstep interpolation for t in [0,1].
// Formula: 3t^2 - 2t^3.
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// FadeEdges ramps the first and last fade sample frames of an interleaved
// stereo clip in and out along the smoothstep curve, in place. Clips shorter
// than two fades get a proportionally shorter ramp.
func FadeEdges(samples []int16, fade int) {
	frames := len(samples) / Channels
	if fade > frames/2 {
		fade = frames / 2
	}
	if fade <= 0 {
		return
	}
	for i := 0; i < fade; i++ {
		gain := Smoothstep(float64(i) / float64(fade))
		for c := 0; c < Channels; c++ {
			head := i*Channels + c
			tail := (frames-1-i)*Channels + c
			samples[head] = scale(samples[head], gain)
			samples[tail] = scale(samples[tail], gain)
		}
	}
}

func scale(s int16, gain float64) int16 {
	v := float64(s) * gain
	// Clip to int16 range
	if v > 32767 {
		v = 32767
	} else if v < -32768 {
		v = -32768
	}
	return int16(v)
}

// Fit returns a copy of clip holding exactly n interleaved samples: longer
// clips are truncated, shorter ones padded with trailing silence.
func Fit(clip []int16, n int) []int16 {
	out := make([]int16, n)
	copy(out, clip)
	return out
}
