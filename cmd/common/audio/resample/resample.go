// Package resample prepares decoded audio for analysis collaborators that want
// a single channel at a fixed rate.
package resample

import (
	"errors"
	"fmt"
	"io"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
)

// DefaultQuality is the beep.Resample quality used when none is configured.
const DefaultQuality = 4

var ErrInvalidRate = errors.New("sample rate must be positive")

// Resampler down-mixes and resamples buffers.
type Resampler struct {
	Quality int
}

// ToMono down-mixes buf to mono at targetRate using DefaultQuality.
func ToMono(buf *beep.Buffer, targetRate int) ([]float32, error) {
	return Resampler{Quality: DefaultQuality}.ToMono(buf, targetRate)
}

// ToMono averages the left and right channels of buf and resamples the result
// to targetRate.
func (r Resampler) ToMono(buf *beep.Buffer, targetRate int) ([]float32, error) {
	if targetRate <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRate, targetRate)
	}
	if buf == nil || buf.Len() == 0 {
		return nil, nil
	}

	quality := min(max(r.Quality, 1), 64)
	from := buf.Format().SampleRate
	to := beep.SampleRate(targetRate)

	var src beep.Streamer = buf.Streamer(0, buf.Len())
	if from != to {
		src = beep.Resample(quality, from, to, src)
	}

	out := make([]float32, 0, to.N(from.D(buf.Len()))+1)
	chunk := make([][2]float64, 512)
	for {
		n, ok := src.Stream(chunk)
		for i := 0; i < n; i++ {
			out = append(out, float32((chunk[i][0]+chunk[i][1])/2))
		}
		if !ok {
			break
		}
	}
	if err := src.Err(); err != nil {
		return nil, fmt.Errorf("resample: %w", err)
	}
	return out, nil
}

// EncodeWAV writes mono samples as a 16-bit WAV file.
func EncodeWAV(w io.WriteSeeker, samples []float32, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRate, sampleRate)
	}
	pos := 0
	src := beep.StreamerFunc(func(out [][2]float64) (int, bool) {
		if pos >= len(samples) {
			return 0, false
		}
		n := min(len(out), len(samples)-pos)
		for i := 0; i < n; i++ {
			v := float64(samples[pos+i])
			out[i] = [2]float64{v, v}
		}
		pos += n
		return n, true
	})
	format := beep.Format{SampleRate: beep.SampleRate(sampleRate), NumChannels: 1, Precision: 2}
	return wav.Encode(w, src, format)
}
