package mixgraph

import (
	"math"
	"testing"

	"github.com/gopxl/beep/v2"
)

// sineStreamer produces an endless sine wave at freq on both channels.
func sineStreamer(rate beep.SampleRate, freq float64) beep.Streamer {
	pos := 0
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			v := 0.5 * math.Sin(2*math.Pi*freq*float64(pos)/float64(rate))
			samples[i] = [2]float64{v, v}
			pos++
		}
		return len(samples), true
	})
}

func TestAnalyser_PeakAtToneBin(t *testing.T) {
	const fftSize = 256
	// Bin 16 of a 256-point FFT at 8kHz is 500Hz.
	a := newAnalyser(sineStreamer(testRate, 500), fftSize, testRate)
	a.SetSmoothing(0)

	a.Stream(make([][2]float64, fftSize))

	db := a.FloatFrequencyData()
	if len(db) != a.FrequencyBinCount() || len(db) != fftSize/2 {
		t.Fatalf("expected %d bins, got %d", fftSize/2, len(db))
	}
	peak := 0
	for i := range db {
		if db[i] > db[peak] {
			peak = i
		}
	}
	if peak != 16 {
		t.Errorf("expected peak at bin 16, got %d", peak)
	}
	if f := a.BinFrequency(peak); f != 500 {
		t.Errorf("expected bin frequency 500Hz, got %v", f)
	}
}

func TestAnalyser_SilenceIsZeroBytes(t *testing.T) {
	a := newAnalyser(beep.Silence(-1), 128, testRate)
	a.Stream(make([][2]float64, 128))

	dst := make([]byte, 64)
	if n := a.ByteFrequencyData(dst); n != 64 {
		t.Fatalf("expected 64 bins written, got %d", n)
	}
	for i, b := range dst {
		if b != 0 {
			t.Fatalf("bin %d: expected 0 for silence, got %d", i, b)
		}
	}
}

func TestAnalyser_ByteScaling(t *testing.T) {
	a := newAnalyser(sineStreamer(testRate, 500), 256, testRate)
	a.SetSmoothing(0)
	a.SetDecibelRange(-200, 0)
	a.Stream(make([][2]float64, 256))

	dst := make([]byte, 128)
	a.ByteFrequencyData(dst)
	if dst[16] == 0 {
		t.Errorf("expected non-zero magnitude at the tone bin")
	}
}

func TestAnalyser_SamplesChronological(t *testing.T) {
	n := 0
	src := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			samples[i] = [2]float64{float64(n), float64(n)}
			n++
		}
		return len(samples), true
	})
	a := newAnalyser(src, 4, testRate)
	a.Stream(make([][2]float64, 6)) // 0..5, ring keeps 2..5

	got := a.Samples()
	want := []float64{2, 3, 4, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestGraph_AnalyserSeesMasterOutput(t *testing.T) {
	g, out := newTestGraph(t)
	gen, _ := g.NewGenerator("a", constBuffer(testRate, 4096, 0.5), 0, nil)
	g.AttachStem("a", gen, false)
	out.Pull(2048)

	samples := g.Analyser().Samples()
	if !approx(samples[len(samples)-1], 0.5) {
		t.Errorf("expected analyser to capture the mix, got %v", samples[len(samples)-1])
	}
}
