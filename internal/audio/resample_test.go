package audio

import (
	"math"
	"testing"
)

func TestResampler_PassThrough(t *testing.T) {
	r, err := NewResampler(16000, 16000)
	if err != nil {
		t.Fatalf("NewResampler failed: %v", err)
	}

	in := []int16{1, -2, 3, -4, 5}
	out := r.Process(in)
	if len(out) != len(in) {
		t.Fatalf("Expected %d samples, got %d", len(in), len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, in[i], out[i])
		}
	}
}

func TestResampler_InvalidRates(t *testing.T) {
	if _, err := NewResampler(0, 16000); err == nil {
		t.Error("Expected error for zero source rate")
	}
	if _, err := NewResampler(48000, -1); err == nil {
		t.Error("Expected error for negative destination rate")
	}
}

func TestResampler_Ratio(t *testing.T) {
	r, err := NewResampler(48000, 16000)
	if err != nil {
		t.Fatalf("NewResampler failed: %v", err)
	}
	l, m := r.Ratio()
	if l != 1 || m != 3 {
		t.Errorf("Expected ratio 1/3 for 48k to 16k, got %d/%d", l, m)
	}
}

func TestResampler_OutputLength(t *testing.T) {
	r, err := NewResampler(48000, 16000)
	if err != nil {
		t.Fatalf("NewResampler failed: %v", err)
	}

	// 100ms at 48kHz should yield 100ms at 16kHz
	in := make([]int16, 4800)
	out := r.Process(in)
	if len(out) != 1600 {
		t.Errorf("Expected 1600 output samples, got %d", len(out))
	}
}

func TestResampler_PreservesDCLevel(t *testing.T) {
	r, err := NewResampler(48000, 16000)
	if err != nil {
		t.Fatalf("NewResampler failed: %v", err)
	}

	in := make([]int16, 9600)
	for i := range in {
		in[i] = 1000
	}
	out := r.Process(in)

	// Skip the filter's startup transient, then the level must hold.
	for i := 100; i < len(out)-100; i++ {
		if math.Abs(float64(out[i])-1000) > 100 {
			t.Fatalf("Sample %d drifted from DC level: %d", i, out[i])
		}
	}
}

func TestResampler_ChunkedMatchesWhole(t *testing.T) {
	in := make([]int16, 4800)
	for i := range in {
		in[i] = int16(2000 * math.Sin(2*math.Pi*440*float64(i)/48000))
	}

	whole, err := NewResampler(48000, 16000)
	if err != nil {
		t.Fatalf("NewResampler failed: %v", err)
	}
	wantOut := whole.Process(in)

	chunked, _ := NewResampler(48000, 16000)
	var gotOut []int16
	for off := 0; off < len(in); off += 160 {
		end := off + 160
		if end > len(in) {
			end = len(in)
		}
		gotOut = append(gotOut, chunked.Process(in[off:end])...)
	}

	if len(gotOut) != len(wantOut) {
		t.Fatalf("Chunked output length %d, whole output length %d", len(gotOut), len(wantOut))
	}
	for i := range wantOut {
		if gotOut[i] != wantOut[i] {
			t.Fatalf("Sample %d differs: chunked %d, whole %d", i, gotOut[i], wantOut[i])
		}
	}
}

func TestResampler_Reset(t *testing.T) {
	r, err := NewResampler(48000, 16000)
	if err != nil {
		t.Fatalf("NewResampler failed: %v", err)
	}

	in := make([]int16, 4800)
	first := r.Process(in)
	r.Reset()
	second := r.Process(in)

	if len(first) != len(second) {
		t.Fatalf("Expected identical output after reset, lengths %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("Sample %d differs after reset: %d vs %d", i, first[i], second[i])
		}
	}
}
