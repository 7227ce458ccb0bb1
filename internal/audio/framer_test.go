package audio

import (
	"errors"
	"testing"
)

func framerConfig() FramerConfig {
	return FramerConfig{
		SrcRate:       48000,
		DstRate:       16000,
		FrameMs:       20,
		Channels:      1,
		BitsPerSample: 16,
	}
}

func TestNewFramer_RejectsUnsupportedFormats(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*FramerConfig)
	}{
		{"stereo", func(c *FramerConfig) { c.Channels = 2 }},
		{"8-bit", func(c *FramerConfig) { c.BitsPerSample = 8 }},
		{"zero frame duration", func(c *FramerConfig) { c.FrameMs = 0 }},
		{"zero source rate", func(c *FramerConfig) { c.SrcRate = 0 }},
	}

	for _, tc := range cases {
		cfg := framerConfig()
		tc.mutate(&cfg)
		_, err := NewFramer(cfg)
		if err == nil {
			t.Errorf("%s: expected error", tc.name)
			continue
		}
		var formatErr *FormatError
		if !errors.As(err, &formatErr) {
			t.Errorf("%s: expected FormatError, got %T", tc.name, err)
		}
	}
}

func TestFramer_ProducesFixedFrames(t *testing.T) {
	f, err := NewFramer(framerConfig())
	if err != nil {
		t.Fatalf("NewFramer failed: %v", err)
	}
	if f.FrameSamples() != 320 {
		t.Fatalf("Expected 320 samples per frame, got %d", f.FrameSamples())
	}

	// 100ms of 48kHz audio = 4800 samples = 9600 bytes
	chunk := SamplesToBytes(make([]int16, 4800))
	frames := f.Push(chunk)

	// 100ms at the analysis rate is five 20ms frames
	if len(frames) != 5 {
		t.Fatalf("Expected 5 frames, got %d", len(frames))
	}
	for i, frame := range frames {
		if frame.Seq != uint64(i) {
			t.Errorf("Frame %d: expected seq %d, got %d", i, i, frame.Seq)
		}
		if len(frame.Samples) != 320 {
			t.Errorf("Frame %d: expected 320 samples, got %d", i, len(frame.Samples))
		}
		if frame.SampleRate != 16000 {
			t.Errorf("Frame %d: expected rate 16000, got %d", i, frame.SampleRate)
		}
	}
}

func TestFramer_PassThroughPreservesSamples(t *testing.T) {
	cfg := framerConfig()
	cfg.SrcRate = 16000
	f, err := NewFramer(cfg)
	if err != nil {
		t.Fatalf("NewFramer failed: %v", err)
	}

	in := make([]int16, 640)
	for i := range in {
		in[i] = int16(i - 320)
	}

	frames := f.Push(SamplesToBytes(in))
	if len(frames) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(frames))
	}
	for i, frame := range frames {
		for j, s := range frame.Samples {
			if want := in[i*320+j]; s != want {
				t.Fatalf("Frame %d sample %d: expected %d, got %d", i, j, want, s)
			}
		}
	}
}

func TestFramer_BuffersOddTrailingByte(t *testing.T) {
	cfg := framerConfig()
	cfg.SrcRate = 16000
	f, err := NewFramer(cfg)
	if err != nil {
		t.Fatalf("NewFramer failed: %v", err)
	}

	data := SamplesToBytes(make([]int16, 320))

	// Split on an odd boundary; the lone byte must carry over.
	frames := f.Push(data[:101])
	if len(frames) != 0 {
		t.Fatalf("Expected no frames from partial chunk, got %d", len(frames))
	}
	frames = f.Push(data[101:])
	if len(frames) != 1 {
		t.Fatalf("Expected 1 frame after completing chunk, got %d", len(frames))
	}
}

func TestFramer_AccumulatesAcrossPushes(t *testing.T) {
	cfg := framerConfig()
	cfg.SrcRate = 16000
	f, err := NewFramer(cfg)
	if err != nil {
		t.Fatalf("NewFramer failed: %v", err)
	}

	// 10ms pushes, frames appear every second push
	chunk := SamplesToBytes(make([]int16, 160))
	total := 0
	for i := 0; i < 10; i++ {
		total += len(f.Push(chunk))
	}
	if total != 5 {
		t.Errorf("Expected 5 frames from 100ms of input, got %d", total)
	}
}

func TestFramer_Reset(t *testing.T) {
	cfg := framerConfig()
	cfg.SrcRate = 16000
	f, err := NewFramer(cfg)
	if err != nil {
		t.Fatalf("NewFramer failed: %v", err)
	}

	f.Push(SamplesToBytes(make([]int16, 500)))
	f.Reset()

	frames := f.Push(SamplesToBytes(make([]int16, 320)))
	if len(frames) != 1 {
		t.Fatalf("Expected 1 frame after reset, got %d", len(frames))
	}
	if frames[0].Seq != 0 {
		t.Errorf("Expected seq restarted at 0, got %d", frames[0].Seq)
	}
}
