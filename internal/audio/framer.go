package audio

// FramerConfig describes the client's input format and the analysis format
// the framer produces.
type FramerConfig struct {
	SrcRate       int // client sample rate (e.g. 48000)
	DstRate       int // analysis sample rate (e.g. 16000)
	FrameMs       int // frame duration in milliseconds
	Channels      int // must be 1
	BitsPerSample int // must be 16
}

// Framer slices an incoming raw PCM byte stream into fixed-duration frames at
// the analysis rate. Chunks may arrive at arbitrary sizes; partial trailing
// bytes and samples are buffered and prefixed to the next chunk.
type Framer struct {
	cfg          FramerConfig
	resampler    *Resampler
	frameSamples int

	pendingByte  []byte  // at most one unpaired PCM byte
	pending      []int16 // resampled samples not yet filling a frame
	seq          uint64
}

// NewFramer validates the input format and creates a framer.
// Returns a FormatError for unsupported channel count or bit depth.
func NewFramer(cfg FramerConfig) (*Framer, error) {
	if cfg.Channels != 1 {
		return nil, &FormatError{Reason: "only mono input is supported"}
	}
	if cfg.BitsPerSample != 16 {
		return nil, &FormatError{Reason: "only 16-bit PCM input is supported"}
	}
	if cfg.FrameMs <= 0 {
		return nil, &FormatError{Reason: "frame duration must be positive"}
	}

	rs, err := NewResampler(cfg.SrcRate, cfg.DstRate)
	if err != nil {
		return nil, err
	}

	frameSamples := cfg.DstRate * cfg.FrameMs / 1000
	if frameSamples == 0 {
		return nil, &FormatError{Reason: "frame duration too short for analysis rate"}
	}

	return &Framer{
		cfg:          cfg,
		resampler:    rs,
		frameSamples: frameSamples,
	}, nil
}

// Push ingests a raw PCM chunk and returns every complete analysis frame it
// yields. An empty slice means more input is needed.
func (f *Framer) Push(chunk []byte) []Frame {
	if len(f.pendingByte) > 0 {
		chunk = append(f.pendingByte, chunk...)
		f.pendingByte = nil
	}
	if len(chunk)%2 != 0 {
		f.pendingByte = []byte{chunk[len(chunk)-1]}
		chunk = chunk[:len(chunk)-1]
	}
	if len(chunk) == 0 {
		return nil
	}

	samples := make([]int16, len(chunk)/2)
	for i := range samples {
		samples[i] = int16(chunk[i*2]) | int16(chunk[i*2+1])<<8
	}

	f.pending = append(f.pending, f.resampler.Process(samples)...)

	var frames []Frame
	for len(f.pending) >= f.frameSamples {
		frame := make([]int16, f.frameSamples)
		copy(frame, f.pending[:f.frameSamples])
		f.pending = f.pending[f.frameSamples:]

		frames = append(frames, Frame{
			Seq:        f.seq,
			Samples:    frame,
			SampleRate: f.cfg.DstRate,
		})
		f.seq++
	}
	return frames
}

// FrameSamples returns the number of samples per produced frame.
func (f *Framer) FrameSamples() int {
	return f.frameSamples
}

// Reset discards all buffered input and restarts frame numbering.
func (f *Framer) Reset() {
	f.resampler.Reset()
	f.pendingByte = nil
	f.pending = f.pending[:0]
	f.seq = 0
}
