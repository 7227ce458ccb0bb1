package audio

import (
	"encoding/binary"
	"time"
)

// EncodeWAV wraps mono int16 PCM samples in a RIFF/WAVE container.
func EncodeWAV(samples []int16, sampleRate int) []byte {
	dataLen := len(samples) * 2
	buf := make([]byte, 44+dataLen)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataLen))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                        // fmt chunk size
	binary.LittleEndian.PutUint16(buf[20:22], 1)                         // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1)                         // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))        // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2))      // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], 2)                         // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16)                        // bits per sample

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[44+i*2:], uint16(s))
	}
	return buf
}

// DecodeWAV extracts int16 PCM samples and the sample rate from a RIFF/WAVE
// payload. Multi-channel input is downmixed by taking the first channel.
func DecodeWAV(data []byte) ([]int16, int, error) {
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, &FormatError{Reason: "not a RIFF/WAVE payload"}
	}

	var sampleRate int
	var channels, bits int
	var pcm []byte

	// Walk chunks; fmt and data may be preceded by others (LIST etc).
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, &FormatError{Reason: "truncated fmt chunk"}
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 {
				return nil, 0, &FormatError{Reason: "only PCM WAV is supported"}
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
		case "data":
			pcm = data[body : body+size]
		}

		off = body + size
		if size%2 == 1 {
			off++ // chunks are word-aligned
		}
	}

	if sampleRate == 0 || pcm == nil {
		return nil, 0, &FormatError{Reason: "missing fmt or data chunk"}
	}
	if bits != 16 {
		return nil, 0, &FormatError{Reason: "only 16-bit WAV is supported"}
	}
	if channels < 1 {
		return nil, 0, &FormatError{Reason: "invalid channel count"}
	}

	n := len(pcm) / 2
	interleaved := make([]int16, n)
	for i := 0; i < n; i++ {
		interleaved[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	if channels == 1 {
		return interleaved, sampleRate, nil
	}

	mono := make([]int16, 0, n/channels)
	for i := 0; i < len(interleaved); i += channels {
		mono = append(mono, interleaved[i])
	}
	return mono, sampleRate, nil
}

// WAVDuration returns the playback duration of a WAV payload.
func WAVDuration(data []byte) (time.Duration, error) {
	samples, rate, err := DecodeWAV(data)
	if err != nil {
		return 0, err
	}
	if rate == 0 {
		return 0, &FormatError{Reason: "zero sample rate"}
	}
	return time.Duration(len(samples)) * time.Second / time.Duration(rate), nil
}
