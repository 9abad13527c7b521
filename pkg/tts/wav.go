package tts

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrNotWAV is returned when a buffer is not a RIFF/WAVE container.
var ErrNotWAV = errors.New("tts: not a WAV container")

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// DecodeWAV unwraps a 16-bit WAV container into raw PCM.
func DecodeWAV(data []byte) (*Audio, error) {
	if !IsWAV(data) {
		return nil, ErrNotWAV
	}
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, ErrNotWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("tts: decode wav: %w", err)
	}
	if dec.BitDepth != 16 {
		return nil, fmt.Errorf("tts: unsupported wav bit depth %d", dec.BitDepth)
	}

	pcm := make([]byte, 2*len(buf.Data))
	for i, s := range buf.Data {
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(int16(s)))
	}
	return &Audio{
		PCM:    pcm,
		Format: Format{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans), BitDepth: 16},
	}, nil
}

// IntBuffer converts 16-bit PCM into a go-audio buffer.
func (a *Audio) IntBuffer() *audio.IntBuffer {
	n := len(a.PCM) / 2
	data := make([]int, n)
	for i := 0; i < n; i++ {
		data[i] = int(int16(binary.LittleEndian.Uint16(a.PCM[2*i:])))
	}
	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: a.Format.Channels, SampleRate: a.Format.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
}

// EncodeWAV writes the audio as a 16-bit PCM WAV file.
func (a *Audio) EncodeWAV(w io.WriteSeeker) error {
	if a.Format.BitDepth != 16 {
		return fmt.Errorf("tts: unsupported bit depth %d", a.Format.BitDepth)
	}
	enc := wav.NewEncoder(w, a.Format.SampleRate, 16, a.Format.Channels, 1)
	if err := enc.Write(a.IntBuffer()); err != nil {
		enc.Close()
		return fmt.Errorf("tts: encode wav: %w", err)
	}
	return enc.Close()
}
