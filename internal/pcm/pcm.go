// Package pcm decodes raw signed 16-bit PCM into normalized sample buffers.
package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// DefaultSampleRate is the rate assumed for remote audio when none is declared.
const DefaultSampleRate = 24000

// BitDepth of the wire format.
const BitDepth = 16

// ErrInvalidFormat is returned when the declared format cannot describe audio.
var ErrInvalidFormat = errors.New("invalid PCM format")

// Format describes interleaved PCM audio.
type Format struct {
	SampleRate int
	Channels   int
}

// DefaultFormat returns the format of remote synthesis output.
func DefaultFormat() Format {
	return Format{SampleRate: DefaultSampleRate, Channels: 1}
}

// BytesPerFrame returns the byte width of one sample across all channels.
func (f Format) BytesPerFrame() int {
	return BitDepth / 8 * f.Channels
}

// Validate reports whether f can be decoded.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrInvalidFormat, f.SampleRate)
	}
	if f.Channels < 1 {
		return fmt.Errorf("%w: %d channels", ErrInvalidFormat, f.Channels)
	}
	return nil
}

// Buffer holds de-interleaved normalized samples. Every channel has the same
// length.
type Buffer struct {
	SampleRate int
	Channels   [][]float32
}

// Frames returns the number of samples per channel.
func (b *Buffer) Frames() int {
	if b == nil || len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the playback length of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate == 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// Decode interprets raw as signed 16-bit little-endian PCM. A dangling odd
// byte is dropped. Samples are divided by 32768 and split into channels of
// floor(samples/channels) frames each.
func Decode(raw []byte, sampleRate, channels int) (*Buffer, error) {
	if err := (Format{SampleRate: sampleRate, Channels: channels}).Validate(); err != nil {
		return nil, err
	}

	total := len(raw) / 2
	frames := total / channels

	buf := &Buffer{
		SampleRate: sampleRate,
		Channels:   make([][]float32, channels),
	}
	for ch := range buf.Channels {
		buf.Channels[ch] = make([]float32, frames)
	}

	for i := 0; i < frames*channels; i++ {
		s := int16(binary.LittleEndian.Uint16(raw[i*2:]))
		buf.Channels[i%channels][i/channels] = float32(s) / 32768
	}
	return buf, nil
}

// DecodeBase64 decodes a base64 transport payload and then the PCM inside it.
func DecodeBase64(payload string, sampleRate, channels int) (*Buffer, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("unable to decode audio payload: %w", err)
	}
	return Decode(raw, sampleRate, channels)
}

// Float32LE interleaves the buffer as little-endian float32 frames.
func (b *Buffer) Float32LE() []byte {
	frames := b.Frames()
	out := make([]byte, frames*len(b.Channels)*4)
	o := 0
	for i := 0; i < frames; i++ {
		for _, ch := range b.Channels {
			binary.LittleEndian.PutUint32(out[o:], math.Float32bits(ch[i]))
			o += 4
		}
	}
	return out
}

// Resample converts the buffer to rate using linear interpolation. The
// channel layout is kept.
func (b *Buffer) Resample(rate int) (*Buffer, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrInvalidFormat, rate)
	}
	if rate == b.SampleRate {
		return b, nil
	}

	ratio := float64(b.SampleRate) / float64(rate)
	frames := int(float64(b.Frames()) / ratio)

	out := &Buffer{SampleRate: rate, Channels: make([][]float32, len(b.Channels))}
	for c, in := range b.Channels {
		dst := make([]float32, frames)
		for i := range dst {
			pos := float64(i) * ratio
			j := int(pos)
			if j+1 >= len(in) {
				dst[i] = in[len(in)-1]
				continue
			}
			frac := float32(pos - float64(j))
			dst[i] = in[j]*(1-frac) + in[j+1]*frac
		}
		out.Channels[c] = dst
	}
	return out, nil
}

// Remix returns a buffer with the given channel count. Mono input is copied to
// every output channel; anything else is averaged down to mono first.
func (b *Buffer) Remix(channels int) (*Buffer, error) {
	if channels < 1 {
		return nil, fmt.Errorf("%w: %d channels", ErrInvalidFormat, channels)
	}
	if channels == len(b.Channels) {
		return b, nil
	}

	mono := b.Channels[0]
	if len(b.Channels) > 1 {
		mono = make([]float32, b.Frames())
		for _, ch := range b.Channels {
			for i, s := range ch {
				mono[i] += s / float32(len(b.Channels))
			}
		}
	}

	out := &Buffer{SampleRate: b.SampleRate, Channels: make([][]float32, channels)}
	for c := range out.Channels {
		out.Channels[c] = mono
	}
	return out, nil
}
