// Package opus wraps github.com/drgolem/go-opus the same way
// pkg/decoders/flac wraps github.com/drgolem/go-flac: both are cgo
// bindings from the same author exposing an Open/GetFormat/
// DecodeSamples shape over the underlying codec library (libopusfile
// here, libFLAC there).
package opus

import (
	"fmt"

	goopus "github.com/drgolem/go-opus/opus"
)

// Decoder wraps the go-opus Ogg Opus decoder.
type Decoder struct {
	decoder  *goopus.OggOpusDecoder
	rate     int
	channels int
	bps      int
}

// NewDecoder creates a new Opus decoder. go-opus always produces
// 16-bit PCM, matching Opus's native output precision.
func NewDecoder() *Decoder {
	return &Decoder{bps: 16}
}

// Open opens and initializes an Ogg Opus file for decoding.
func (d *Decoder) Open(fileName string) error {
	decoder, err := goopus.NewOggOpusDecoder(fileName)
	if err != nil {
		return fmt.Errorf("opus: open %s: %w", fileName, err)
	}

	rate, channels := decoder.GetFormat()

	d.decoder = decoder
	d.rate = rate
	d.channels = channels
	return nil
}

// Close closes the decoder and releases resources.
func (d *Decoder) Close() error {
	if d.decoder != nil {
		d.decoder.Close()
		d.decoder = nil
	}
	return nil
}

// GetFormat returns the audio format (rate, channels, bits per sample).
func (d *Decoder) GetFormat() (int, int, int) {
	return d.rate, d.channels, d.bps
}

// DecodeSamples decodes up to samples frames into audio.
func (d *Decoder) DecodeSamples(samples int, audio []byte) (int, error) {
	if d.decoder == nil {
		return 0, fmt.Errorf("decoder not initialized")
	}
	return d.decoder.DecodeSamples(samples, audio)
}
