// Package audio provides the audio format value object and the codec helpers
// used on the transport boundary: G.711 μ-law/A-law for telephony streams and
// PCM16 conversion for the VAD stage.
package audio

import "fmt"

// Encoding identifies how samples are encoded on the wire.
type Encoding string

const (
	EncodingPCM   Encoding = "pcm"
	EncodingMuLaw Encoding = "mulaw"
	EncodingALaw  Encoding = "alaw"
)

// Format is an immutable audio format specification. Construct via NewFormat
// or one of the client factories so the invariants always hold.
type Format struct {
	sampleRate    int
	channels      int
	bitsPerSample int
	encoding      Encoding
}

var validSampleRates = map[int]bool{
	8000: true, 16000: true, 22050: true, 24000: true, 44100: true, 48000: true,
}

var validBits = map[int]bool{8: true, 16: true, 24: true, 32: true}

// NewFormat validates and constructs a Format.
func NewFormat(sampleRate, channels, bitsPerSample int, encoding Encoding) (Format, error) {
	if !validSampleRates[sampleRate] {
		return Format{}, fmt.Errorf("audio: invalid sample rate %d", sampleRate)
	}
	if channels < 1 || channels > 2 {
		return Format{}, fmt.Errorf("audio: invalid channel count %d", channels)
	}
	if !validBits[bitsPerSample] {
		return Format{}, fmt.Errorf("audio: invalid bits per sample %d", bitsPerSample)
	}
	switch encoding {
	case EncodingPCM, EncodingMuLaw, EncodingALaw:
	default:
		return Format{}, fmt.Errorf("audio: invalid encoding %q", encoding)
	}
	return Format{
		sampleRate:    sampleRate,
		channels:      channels,
		bitsPerSample: bitsPerSample,
		encoding:      encoding,
	}, nil
}

// ForBrowser returns the browser format: 24 kHz PCM16 mono. The frontend
// captures microphone audio at 24 kHz via an AudioWorklet and ships it
// base64-encoded inside JSON media events.
func ForBrowser() Format {
	return Format{sampleRate: 24000, channels: 1, bitsPerSample: 16, encoding: EncodingPCM}
}

// ForTelephony returns the telephony standard: 8 kHz μ-law mono.
func ForTelephony() Format {
	return Format{sampleRate: 8000, channels: 1, bitsPerSample: 8, encoding: EncodingMuLaw}
}

// ForClient maps a transport label to its preset format. Unknown client
// types fall back to telephony, the conservative default.
func ForClient(clientType string) Format {
	switch clientType {
	case "browser":
		return ForBrowser()
	case "twilio", "telnyx":
		return ForTelephony()
	default:
		return ForTelephony()
	}
}

// SampleRate returns the sampling rate in Hz.
func (f Format) SampleRate() int { return f.sampleRate }

// Channels returns the channel count (1 mono, 2 stereo).
func (f Format) Channels() int { return f.channels }

// BitsPerSample returns the sample depth in bits.
func (f Format) BitsPerSample() int { return f.bitsPerSample }

// Encoding returns the wire encoding.
func (f Format) Encoding() Encoding { return f.encoding }

// IsTelephony reports whether f is an 8 kHz G.711 format.
func (f Format) IsTelephony() bool {
	return f.sampleRate == 8000 && (f.encoding == EncodingMuLaw || f.encoding == EncodingALaw)
}

// IsBrowser reports whether f is the 24 kHz PCM browser format.
func (f Format) IsBrowser() bool {
	return f.sampleRate == 24000 && f.encoding == EncodingPCM
}

// BytesPerSecond returns the stream bandwidth for this format.
func (f Format) BytesPerSecond() int {
	return f.sampleRate * f.channels * f.bitsPerSample / 8
}

// String implements fmt.Stringer for log output.
func (f Format) String() string {
	return fmt.Sprintf("%s@%dHz/%dbit/%dch", f.encoding, f.sampleRate, f.bitsPerSample, f.channels)
}
