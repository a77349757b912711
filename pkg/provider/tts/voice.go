package tts

import "fmt"

// Style enumerates the speaking styles the synthesis layer understands.
// Providers that do not support a style fall back to neutral delivery.
type Style string

const (
	StyleDefault   Style = "default"
	StyleCheerful  Style = "cheerful"
	StyleSad       Style = "sad"
	StyleAngry     Style = "angry"
	StyleFriendly  Style = "friendly"
	StyleTerrified Style = "terrified"
	StyleExcited   Style = "excited"
	StyleHopeful   Style = "hopeful"
)

// DefaultVoiceName is used when an agent has no voice configured.
const DefaultVoiceName = "es-MX-DaliaNeural"

// VoiceConfig is the immutable voice configuration value object. Construct
// via NewVoiceConfig so the range invariants always hold.
type VoiceConfig struct {
	name        string
	speed       float64
	pitch       int
	volume      int
	style       Style
	styleDegree float64
	provider    string
}

// VoiceParams is the raw input to NewVoiceConfig. Zero-valued fields take
// their documented defaults before validation.
type VoiceParams struct {
	Name        string
	Speed       float64 // 0.5–2.0, default 1.0
	Pitch       int     // -100–+100 Hz offset, default 0
	Volume      int     // 0–100, default 100
	Style       Style   // default StyleDefault
	StyleDegree float64 // 0.01–2.0, default 1.0
	Provider    string  // default "elevenlabs"
}

// NewVoiceConfig validates p and returns the voice configuration.
func NewVoiceConfig(p VoiceParams) (VoiceConfig, error) {
	if p.Name == "" {
		p.Name = DefaultVoiceName
	}
	if p.Speed == 0 {
		p.Speed = 1.0
	}
	if p.Volume == 0 {
		p.Volume = 100
	}
	if p.Style == "" {
		p.Style = StyleDefault
	}
	if p.StyleDegree == 0 {
		p.StyleDegree = 1.0
	}
	if p.Provider == "" {
		p.Provider = "elevenlabs"
	}

	if p.Speed < 0.5 || p.Speed > 2.0 {
		return VoiceConfig{}, fmt.Errorf("tts: speed must be in [0.5, 2.0], got %g", p.Speed)
	}
	if p.Pitch < -100 || p.Pitch > 100 {
		return VoiceConfig{}, fmt.Errorf("tts: pitch must be in [-100, 100] Hz, got %d", p.Pitch)
	}
	if p.Volume < 0 || p.Volume > 100 {
		return VoiceConfig{}, fmt.Errorf("tts: volume must be in [0, 100], got %d", p.Volume)
	}
	if p.StyleDegree < 0.01 || p.StyleDegree > 2.0 {
		return VoiceConfig{}, fmt.Errorf("tts: style degree must be in [0.01, 2.0], got %g", p.StyleDegree)
	}

	return VoiceConfig{
		name:        p.Name,
		speed:       p.Speed,
		pitch:       p.Pitch,
		volume:      p.Volume,
		style:       p.Style,
		styleDegree: p.StyleDegree,
		provider:    p.Provider,
	}, nil
}

// Name returns the provider voice identifier.
func (v VoiceConfig) Name() string { return v.name }

// Speed returns the speech rate multiplier.
func (v VoiceConfig) Speed() float64 { return v.speed }

// Pitch returns the pitch offset in Hz.
func (v VoiceConfig) Pitch() int { return v.pitch }

// Volume returns the volume level in [0, 100].
func (v VoiceConfig) Volume() int { return v.volume }

// Style returns the speaking style.
func (v VoiceConfig) Style() Style { return v.style }

// StyleDegree returns the style intensity.
func (v VoiceConfig) StyleDegree() float64 { return v.styleDegree }

// Provider returns the owning TTS provider name.
func (v VoiceConfig) Provider() string { return v.provider }

// String implements fmt.Stringer for log output.
func (v VoiceConfig) String() string {
	return fmt.Sprintf("%s (speed=%.2f pitch=%+d style=%s)", v.name, v.speed, v.pitch, v.style)
}
