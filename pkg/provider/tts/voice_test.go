package tts

import "testing"

func TestNewVoiceConfig_Defaults(t *testing.T) {
	v, err := NewVoiceConfig(VoiceParams{})
	if err != nil {
		t.Fatalf("zero params rejected: %v", err)
	}
	if v.Name() != DefaultVoiceName {
		t.Fatalf("name = %q, want default", v.Name())
	}
	if v.Speed() != 1.0 || v.Volume() != 100 || v.Style() != StyleDefault || v.StyleDegree() != 1.0 {
		t.Fatalf("defaults = %+v", v)
	}
	if v.Provider() != "elevenlabs" {
		t.Fatalf("provider = %q", v.Provider())
	}
}

func TestNewVoiceConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		params  VoiceParams
		wantErr bool
	}{
		{"valid full", VoiceParams{Name: "v", Speed: 1.5, Pitch: 20, Volume: 80, Style: StyleCheerful, StyleDegree: 1.2}, false},
		{"speed low", VoiceParams{Speed: 0.4}, true},
		{"speed high", VoiceParams{Speed: 2.1}, true},
		{"speed boundary low", VoiceParams{Speed: 0.5}, false},
		{"speed boundary high", VoiceParams{Speed: 2.0}, false},
		{"pitch low", VoiceParams{Pitch: -101}, true},
		{"pitch high", VoiceParams{Pitch: 101}, true},
		{"volume high", VoiceParams{Volume: 101}, true},
		{"volume negative", VoiceParams{Volume: -1}, true},
		{"style degree low", VoiceParams{StyleDegree: 0.005}, true},
		{"style degree high", VoiceParams{StyleDegree: 2.5}, true},
	}
	for _, tt := range tests {
		_, err := NewVoiceConfig(tt.params)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}
