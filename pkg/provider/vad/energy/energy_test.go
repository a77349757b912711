package energy

import (
	"math"
	"testing"
)

// tone generates n samples of a sine at the given amplitude.
func tone(n int, amplitude float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amplitude * math.Sin(float64(i)*0.3))
	}
	return out
}

func newCalibrated(t *testing.T) *session {
	t.Helper()
	s, err := New().NewSession()
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	sess := s.(*session)
	// Calibrate on near-silence.
	for range calibrationChunks {
		if _, err := sess.Score(tone(512, 0.0005), 16000); err != nil {
			t.Fatalf("calibration score: %v", err)
		}
	}
	return sess
}

func TestScore_SpeechAboveSilence(t *testing.T) {
	sess := newCalibrated(t)

	var loud float64
	for range 5 {
		var err error
		loud, err = sess.Score(tone(512, 0.5), 16000)
		if err != nil {
			t.Fatalf("score: %v", err)
		}
	}
	if loud < 0.5 {
		t.Fatalf("loud speech score = %g, want > 0.5", loud)
	}

	sess.Reset()
	quiet, _ := sess.Score(tone(512, 0.0005), 16000)
	if quiet > 0.35 {
		t.Fatalf("near-silence score = %g, want < 0.35", quiet)
	}
}

func TestScore_RangeAndValidation(t *testing.T) {
	sess := newCalibrated(t)

	for _, amp := range []float64{0, 0.001, 0.1, 1.0} {
		score, err := sess.Score(tone(512, amp), 16000)
		if err != nil {
			t.Fatalf("score: %v", err)
		}
		if score < 0 || score > 1 {
			t.Fatalf("score %g out of [0,1]", score)
		}
	}

	if _, err := sess.Score(nil, 16000); err == nil {
		t.Fatal("empty chunk accepted")
	}
	if _, err := sess.Score(tone(512, 0.1), 0); err == nil {
		t.Fatal("zero sample rate accepted")
	}
}

func TestScore_CalibrationReturnsZero(t *testing.T) {
	s, _ := New().NewSession()
	for i := range calibrationChunks {
		score, err := s.Score(tone(512, 0.9), 16000)
		if err != nil {
			t.Fatalf("score: %v", err)
		}
		if score != 0 {
			t.Fatalf("calibration chunk %d scored %g, want 0", i, score)
		}
	}
}

func TestScore_ClosedSession(t *testing.T) {
	s, _ := New().NewSession()
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := s.Score(tone(512, 0.1), 16000); err == nil {
		t.Fatal("closed session accepted a chunk")
	}
}
