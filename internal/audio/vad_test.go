package audio

import (
	"encoding/binary"
	"testing"
	"time"
)

func pcmChunk(amplitude int16, n int) []byte {
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(amplitude))
	}
	return buf
}

func TestEnergyVADSilenceVsSpeech(t *testing.T) {
	cfg := VADConfig{SpeechThresholdDB: -30, SampleRate: 16000}
	v := NewEnergyVAD(cfg)

	silence := pcmChunk(0, 320)
	isSpeech, err := v.Detect(silence)
	if err != nil {
		t.Fatalf("Detect(silence): %v", err)
	}
	if isSpeech {
		t.Error("silence should not be detected as speech")
	}

	loud := pcmChunk(20000, 320)
	isSpeech, err = v.Detect(loud)
	if err != nil {
		t.Fatalf("Detect(loud): %v", err)
	}
	if !isSpeech {
		t.Error("loud signal should be detected as speech")
	}
}

func TestEnergyVADAdaptiveCalibration(t *testing.T) {
	cfg := VADConfig{
		SpeechThresholdDB:   -30,
		SampleRate:          16000,
		CalibrationDuration: 1 * time.Millisecond,
		AdaptiveMarginDB:    10,
	}
	v := NewEnergyVAD(cfg)

	quiet := pcmChunk(500, 320)
	v.Detect(quiet)
	time.Sleep(2 * time.Millisecond)
	v.Detect(quiet)

	v.mu.Lock()
	calibrating := v.calibrating
	threshold := v.threshold
	v.mu.Unlock()

	if calibrating {
		t.Error("calibration should have completed after the calibration window elapsed")
	}
	if threshold <= cfg.SpeechThresholdDB {
		t.Errorf("adaptive threshold %v should have risen above the static default %v for a quiet noise floor", threshold, cfg.SpeechThresholdDB)
	}
}

func TestEnergyVADResetRestartsCalibration(t *testing.T) {
	cfg := VADConfig{
		SpeechThresholdDB:   -30,
		CalibrationDuration: 1 * time.Millisecond,
		AdaptiveMarginDB:    10,
	}
	v := NewEnergyVAD(cfg)

	v.Detect(pcmChunk(500, 320))
	time.Sleep(2 * time.Millisecond)
	v.Detect(pcmChunk(500, 320))

	v.Reset()

	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.calibrating {
		t.Error("Reset should restart calibration")
	}
	if v.threshold != cfg.SpeechThresholdDB {
		t.Errorf("Reset should restore the static threshold, got %v", v.threshold)
	}
}

func TestComputeEnergyDBEmptyIsFloor(t *testing.T) {
	if got := computeEnergyDB(nil); got != -100 {
		t.Errorf("computeEnergyDB(nil) = %v, want -100", got)
	}
}
