package audio

import (
	"math"
	"sync"
	"time"
)

// VADConfig controls the energy-based voice activity detector.
type VADConfig struct {
	SpeechThresholdDB   float64
	SampleRate          int
	CalibrationDuration time.Duration // noise floor calibration window (0 = disabled)
	AdaptiveMarginDB    float64       // dB above noise floor for speech threshold
}

// DefaultVADConfig returns sensible defaults for call center audio.
func DefaultVADConfig() VADConfig {
	return VADConfig{
		SpeechThresholdDB:   -30,
		SampleRate:          16000,
		CalibrationDuration: 500 * time.Millisecond,
		AdaptiveMarginDB:    10,
	}
}

// EnergyVAD implements capability.VAD as a per-chunk energy threshold test
// with adaptive noise-floor calibration. Unlike the donor's VAD, it owns no
// audio buffer and makes no segment-boundary decisions of its own — that
// responsibility belongs to package audioinput's Buffer/SegmentDetector,
// matching how the Python original separates "is this chunk speech" from
// "should we flush the segment".
type EnergyVAD struct {
	cfg VADConfig

	mu                  sync.Mutex
	calibrating         bool
	calibrationStart    time.Time
	calibrationReadings []float64
	threshold           float64
}

// NewEnergyVAD creates an EnergyVAD with the given config.
func NewEnergyVAD(cfg VADConfig) *EnergyVAD {
	return &EnergyVAD{
		cfg:         cfg,
		calibrating: cfg.CalibrationDuration > 0,
		threshold:   cfg.SpeechThresholdDB,
	}
}

// Detect decodes a raw PCM16 chunk and reports whether its energy exceeds
// the (possibly adaptively calibrated) speech threshold.
func (v *EnergyVAD) Detect(chunk []byte) (bool, error) {
	samples := DecodePCM(chunk)
	energyDB := computeEnergyDB(samples)
	now := time.Now()

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.calibrating {
		v.calibrate(energyDB, now)
	}
	return energyDB >= v.threshold, nil
}

// Reset clears any adaptive calibration state, restarting calibration from
// the static default threshold.
func (v *EnergyVAD) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calibrating = v.cfg.CalibrationDuration > 0
	v.calibrationStart = time.Time{}
	v.calibrationReadings = nil
	v.threshold = v.cfg.SpeechThresholdDB
}

// calibrate collects energy readings during the calibration window, then
// computes the noise floor and sets the adaptive speech threshold. Caller
// holds v.mu.
func (v *EnergyVAD) calibrate(energyDB float64, now time.Time) {
	if v.calibrationStart.IsZero() {
		v.calibrationStart = now
	}
	v.calibrationReadings = append(v.calibrationReadings, energyDB)

	if now.Sub(v.calibrationStart) < v.cfg.CalibrationDuration {
		return
	}

	var sum float64
	for _, e := range v.calibrationReadings {
		sum += e
	}
	noiseFloor := sum / float64(len(v.calibrationReadings))

	adaptive := noiseFloor + v.cfg.AdaptiveMarginDB
	if adaptive > v.cfg.SpeechThresholdDB {
		v.threshold = adaptive
	}

	v.calibrating = false
	v.calibrationReadings = nil
}

func computeEnergyDB(samples []float32) float64 {
	if len(samples) == 0 {
		return -100
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms < 1e-10 {
		return -100
	}
	return 20 * math.Log10(rms)
}
