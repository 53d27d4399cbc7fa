package logic

import "github.com/chewxy/math32"

const (
	// VoltageFactor converts raw ADC counts to mains volts for the
	// resistive divider on the sense board.
	VoltageFactor float32 = 0.465

	// ADCMax is the largest raw count the sampler accepts.
	ADCMax = 1023
)

// Sampler converts raw ADC counts to a calibrated voltage.
type Sampler struct {
	Factor float32
}

// NewSampler returns a sampler using VoltageFactor.
func NewSampler() Sampler {
	return Sampler{Factor: VoltageFactor}
}

// Sample scales raw into volts. Raw counts outside [0, ADCMax] are clamped
// and reported through clamped.
func (s Sampler) Sample(raw int) (volts float32, clamped bool) {
	r := math32.Min(math32.Max(float32(raw), 0), ADCMax)
	clamped = r != float32(raw)
	return r * s.Factor, clamped
}

// RoundVolts rounds v to one decimal place for display.
func RoundVolts(v float32) float32 {
	if math32.IsNaN(v) || math32.IsInf(v, 0) {
		return 0
	}
	return math32.Floor(v*10+0.5) / 10
}
