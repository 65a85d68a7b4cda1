package transport

import (
	"fmt"
	"math/rand/v2"
)

// Sampler is the random source behind loss and corruption draws.
// *rand.Rand from math/rand/v2 satisfies it.
type Sampler interface {
	IntN(n int) int
}

type globalSampler struct{}

func (globalSampler) IntN(n int) int { return rand.IntN(n) }

// DefaultSampler draws from the math/rand/v2 global source.
var DefaultSampler Sampler = globalSampler{}

// Impairment holds the simulated loss and corruption probabilities applied
// to an outgoing frame. The zero value never impairs.
type Impairment struct {
	LossProbability       float64
	CorruptionProbability float64
}

// NoImpairment sends every frame untouched.
var NoImpairment = Impairment{}

// Percentages converts both probabilities to whole percentages by
// truncation, so 0.5 becomes 50 and 0.999 becomes 99.
func (i Impairment) Percentages() (loss, corruption int) {
	return int(i.LossProbability * 100), int(i.CorruptionProbability * 100)
}

// Draw takes two independent samples in 1..100. The frame is lost when the
// first falls within the loss percentage and corrupted when the second falls
// within the corruption percentage.
func (i Impairment) Draw(s Sampler) (lost, corrupted bool) {
	lossPct, corruptPct := i.Percentages()
	lost = s.IntN(100)+1 <= lossPct
	corrupted = s.IntN(100)+1 <= corruptPct
	return lost, corrupted
}

func (i Impairment) String() string {
	return fmt.Sprintf("loss=%.2f corruption=%.2f", i.LossProbability, i.CorruptionProbability)
}

// OutcomeKind classifies a SendFrame call.
type OutcomeKind int

const (
	// OutcomeSent means the frame went out untouched.
	OutcomeSent OutcomeKind = iota
	// OutcomeLost means nothing was transmitted.
	OutcomeLost
	// OutcomeCorrupted means the frame went out with the corruption flag forced.
	OutcomeCorrupted
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSent:
		return "sent"
	case OutcomeLost:
		return "lost"
	case OutcomeCorrupted:
		return "corrupted"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the result of SendFrame. Bytes is zero when Kind is OutcomeLost.
type Outcome struct {
	Kind  OutcomeKind
	Bytes int
}

// Clean reports whether the frame reached the wire unimpaired.
func (o Outcome) Clean() bool { return o.Kind == OutcomeSent }

func (o Outcome) String() string {
	if o.Kind == OutcomeLost {
		return o.Kind.String()
	}
	return fmt.Sprintf("%s(%d bytes)", o.Kind, o.Bytes)
}
