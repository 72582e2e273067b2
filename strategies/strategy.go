// Package strategies is the library of daily setups. Each strategy finds
// its setup days in an indicator frame, derives support and resistance
// bands for a setup, supplies the window A/B confirmation text and the
// invalidation list, and runs an event study over its historical setups.
package strategies

import (
	"fmt"
	"strings"

	"github.com/rustyeddy/ashare/evaluate"
	"github.com/rustyeddy/ashare/indicators"
	"github.com/rustyeddy/ashare/risk"
)

// Setup is one day on which a strategy's pattern occurred.
type Setup struct {
	Idx  int    `json:"idx"`
	Note string `json:"note"`
}

// Bands are the key support (S1, S2) and resistance (R1, R2) levels.
type Bands struct {
	S1      float64 `json:"S1"`
	S2      float64 `json:"S2"`
	R1      float64 `json:"R1"`
	R2      float64 `json:"R2"`
	Anchors float64 `json:"anchors"`
}

// ConfirmText is what to look for in execution windows A and B.
type ConfirmText struct {
	WindowA string `json:"window_A_text"`
	WindowB string `json:"window_B_text"`
}

// Strategy is the surface every setup exposes.
type Strategy interface {
	ID() string
	Name() string
	// ObserveOnly strategies never produce an executable plan.
	ObserveOnly() bool
	Detect(f *indicators.Frame) []Setup
	KeyBands(f *indicators.Frame, s Setup) Bands
	Confirm(s Setup, q risk.Grade) ConfirmText
	Invalidation(s Setup) []string
	EventStudy(f *indicators.Frame, setups []Setup) evaluate.EventStats
}

var (
	registry = make(map[string]Strategy)
	order    []string
)

// Register adds s under its ID. Registering an ID twice replaces the
// strategy but keeps its original position.
func Register(s Strategy) {
	if _, ok := registry[s.ID()]; !ok {
		order = append(order, s.ID())
	}
	registry[s.ID()] = s
}

// Get returns the strategy registered as id, case-insensitively.
func Get(id string) (Strategy, error) {
	s, ok := registry[strings.ToUpper(strings.TrimSpace(id))]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (supported: %s)", id, strings.Join(order, ", "))
	}
	return s, nil
}

// All returns every registered strategy in registration order.
func All() []Strategy {
	out := make([]Strategy, len(order))
	for i, id := range order {
		out[i] = registry[id]
	}
	return out
}

// IDs lists the registered strategy ids in order.
func IDs() []string {
	return append([]string(nil), order...)
}

// Latest returns the last setup, if any.
func Latest(setups []Setup) (Setup, bool) {
	if len(setups) == 0 {
		return Setup{}, false
	}
	return setups[len(setups)-1], true
}
