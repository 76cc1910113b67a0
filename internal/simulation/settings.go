// Package simulation drives the engine with seeded synthetic agents and keeps
// a cash and position ledger for each of them.
package simulation

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ismaeelbashir03/OrderBookSimulation/internal/domain"
)

// ErrInvalidSettings is wrapped by every validation failure.
var ErrInvalidSettings = errors.New("invalid simulation settings")

// Settings control how agents behave. Percentages are whole numbers out of
// 100.
type Settings struct {
	StartingCash     decimal.Decimal
	StartingHoldings int64

	// MakeOrderWhenIdle is the chance to add an order with nothing pending.
	MakeOrderWhenIdle int
	// OrderSize is the share of what the wallet allows that one order may use.
	OrderSize float64

	// With pending orders an agent cancels, modifies or adds.
	CancelChance int
	ModifyChance int
	AddChance    int

	// NoPriceOffer is quoted when the relevant side of the book is empty.
	NoPriceOffer domain.Price

	BiasFactor         float64
	OppositeBiasChance int

	// UseFairPrice quotes around FairPrice instead of the book.
	UseFairPrice bool
	FairPrice    domain.Price
}

// DefaultSettings quote around a fair price of 100.
func DefaultSettings() Settings {
	return Settings{
		StartingCash:       decimal.NewFromInt(10000),
		StartingHoldings:   50,
		MakeOrderWhenIdle:  50,
		OrderSize:          0.8,
		CancelChance:       10,
		ModifyChance:       30,
		AddChance:          60,
		NoPriceOffer:       100,
		BiasFactor:         0.05,
		OppositeBiasChance: 1,
		UseFairPrice:       true,
		FairPrice:          100,
	}
}

// Validate rejects settings no agent could act on.
func (s Settings) Validate() error {
	switch {
	case s.StartingCash.IsNegative():
		return fmt.Errorf("%w: starting cash %s is negative", ErrInvalidSettings, s.StartingCash)
	case s.StartingHoldings < 0:
		return fmt.Errorf("%w: starting holdings %d is negative", ErrInvalidSettings, s.StartingHoldings)
	case !isPercent(s.MakeOrderWhenIdle):
		return fmt.Errorf("%w: make order chance %d outside [0,100]", ErrInvalidSettings, s.MakeOrderWhenIdle)
	case s.OrderSize <= 0 || s.OrderSize > 1:
		return fmt.Errorf("%w: order size %g outside (0,1]", ErrInvalidSettings, s.OrderSize)
	case !isPercent(s.CancelChance) || !isPercent(s.ModifyChance) || !isPercent(s.AddChance):
		return fmt.Errorf("%w: pending actions must be percentages", ErrInvalidSettings)
	case s.CancelChance+s.ModifyChance+s.AddChance != 100:
		return fmt.Errorf("%w: pending actions sum to %d, want 100", ErrInvalidSettings,
			s.CancelChance+s.ModifyChance+s.AddChance)
	case s.NoPriceOffer <= 0:
		return fmt.Errorf("%w: no price offer must be positive", ErrInvalidSettings)
	case s.BiasFactor < 0 || s.BiasFactor >= 1:
		return fmt.Errorf("%w: bias factor %g outside [0,1)", ErrInvalidSettings, s.BiasFactor)
	case !isPercent(s.OppositeBiasChance):
		return fmt.Errorf("%w: opposite bias chance %d outside [0,100]", ErrInvalidSettings, s.OppositeBiasChance)
	case s.UseFairPrice && s.FairPrice <= 0:
		return fmt.Errorf("%w: fair price must be positive", ErrInvalidSettings)
	}
	return nil
}

func isPercent(v int) bool { return v >= 0 && v <= 100 }

// RunConfig sizes one simulation run.
type RunConfig struct {
	Seed        uint64
	Agents      int
	Days        int
	TicksPerDay int
	Settings    Settings
}

// DefaultRunConfig is one day of 1000 agents seeded with 1234.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Seed:        1234,
		Agents:      1000,
		Days:        1,
		TicksPerDay: 10,
		Settings:    DefaultSettings(),
	}
}

// Validate checks the run shape and the agent settings.
func (c RunConfig) Validate() error {
	if c.Agents <= 0 {
		return fmt.Errorf("%w: agents must be positive, got %d", ErrInvalidSettings, c.Agents)
	}
	if c.Days < 0 {
		return fmt.Errorf("%w: days must not be negative, got %d", ErrInvalidSettings, c.Days)
	}
	if c.TicksPerDay <= 0 {
		return fmt.Errorf("%w: ticks per day must be positive, got %d", ErrInvalidSettings, c.TicksPerDay)
	}
	return c.Settings.Validate()
}
