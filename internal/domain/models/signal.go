package models

import "fmt"

// Instrument identifies a tradable asset shown on the dashboard.
type Instrument string

const (
	InstrumentGold  Instrument = "XAU"
	InstrumentUS10Y Instrument = "US10Y"
	InstrumentSPX   Instrument = "SPX"
)

// Valid reports whether i is a known instrument.
func (i Instrument) Valid() bool {
	switch i {
	case InstrumentGold, InstrumentUS10Y, InstrumentSPX:
		return true
	default:
		return false
	}
}

// SignalKind is the strength label displayed next to an instrument.
type SignalKind string

const (
	SignalStrongBuy  SignalKind = "STRONG BUY"
	SignalBuy        SignalKind = "BUY"
	SignalHold       SignalKind = "HOLD"
	SignalSell       SignalKind = "SELL"
	SignalStrongSell SignalKind = "STRONG SELL"
)

// Valid reports whether k is a known signal kind.
func (k SignalKind) Valid() bool {
	switch k {
	case SignalStrongBuy, SignalBuy, SignalHold, SignalSell, SignalStrongSell:
		return true
	default:
		return false
	}
}

// DNATotal is the sum every DNA triple must add up to for display.
const DNATotal = 100

// SignalUpdate is a transient signal change produced by a rule match.
type SignalUpdate struct {
	Instrument Instrument
	Signal     SignalKind
	Conviction int
	DNA        [3]int // macro, technical, sentiment
	Analysis   string
}

// Validate checks enum membership, conviction range and the DNA total.
func (u SignalUpdate) Validate() error {
	if !u.Instrument.Valid() {
		return fmt.Errorf("unknown instrument %q", u.Instrument)
	}
	if !u.Signal.Valid() {
		return fmt.Errorf("unknown signal %q", u.Signal)
	}
	if u.Conviction < 1 || u.Conviction > 10 {
		return fmt.Errorf("conviction %d out of range 1-10", u.Conviction)
	}
	sum := 0
	for _, w := range u.DNA {
		if w < 0 {
			return fmt.Errorf("negative dna weight %d", w)
		}
		sum += w
	}
	if sum != DNATotal {
		return fmt.Errorf("dna weights sum to %d, want %d", sum, DNATotal)
	}
	return nil
}
