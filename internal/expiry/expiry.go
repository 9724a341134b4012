// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

// Package expiry computes expiration instants from an amount and a time unit.
package expiry

import (
	"strconv"
	"time"

	"github.com/samber/oops"
)

// Unit is a time unit accepted by Compute.
type Unit string

// Supported units.
const (
	Second Unit = "second"
	Minute Unit = "minute"
	Hour   Unit = "hour"
	Day    Unit = "day"
)

// ErrUnknownUnit is returned when a unit is not one of the supported units.
var ErrUnknownUnit = oops.Code("EXPIRY_UNKNOWN_UNIT").Errorf("unknown time unit")

// Valid reports whether u is a supported unit.
func (u Unit) Valid() bool {
	switch u {
	case Second, Minute, Hour, Day:
		return true
	}
	return false
}

// Compute returns base advanced by amount units. Days are calendar days.
func Compute(base time.Time, amount int, unit Unit) (time.Time, error) {
	switch unit {
	case Second:
		return base.Add(time.Duration(amount) * time.Second), nil
	case Minute:
		return base.Add(time.Duration(amount) * time.Minute), nil
	case Hour:
		return base.Add(time.Duration(amount) * time.Hour), nil
	case Day:
		return base.AddDate(0, 0, amount), nil
	}
	return time.Time{}, oops.Code("EXPIRY_UNKNOWN_UNIT").
		With("unit", string(unit)).
		Wrap(ErrUnknownUnit)
}

// Policy is a configured lifetime, e.g. {30, day}.
type Policy struct {
	Amount int  `koanf:"amount" yaml:"amount" json:"amount" jsonschema:"minimum=1"`
	Unit   Unit `koanf:"unit" yaml:"unit" json:"unit" jsonschema:"enum=second,enum=minute,enum=hour,enum=day"`
}

// Default lifetimes.
var (
	DefaultSession = Policy{Amount: 5, Unit: Minute}
	DefaultAuth    = Policy{Amount: 30, Unit: Day}
	DefaultToken   = Policy{Amount: 30, Unit: Minute}
)

// ExpiresAt returns the instant the policy expires when started at base.
func (p Policy) ExpiresAt(base time.Time) (time.Time, error) {
	return Compute(base, p.Amount, p.Unit)
}

// Validate checks the policy has a positive amount and a known unit.
func (p Policy) Validate() error {
	if p.Amount <= 0 {
		return oops.Code("EXPIRY_INVALID_AMOUNT").
			With("amount", p.Amount).
			Errorf("expiry amount must be positive, got %d", p.Amount)
	}
	if !p.Unit.Valid() {
		return oops.Code("EXPIRY_UNKNOWN_UNIT").
			With("unit", string(p.Unit)).
			Wrap(ErrUnknownUnit)
	}
	return nil
}

// Duration approximates the policy as a fixed duration, treating a day as 24h.
// Used where a wall-clock span is needed, such as cookie max-age.
func (p Policy) Duration() time.Duration {
	switch p.Unit {
	case Second:
		return time.Duration(p.Amount) * time.Second
	case Minute:
		return time.Duration(p.Amount) * time.Minute
	case Hour:
		return time.Duration(p.Amount) * time.Hour
	case Day:
		return time.Duration(p.Amount) * 24 * time.Hour
	}
	return 0
}

// String renders the policy as "30 day".
func (p Policy) String() string {
	return strconv.Itoa(p.Amount) + " " + string(p.Unit)
}
