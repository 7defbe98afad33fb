// Package billing turns elapsed session time into quota units and doctor fees.
// Everything here is pure; callers supply "now".
package billing

import "time"

// UnitMinutes is the length of one quota unit.
const UnitMinutes = 10

// Charge is the quota side of a terminating session.
type Charge struct {
	ElapsedMinutes int `json:"elapsed_minutes"`
	AutoUnits      int `json:"auto_units"`
	ManualUnit     int `json:"manual_unit"`
	UnitsToDeduct  int `json:"units_to_deduct"`
}

// ElapsedMinutes returns whole minutes since startedAt. Sessions that never started have zero.
func ElapsedMinutes(startedAt *time.Time, now time.Time) int {
	if startedAt == nil || startedAt.IsZero() {
		return 0
	}
	d := now.Sub(*startedAt)
	if d <= 0 {
		return 0
	}
	return int(d / time.Minute)
}

func AutoUnits(elapsedMinutes int) int {
	if elapsedMinutes <= 0 {
		return 0
	}
	return elapsedMinutes / UnitMinutes
}

func ManualUnit(isManualEnd bool) int {
	if isManualEnd {
		return 1
	}
	return 0
}

// UnitsToDeduct may exceed what the patient had left; overruns become negative balances.
func UnitsToDeduct(elapsedMinutes int, isManualEnd bool) int {
	return AutoUnits(elapsedMinutes) + ManualUnit(isManualEnd)
}

func Compute(elapsedMinutes int, isManualEnd bool) Charge {
	if elapsedMinutes < 0 {
		elapsedMinutes = 0
	}
	c := Charge{
		ElapsedMinutes: elapsedMinutes,
		AutoUnits:      AutoUnits(elapsedMinutes),
		ManualUnit:     ManualUnit(isManualEnd),
	}
	c.UnitsToDeduct = c.AutoUnits + c.ManualUnit
	return c
}

func TotalAllowedMinutes(remainingBeforeStart int) int {
	if remainingBeforeStart <= 0 {
		return 0
	}
	return remainingBeforeStart * UnitMinutes
}

// ShouldAutoEnd is true once a session has run past the quota it started with.
func ShouldAutoEnd(elapsedMinutes, remainingBeforeStart int) bool {
	return elapsedMinutes > TotalAllowedMinutes(remainingBeforeStart)
}

func RemainingMinutes(elapsedMinutes, remainingBeforeStart int) int {
	left := TotalAllowedMinutes(remainingBeforeStart) - elapsedMinutes
	if left < 0 {
		return 0
	}
	return left
}

// NextDeductionAt is when the sweep will next find a whole unit to charge.
func NextDeductionAt(startedAt time.Time, autoDeductionsProcessed int) time.Time {
	return startedAt.Add(time.Duration(autoDeductionsProcessed+1) * UnitMinutes * time.Minute)
}
