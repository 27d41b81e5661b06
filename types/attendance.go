package types

import "time"

// ActionLogin is currently the only attendance-worthy action.
const ActionLogin = "login"

// DayBlock is the attendance detail for one user on one local calendar day.
// first_action_at is written once per day; last_action_at tracks the most
// recent mutation; counts are monotonically non-decreasing within a day.
type DayBlock struct {
	Attended      bool           `json:"attended"`
	Actions       []string       `json:"actions"`
	Counts        map[string]int `json:"counts"`
	FirstActionAt *time.Time     `json:"first_action_at"`
	LastActionAt  *time.Time     `json:"last_action_at"`
}

// DayMap maps local YYYY-MM-DD date strings to their DayBlock.
type DayMap map[string]DayBlock
