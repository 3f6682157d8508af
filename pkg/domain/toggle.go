package domain

import (
	"errors"
	"strconv"
	"time"
)

// State is the value of the managed toggle field
type State int

// toggle states, numeric values are the ones persisted in the file
const (
	Disabled State = 0
	Enabled  State = 1
)

// String returns a human-readable state name
func (s State) String() string {
	switch s {
	case Enabled:
		return "ENABLED"
	case Disabled:
		return "DISABLED"
	default:
		return "UNKNOWN(" + strconv.Itoa(int(s)) + ")"
	}
}

// Valid reports whether the state is one of the two known values
func (s State) Valid() bool {
	return s == Enabled || s == Disabled
}

// Transition describes a single write of the toggle field
type Transition struct {
	At   time.Time
	Path string
	From *State // nil if the file had no usable value
	To   State
}

// error kinds reported by document stores
var (
	ErrNotFound  = errors.New("document not found")
	ErrMalformed = errors.New("malformed document")
	ErrWrite     = errors.New("document write failed")
)
