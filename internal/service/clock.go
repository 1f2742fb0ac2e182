package service

import (
	"time"

	"github.com/target/ledger-console/internal/ports"
)

// SystemClock is the wall-clock implementation of ports.Clock.
type SystemClock struct{}

var _ ports.Clock = SystemClock{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) AfterFunc(d time.Duration, f func()) ports.Timer {
	return time.AfterFunc(d, f)
}
