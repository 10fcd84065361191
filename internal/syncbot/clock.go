package syncbot

import (
	"time"

	"github.com/google/uuid"
)

// Clock is the time source behind change timestamps, run records, schedule
// checks and archive names.
type Clock interface {
	Now() time.Time
}

// ClockFunc lets a plain function serve as a Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// IDGenerator names sync runs.
type IDGenerator interface {
	New() string
}

// IDFunc lets a plain function serve as an IDGenerator.
type IDFunc func() string

func (f IDFunc) New() string { return f() }

// RunIDs hands out random UUIDs.
var RunIDs IDGenerator = IDFunc(uuid.NewString)
