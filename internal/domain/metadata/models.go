// metadata contains models that hold data about data. The only piece of metadata every
// persisted record carries is the logical Timestamp of the event that last wrote it; all
// conflict resolution is done by comparing these, never by comparing arrival times.
package metadata

import (
	"fmt"
	"strconv"
	"time"
)

// Timestamp is a logical event time in epoch milliseconds.
//
// Once persisted on a record it never decreases across successful writes to that record.
type Timestamp int64

// Soft-delete
type IsDeleted bool

// ExpiresAt is when a store may physically drop a record. Nil means never.
type ExpiresAt time.Time

func TimestampFromTime(t time.Time) Timestamp {
	return Timestamp(t.UnixNano() / int64(time.Millisecond))
}

func (t Timestamp) Time() time.Time {
	return time.Unix(0, int64(t)*int64(time.Millisecond)).UTC()
}

func (t Timestamp) String() string {
	return strconv.FormatInt(int64(t), 10)
}

// Before returns true if t is strictly older than other
func (t Timestamp) Before(other Timestamp) bool {
	return t < other
}

// Validate returns an InvalidTimestamp error if the Timestamp cannot have come from a real event
func (t Timestamp) Validate() error {
	if t <= 0 {
		return InvalidTimestamp{Raw: t.String()}
	}
	return nil
}

// ParseTimestamp parses a Timestamp from its decimal representation, as it is stored by
// bindings that keep numbers as strings.
func ParseTimestamp(raw string) (Timestamp, error) {
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, InvalidTimestamp{Raw: raw, Underlying: err}
	}
	ts := Timestamp(parsed)
	if err := ts.Validate(); err != nil {
		return 0, err
	}
	return ts, nil
}

// InvalidTimestamp is returned when a timestamp is malformed or non-positive
type InvalidTimestamp struct {
	Raw        string
	Underlying error
}

func (e InvalidTimestamp) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("Invalid timestamp [%s]: %v", e.Raw, e.Underlying)
	}
	return fmt.Sprintf("Invalid timestamp [%s]", e.Raw)
}

func (e InvalidTimestamp) Unwrap() error {
	return e.Underlying
}
