package checkin

import (
	"math"
	"strings"
)

// Status is the check-in status of a participant.
type Status int

const (
	StatusPending Status = iota
	StatusScanned
)

func (s Status) String() string {
	if s == StatusScanned {
		return "Scanned"
	}
	return "Pending"
}

// ParseStatus maps the backend's status string. Anything other than
// "scanned" (any case) is pending.
func ParseStatus(s string) Status {
	if strings.EqualFold(strings.TrimSpace(s), "scanned") {
		return StatusScanned
	}
	return StatusPending
}

// Participant is a lookup result as returned by the backend.
type Participant struct {
	Name           string
	RegistrationNo string
	Status         Status
	ScannedAt      string
}

func (p Participant) Scanned() bool {
	return p.Status == StatusScanned
}

// Stats are the aggregate check-in counts. They are only ever replaced
// wholesale from a server response.
type Stats struct {
	Total     int
	Scanned   int
	Remaining int
}

// Percentage returns round(scanned/total*100), or 0 with no registrations.
func (s Stats) Percentage() int {
	if s.Total <= 0 {
		return 0
	}
	return int(math.Round(float64(s.Scanned) / float64(s.Total) * 100))
}

// Logger abstracts logging so callers can plug logrus.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}
