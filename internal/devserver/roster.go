package devserver

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// ScannedAtLayout formats check-in times the way the backend reports them.
const ScannedAtLayout = "15:04:05"

var (
	ErrUnknown        = errors.New("not found")
	ErrAlreadyScanned = errors.New("already checked in")
)

type Participant struct {
	Name           string `json:"name"`
	RegistrationNo string `json:"registrationNo"`
	Status         string `json:"status"`
	ScannedAt      string `json:"scannedAt,omitempty"`
}

type Stats struct {
	Total     int `json:"total"`
	Scanned   int `json:"scanned"`
	Remaining int `json:"remaining"`
}

// Roster is an in-memory participant list keyed by registration number.
// Lookups are case-insensitive.
type Roster struct {
	mu     sync.Mutex
	people map[string]*Participant
	nowFn  func() time.Time
}

func NewRoster() *Roster {
	return &Roster{people: make(map[string]*Participant), nowFn: time.Now}
}

func key(regNo string) string {
	return strings.ToUpper(strings.TrimSpace(regNo))
}

// SetClock replaces the clock used to stamp check-ins.
func (r *Roster) SetClock(now func() time.Time) {
	r.mu.Lock()
	r.nowFn = now
	r.mu.Unlock()
}

// Add registers a pending participant, replacing any previous entry.
func (r *Roster) Add(name, regNo string) {
	regNo = strings.TrimSpace(regNo)
	r.mu.Lock()
	r.people[key(regNo)] = &Participant{Name: name, RegistrationNo: regNo, Status: "Pending"}
	r.mu.Unlock()
}

// Seed adds n generated participants REG100, REG101, ...
func (r *Roster) Seed(n int) {
	for i := 0; i < n; i++ {
		r.Add(fmt.Sprintf("Participant %d", i+1), fmt.Sprintf("REG%d", 100+i))
	}
}

// Load reads "name,regNo" rows. A header row whose second column is not a
// registration number is skipped, as are blank numbers.
func (r *Roster) Load(in io.Reader) (int, error) {
	cr := csv.NewReader(in)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	added := 0
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return added, nil
		}
		if err != nil {
			return added, fmt.Errorf("roster line %d: %w", line, err)
		}
		if len(rec) < 2 {
			return added, fmt.Errorf("roster line %d: want name,regNo", line)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[1]), "regNo") {
			continue
		}
		if strings.TrimSpace(rec[1]) == "" {
			continue
		}
		r.Add(strings.TrimSpace(rec[0]), rec[1])
		added++
	}
}

func (r *Roster) Get(regNo string) (Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.people[key(regNo)]
	if !ok {
		return Participant{}, ErrUnknown
	}
	return *p, nil
}

// CheckIn marks regNo scanned. A repeat returns ErrAlreadyScanned with
// the record of the first check-in.
func (r *Roster) CheckIn(regNo string) (Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.people[key(regNo)]
	if !ok {
		return Participant{}, ErrUnknown
	}
	if p.Status == "Scanned" {
		return *p, ErrAlreadyScanned
	}
	p.Status = "Scanned"
	p.ScannedAt = r.nowFn().Format(ScannedAtLayout)
	return *p, nil
}

func (r *Roster) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Stats{Total: len(r.people)}
	for _, p := range r.people {
		if p.Status == "Scanned" {
			s.Scanned++
		}
	}
	s.Remaining = s.Total - s.Scanned
	return s
}

// List returns all participants sorted by registration number.
func (r *Roster) List() []Participant {
	r.mu.Lock()
	out := make([]Participant, 0, len(r.people))
	for _, p := range r.people {
		out = append(out, *p)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].RegistrationNo < out[j].RegistrationNo })
	return out
}
