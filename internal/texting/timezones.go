// Package texting decides whether a contact may be texted at the current
// moment, given organization or campaign texting hours and the contact's
// UTC offset.
package texting

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	MinOffset = -12
	MaxOffset = 14
)

// Timezone is the coarse timezone data stored on a contact: a whole-hour
// standard UTC offset and whether the zone observes daylight saving.
type Timezone struct {
	Offset int  `json:"offset"`
	HasDST bool `json:"hasDST"`
}

// Key is the denormalized form stored in campaign_contact.timezone_offset.
func (tz Timezone) Key() string {
	dst := 0
	if tz.HasDST {
		dst = 1
	}
	return fmt.Sprintf("%d_%d", tz.Offset, dst)
}

// ParseKey reverses Key. The empty key means the timezone is unknown.
func ParseKey(key string) (*Timezone, error) {
	if key == "" {
		return nil, nil
	}
	offset, dst, ok := strings.Cut(key, "_")
	if !ok {
		return nil, fmt.Errorf("invalid timezone offset %q", key)
	}
	o, err := strconv.Atoi(offset)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone offset %q: %w", key, err)
	}
	if o < MinOffset || o > MaxOffset {
		return nil, fmt.Errorf("timezone offset %d out of range", o)
	}
	switch dst {
	case "0":
		return &Timezone{Offset: o}, nil
	case "1":
		return &Timezone{Offset: o, HasDST: true}, nil
	}
	return nil, fmt.Errorf("invalid timezone offset %q", key)
}

// OffsetTable is the static list of supported offsets plus the named zones
// that campaigns and the process configuration may refer to.
type OffsetTable struct {
	entries []Timezone
	names   map[string]Timezone

	mu        sync.RWMutex
	locations map[string]*time.Location
}

var namedZones = map[string]Timezone{
	"US/Eastern":          {Offset: -5, HasDST: true},
	"America/New_York":    {Offset: -5, HasDST: true},
	"America/Detroit":     {Offset: -5, HasDST: true},
	"US/Central":          {Offset: -6, HasDST: true},
	"America/Chicago":     {Offset: -6, HasDST: true},
	"US/Mountain":         {Offset: -7, HasDST: true},
	"America/Denver":      {Offset: -7, HasDST: true},
	"US/Arizona":          {Offset: -7, HasDST: false},
	"America/Phoenix":     {Offset: -7, HasDST: false},
	"US/Pacific":          {Offset: -8, HasDST: true},
	"America/Los_Angeles": {Offset: -8, HasDST: true},
	"US/Alaska":           {Offset: -9, HasDST: true},
	"America/Anchorage":   {Offset: -9, HasDST: true},
	"US/Hawaii":           {Offset: -10, HasDST: false},
	"Pacific/Honolulu":    {Offset: -10, HasDST: false},
	"America/Puerto_Rico": {Offset: -4, HasDST: false},
	"UTC":                 {Offset: 0, HasDST: false},
	"Etc/UTC":             {Offset: 0, HasDST: false},
	"Europe/London":       {Offset: 0, HasDST: true},
}

// NewOffsetTable builds the table covering every whole-hour offset from
// MinOffset to MaxOffset, each with and without DST.
func NewOffsetTable() *OffsetTable {
	t := &OffsetTable{
		names:     make(map[string]Timezone, len(namedZones)),
		locations: make(map[string]*time.Location),
	}
	for o := MinOffset; o <= MaxOffset; o++ {
		t.entries = append(t.entries, Timezone{Offset: o, HasDST: false}, Timezone{Offset: o, HasDST: true})
	}
	for name, tz := range namedZones {
		t.names[name] = tz
	}
	return t
}

// Entries returns every supported offset in ascending order.
func (t *OffsetTable) Entries() []Timezone {
	out := make([]Timezone, len(t.entries))
	copy(out, t.entries)
	return out
}

// Resolve maps a zone name to its offset entry. Names missing from the
// static list are resolved through the system zone database.
func (t *OffsetTable) Resolve(name string) (Timezone, bool) {
	if name == "" {
		return Timezone{}, false
	}
	if tz, ok := t.names[name]; ok {
		return tz, true
	}
	loc := t.location(name)
	if loc == nil {
		return Timezone{}, false
	}
	year := time.Now().Year()
	_, jan := time.Date(year, time.January, 1, 0, 0, 0, 0, loc).Zone()
	_, jul := time.Date(year, time.July, 1, 0, 0, 0, 0, loc).Zone()
	std := min(jan, jul)
	tz := Timezone{Offset: floorHours(std), HasDST: jan != jul}
	if tz.Offset < MinOffset || tz.Offset > MaxOffset {
		return Timezone{}, false
	}
	return tz, true
}

// IsDST reports whether daylight saving is in effect at instant in the
// reference zone. An unknown reference zone never observes DST.
func (t *OffsetTable) IsDST(instant time.Time, reference string) bool {
	loc := t.location(reference)
	if loc == nil {
		return false
	}
	return instant.In(loc).IsDST()
}

func (t *OffsetTable) location(name string) *time.Location {
	if name == "" {
		return nil
	}
	t.mu.RLock()
	loc, ok := t.locations[name]
	t.mu.RUnlock()
	if ok {
		return loc
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		loc = nil
	}
	t.mu.Lock()
	t.locations[name] = loc
	t.mu.Unlock()
	return loc
}

func floorHours(seconds int) int {
	h := seconds / 3600
	if seconds%3600 != 0 && seconds < 0 {
		h--
	}
	return h
}
