package texting

import "time"

const (
	DefaultTimezoneName = "US/Eastern"
	DefaultDSTReference = "America/New_York"
)

// fallbackTimezone is used when neither the campaign nor the process
// configuration names a zone the table can resolve.
var fallbackTimezone = Timezone{Offset: -5, HasDST: true}

// Hours is a texting window on a 24-hour integer scale: a contact is
// eligible when Start <= local hour < End.
type Hours struct {
	Start    int  `json:"start"`
	End      int  `json:"end"`
	Enforced bool `json:"enforced"`
}

// CampaignHours overrides the organization's hours for one campaign and
// names the zone assumed for contacts with no known timezone.
type CampaignHours struct {
	Hours
	Timezone string `json:"timezone"`
}

type HoursConfig struct {
	Organization Hours
	Campaign     *CampaignHours
}

// Effective returns the window that applies after the campaign override.
func (c HoursConfig) Effective() Hours {
	if c.Campaign != nil {
		return c.Campaign.Hours
	}
	return c.Organization
}

// Evaluator answers "may this contact be texted now". The zero value is not
// usable; build one with NewEvaluator.
type Evaluator struct {
	table           *OffsetTable
	now             func() time.Time
	defaultTimezone string
	dstReference    string
}

type Option func(*Evaluator)

func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

// WithDefaultTimezone sets the zone assumed for contacts with no timezone
// when the campaign does not override organization hours.
func WithDefaultTimezone(name string) Option {
	return func(e *Evaluator) {
		if name != "" {
			e.defaultTimezone = name
		}
	}
}

// WithDSTReference sets the zone whose calendar decides whether DST is in
// effect for organization-level hours.
func WithDSTReference(name string) Option {
	return func(e *Evaluator) {
		if name != "" {
			e.dstReference = name
		}
	}
}

func WithTable(t *OffsetTable) Option {
	return func(e *Evaluator) { e.table = t }
}

func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{
		now:             time.Now,
		defaultTimezone: DefaultTimezoneName,
		dstReference:    DefaultDSTReference,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.table == nil {
		e.table = NewOffsetTable()
	}
	return e
}

func (e *Evaluator) Table() *OffsetTable { return e.table }

// IsEligibleNow reports whether a contact in tz may be texted now under cfg.
// A nil tz means the contact's timezone is unknown.
func (e *Evaluator) IsEligibleNow(tz *Timezone, cfg HoursConfig) bool {
	w := e.window(cfg)
	if tz == nil {
		return w.eligible(w.fallback)
	}
	return w.eligible(*tz)
}

// DefaultTimezoneEligible evaluates the unknown-timezone case once.
func (e *Evaluator) DefaultTimezoneEligible(cfg HoursConfig) bool {
	return e.IsEligibleNow(nil, cfg)
}

// LocalTime is the contact's current wall-clock time, as shown to texters.
func (e *Evaluator) LocalTime(tz *Timezone, cfg HoursConfig) time.Time {
	w := e.window(cfg)
	if tz == nil {
		return w.localTime(w.fallback)
	}
	return w.localTime(*tz)
}

// window captures everything about cfg that is constant across contacts, so
// row-level and bulk evaluation share one decision per instant.
type window struct {
	now      time.Time
	hours    Hours
	dst      bool
	fallback Timezone
}

func (e *Evaluator) window(cfg HoursConfig) window {
	w := window{now: e.now().UTC(), hours: cfg.Effective()}
	reference := e.dstReference
	unknownZone := e.defaultTimezone
	if cfg.Campaign != nil && cfg.Campaign.Timezone != "" {
		reference = cfg.Campaign.Timezone
		unknownZone = cfg.Campaign.Timezone
	}
	w.dst = e.table.IsDST(w.now, reference)
	w.fallback = e.resolve(unknownZone)
	return w
}

func (e *Evaluator) resolve(name string) Timezone {
	if tz, ok := e.table.Resolve(name); ok {
		return tz
	}
	if tz, ok := e.table.Resolve(e.defaultTimezone); ok {
		return tz
	}
	return fallbackTimezone
}

func (w window) localTime(tz Timezone) time.Time {
	offset := tz.Offset
	if tz.HasDST && w.dst {
		offset++
	}
	return w.now.In(time.FixedZone("", offset*3600))
}

func (w window) eligible(tz Timezone) bool {
	if !w.hours.Enforced {
		return true
	}
	hour := w.localTime(tz).Hour()
	return hour >= w.hours.Start && hour < w.hours.End
}
