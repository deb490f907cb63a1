// internal/repository/contact_query.go
package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/unclebandit/canvass-backend/internal/model"
	"github.com/unclebandit/canvass-backend/internal/texting"
)

// ContactQueryInput is everything needed to select an assignment's contacts.
// Organization, Campaign and Evaluator are required whenever Filter is set.
type ContactQueryInput struct {
	AssignmentID int
	Filter       *model.ContactsFilter
	Organization *model.Organization
	Campaign     *model.Campaign
	Evaluator    *texting.Evaluator
	Now          time.Time
	CountOnly    bool
	Limit        int
	Offset       int
}

type predicate struct {
	column string
	value  any
	values []string
	in     bool
}

// ContactQuery is the dialect-neutral form of a contact selection. Empty
// means the result is known to be empty without asking the store.
type ContactQuery struct {
	Empty     bool
	CountOnly bool
	Limit     int
	Offset    int

	where   []predicate
	orderBy string
}

const (
	orderWaitingFirst = "message_status DESC, updated_at ASC, id ASC"
	orderRecentFirst  = "message_status DESC, updated_at DESC, id ASC"
)

var defaultStatuses = []string{string(model.StatusNeedsResponse), string(model.StatusNeedsMessage)}

// BuildContactQuery combines the assignment, past-due, timezone, status and
// opt-out constraints for one contacts request.
func BuildContactQuery(in ContactQueryInput) ContactQuery {
	q := ContactQuery{CountOnly: in.CountOnly, Limit: in.Limit, Offset: in.Offset, orderBy: orderWaitingFirst}
	f := in.Filter

	q.where = append(q.where, predicate{column: "assignment_id", value: in.AssignmentID})
	if f == nil {
		return q
	}
	if f.ContactID != nil {
		q.where = append(q.where, predicate{column: "id", value: *f.ContactID})
		q.Limit, q.Offset = 0, 0
		return q
	}

	pastDue := in.Campaign.IsPastDue(in.Now)
	if pastDue && f.MessageStatus == string(model.StatusNeedsMessage) && !f.IncludePastDue {
		q.Empty = true
		return q
	}

	if f.ValidTimezone != nil {
		cfg := in.Campaign.HoursConfig(in.Organization)
		valid, invalid := in.Evaluator.PartitionKeys(cfg)
		keys := invalid
		if *f.ValidTimezone {
			keys = valid
		}
		// Contacts with no known timezone are judged by the default zone.
		if in.Evaluator.DefaultTimezoneEligible(cfg) == *f.ValidTimezone {
			keys = append(keys, "")
		}
		q.where = append(q.where, predicate{column: "timezone_offset", values: keys, in: true})
	}

	var statuses []string
	switch {
	case f.MessageStatus != "":
		statuses = splitStatuses(f.MessageStatus)
	case pastDue:
		statuses = []string{string(model.StatusNeedsResponse)}
	default:
		statuses = defaultStatuses
	}
	q.where = append(q.where, predicate{column: "message_status", values: statuses, in: true})

	if f.IsOptedOut != nil {
		q.where = append(q.where, predicate{column: "is_opted_out", value: *f.IsOptedOut})
	}

	if f.MessageStatus == string(model.StatusConvo) {
		q.orderBy = orderRecentFirst
	}
	return q
}

// splitStatuses expands the needsMessageOrResponse alias only when it is the
// whole filter; inside a list it is kept as a literal and matches nothing.
func splitStatuses(list string) []string {
	if strings.TrimSpace(list) == model.NeedsMessageOrResponse {
		return append([]string(nil), defaultStatuses...)
	}
	var out []string
	for _, s := range strings.Split(list, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Statuses returns the message_status values the query matches, nil when
// status is unconstrained.
func (q ContactQuery) Statuses() []string {
	for _, p := range q.where {
		if p.column == "message_status" {
			return p.values
		}
	}
	return nil
}

// TimezoneKeys returns the timezone_offset values the query matches and
// whether timezone is constrained at all.
func (q ContactQuery) TimezoneKeys() ([]string, bool) {
	for _, p := range q.where {
		if p.column == "timezone_offset" {
			return p.values, true
		}
	}
	return nil, false
}

// SQL renders the query for d. Counting drops ordering and paging.
func (q ContactQuery) SQL(d Dialect) (string, []any) {
	b := &binder{d: d}
	var sb strings.Builder
	if q.CountOnly {
		sb.WriteString("SELECT COUNT(*) FROM campaign_contact")
	} else {
		sb.WriteString("SELECT " + contactColumns + " FROM campaign_contact")
	}

	conds := make([]string, 0, len(q.where)+1)
	if q.Empty {
		conds = append(conds, "1 = 0")
	}
	for _, p := range q.where {
		if p.in {
			conds = append(conds, d.In(p.column, p.values, b.bind))
			continue
		}
		conds = append(conds, fmt.Sprintf("%s = %s", p.column, b.bind(p.value)))
	}
	if len(conds) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}

	if !q.CountOnly {
		sb.WriteString(" ORDER BY " + q.orderBy)
		if q.Limit > 0 {
			sb.WriteString(fmt.Sprintf(" LIMIT %s OFFSET %s", b.bind(q.Limit), b.bind(q.Offset)))
		}
	}
	return sb.String(), b.args
}
