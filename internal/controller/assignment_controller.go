// internal/controller/assignment_controller.go
package controller

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/canvass-backend/internal/model"
	"github.com/unclebandit/canvass-backend/internal/service"
)

type AssignmentService interface {
	SelectContacts(ctx context.Context, userID, assignmentID int, filter *model.ContactsFilter, page service.Page) ([]*model.CampaignContact, error)
	CountContacts(ctx context.Context, userID, assignmentID int, filter *model.ContactsFilter) (int, error)
	CannedResponses(ctx context.Context, userID, assignmentID int) ([]model.CannedResponse, error)
}

type BulkSender interface {
	BulkSend(ctx context.Context, userID, assignmentID int) (*service.BulkSendResult, error)
}

type AssignmentController struct {
	Assignments AssignmentService
	Sender      BulkSender
	// SendLimit wraps the bulk-send route; nil leaves it unthrottled.
	SendLimit func(http.Handler) http.Handler
}

func (c *AssignmentController) Routes(r chi.Router) {
	r.Route("/assignments/{id}", func(r chi.Router) {
		r.Get("/contacts", c.Contacts)
		r.Get("/contacts/count", c.ContactsCount)
		r.Get("/canned-responses", c.CannedResponses)
		r.With(limitOrPass(c.SendLimit)).Post("/bulk-send", c.BulkSend)
	})
}

func limitOrPass(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if mw == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return mw
}

// ParseContactsFilter reads the contacts filter from query parameters. No
// filter parameters at all means no filter.
func ParseContactsFilter(q url.Values) (*model.ContactsFilter, error) {
	var (
		f   model.ContactsFilter
		set bool
	)
	if v := q.Get("contactId"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return nil, badRequest("invalid contactId %q", v)
		}
		f.ContactID, set = &id, true
	}
	boolParam := func(name string) (*bool, error) {
		v := q.Get(name)
		if v == "" {
			return nil, nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, badRequest("invalid %s %q", name, v)
		}
		set = true
		return &b, nil
	}
	pastDue, err := boolParam("includePastDue")
	if err != nil {
		return nil, err
	}
	if pastDue != nil {
		f.IncludePastDue = *pastDue
	}
	if f.ValidTimezone, err = boolParam("validTimezone"); err != nil {
		return nil, err
	}
	if f.IsOptedOut, err = boolParam("isOptedOut"); err != nil {
		return nil, err
	}
	if v := q.Get("messageStatus"); v != "" {
		f.MessageStatus, set = v, true
	}
	if !set {
		return nil, nil
	}
	return &f, nil
}

func parsePage(q url.Values) (service.Page, error) {
	var p service.Page
	for name, dst := range map[string]*int{"limit": &p.Limit, "offset": &p.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return p, badRequest("invalid %s %q", name, v)
		}
		*dst = n
	}
	return p, nil
}

func (c *AssignmentController) Contacts(w http.ResponseWriter, r *http.Request) {
	id, err := URLInt(r, "id")
	if err != nil {
		WriteError(w, r, err)
		return
	}
	filter, err := ParseContactsFilter(r.URL.Query())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	page, err := parsePage(r.URL.Query())
	if err != nil {
		WriteError(w, r, err)
		return
	}

	contacts, err := c.Assignments.SelectContacts(r.Context(), UserID(r.Context()), id, filter, page)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"data":       contacts,
		"pagination": page,
	})
}

func (c *AssignmentController) ContactsCount(w http.ResponseWriter, r *http.Request) {
	id, err := URLInt(r, "id")
	if err != nil {
		WriteError(w, r, err)
		return
	}
	filter, err := ParseContactsFilter(r.URL.Query())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	n, err := c.Assignments.CountContacts(r.Context(), UserID(r.Context()), id, filter)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (c *AssignmentController) CannedResponses(w http.ResponseWriter, r *http.Request) {
	id, err := URLInt(r, "id")
	if err != nil {
		WriteError(w, r, err)
		return
	}
	responses, err := c.Assignments.CannedResponses(r.Context(), UserID(r.Context()), id)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"data": responses})
}

func (c *AssignmentController) BulkSend(w http.ResponseWriter, r *http.Request) {
	id, err := URLInt(r, "id")
	if err != nil {
		WriteError(w, r, err)
		return
	}
	result, err := c.Sender.BulkSend(r.Context(), UserID(r.Context()), id)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"messages_queued": len(result.Messages),
		"skipped":         result.Skipped,
		"messages":        result.Messages,
	})
}
