package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/canvass-backend/internal/controller"
	appErrors "github.com/unclebandit/canvass-backend/internal/errors"
	"github.com/unclebandit/canvass-backend/internal/model"
	"github.com/unclebandit/canvass-backend/internal/service"
	"github.com/unclebandit/canvass-backend/internal/survey"
)

// --- Mock services ---

type MockAssignments struct {
	userID int
	filter *model.ContactsFilter
	page   service.Page
	err    error
}

func (m *MockAssignments) SelectContacts(ctx context.Context, userID, assignmentID int, filter *model.ContactsFilter, page service.Page) ([]*model.CampaignContact, error) {
	m.userID, m.filter, m.page = userID, filter, page
	if m.err != nil {
		return nil, m.err
	}
	return []*model.CampaignContact{{ID: 1, FirstName: "Pat"}}, nil
}

func (m *MockAssignments) CountContacts(ctx context.Context, userID, assignmentID int, filter *model.ContactsFilter) (int, error) {
	m.userID, m.filter = userID, filter
	return 7, m.err
}

func (m *MockAssignments) CannedResponses(ctx context.Context, userID, assignmentID int) ([]model.CannedResponse, error) {
	m.userID = userID
	return []model.CannedResponse{{ID: 1, Title: "Hi"}}, m.err
}

func (m *MockAssignments) BulkSend(ctx context.Context, userID, assignmentID int) (*service.BulkSendResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &service.BulkSendResult{Messages: []*model.Message{{ID: 1}, {ID: 2}}, Skipped: 1}, nil
}

type MockContacts struct {
	send   service.SendMessageInput
	finish service.FinishInput
	err    error
}

func (m *MockContacts) SendMessage(ctx context.Context, in service.SendMessageInput) (*model.Message, error) {
	m.send = in
	if m.err != nil {
		return nil, m.err
	}
	return &model.Message{ID: 9, Text: in.Text, SendStatus: model.SendQueued}, nil
}

func (m *MockContacts) CreateOptOut(ctx context.Context, in service.OptOutInput) (*model.Message, error) {
	return nil, m.err
}

func (m *MockContacts) UpdateQuestionResponses(ctx context.Context, in service.QuestionResponsesInput) (survey.Responses, error) {
	return survey.Responses{1: "Yes"}, m.err
}

func (m *MockContacts) DeleteQuestionResponses(ctx context.Context, contactID, assignmentID, userID int, stepIDs []int) (survey.Responses, error) {
	return survey.Responses{}, m.err
}

func (m *MockContacts) FinishContact(ctx context.Context, in service.FinishInput) error {
	m.finish = in
	return m.err
}

func (m *MockContacts) EditMessageStatus(ctx context.Context, userID, contactID int, status model.MessageStatus) (*model.CampaignContact, error) {
	if !status.Valid() {
		return nil, appErrors.ErrInvalidMessageStatus
	}
	return &model.CampaignContact{ID: contactID, MessageStatus: status}, m.err
}

func (m *MockContacts) AddTags(ctx context.Context, userID int, tags []model.ContactTag) error {
	return m.err
}

func (m *MockContacts) ResolveTags(ctx context.Context, userID int, contactIDs []int, tag string) (int, error) {
	return len(contactIDs), m.err
}

func (m *MockContacts) Eligibility(ctx context.Context, contactID int) (*service.Eligibility, error) {
	return &service.Eligibility{ContactID: contactID, Eligible: true}, m.err
}

func newRouter(a *MockAssignments, c *MockContacts, limit func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(controller.Identify)
	(&controller.AssignmentController{Assignments: a, Sender: a, SendLimit: limit}).Routes(r)
	(&controller.ContactController{Contacts: c, SendLimit: limit}).Routes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set(controller.UserIDHeader, "10")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestContactsParsesFilter(t *testing.T) {
	a := &MockAssignments{}
	h := newRouter(a, &MockContacts{}, nil)

	w := do(t, h, "GET", "/assignments/3/contacts?messageStatus=convo&validTimezone=true&includePastDue=1&limit=20&offset=40", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body)
	}
	f := a.filter
	if f == nil || f.MessageStatus != "convo" || f.ValidTimezone == nil || !*f.ValidTimezone || !f.IncludePastDue || f.IsOptedOut != nil {
		t.Errorf("filter = %+v", f)
	}
	if a.page.Limit != 20 || a.page.Offset != 40 {
		t.Errorf("page = %+v", a.page)
	}
	if a.userID != 10 {
		t.Errorf("user id = %d, want 10", a.userID)
	}

	var resp struct {
		Data []model.CampaignContact `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Data) != 1 || resp.Data[0].FirstName != "Pat" {
		t.Errorf("data = %+v", resp.Data)
	}
}

func TestContactsWithoutFilter(t *testing.T) {
	a := &MockAssignments{}
	h := newRouter(a, &MockContacts{}, nil)
	if w := do(t, h, "GET", "/assignments/3/contacts/count", nil); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if a.filter != nil {
		t.Errorf("no query params should mean no filter, got %+v", a.filter)
	}
}

func TestBadInputIs400(t *testing.T) {
	h := newRouter(&MockAssignments{}, &MockContacts{}, nil)
	for _, path := range []string{
		"/assignments/abc/contacts",
		"/assignments/3/contacts?validTimezone=maybe",
		"/assignments/3/contacts?limit=-1",
		"/assignments/3/contacts?contactId=x",
	} {
		if w := do(t, h, "GET", path, nil); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", path, w.Code)
		}
	}
}

func TestMissingUserIs401(t *testing.T) {
	h := newRouter(&MockAssignments{}, &MockContacts{}, nil)
	req := httptest.NewRequest("GET", "/assignments/3/contacts", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d", w.Code)
	}
}

func TestSendMessage(t *testing.T) {
	c := &MockContacts{}
	h := newRouter(&MockAssignments{}, c, nil)

	w := do(t, h, "POST", "/contacts/5/messages", map[string]any{"assignment_id": 3, "text": "Hello"})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", w.Code, w.Body)
	}
	if c.send.ContactID != 5 || c.send.AssignmentID != 3 || c.send.UserID != 10 || c.send.Text != "Hello" {
		t.Errorf("input = %+v", c.send)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
		body string
	}{
		{appErrors.NewStaleAssignment(5, 3, 4), http.StatusConflict, "Your assignment has changed"},
		{fmt.Errorf("load: %w", appErrors.NewNotFound("campaign contact", 5)), http.StatusNotFound, ""},
		{&appErrors.ConfigurationError{CampaignID: 2, Reason: "cycle"}, http.StatusUnprocessableEntity, ""},
		{appErrors.ErrSuspended, http.StatusForbidden, ""},
		{appErrors.ErrOutsideTextingHours, http.StatusBadRequest, ""},
		{appErrors.ErrContactOptedOut, http.StatusBadRequest, ""},
		{context.DeadlineExceeded, http.StatusServiceUnavailable, "temporarily unavailable, retry"},
		{fmt.Errorf("boom"), http.StatusInternalServerError, "internal error"},
	}
	for _, tc := range cases {
		h := newRouter(&MockAssignments{}, &MockContacts{err: tc.err}, nil)
		w := do(t, h, "POST", "/contacts/5/messages", map[string]any{"assignment_id": 3, "text": "Hello"})
		if w.Code != tc.want {
			t.Errorf("%v: status = %d, want %d", tc.err, w.Code, tc.want)
		}
		if tc.body != "" {
			var resp map[string]string
			_ = json.NewDecoder(w.Body).Decode(&resp)
			if resp["error"] != tc.body {
				t.Errorf("%v: body = %q", tc.err, resp["error"])
			}
		}
	}
}

func TestBulkSendDisabledIs403(t *testing.T) {
	h := newRouter(&MockAssignments{err: appErrors.ErrBulkSendDisabled}, &MockContacts{}, nil)
	if w := do(t, h, "POST", "/assignments/3/bulk-send", nil); w.Code != http.StatusForbidden {
		t.Errorf("status = %d", w.Code)
	}
}

func TestFinishAndStatusEdit(t *testing.T) {
	c := &MockContacts{}
	h := newRouter(&MockAssignments{}, c, nil)

	w := do(t, h, "POST", "/contacts/5/finish", map[string]any{
		"assignment_id": 3,
		"responses":     []map[string]any{{"interaction_step_id": 1, "value": "No"}},
		"tag":           map[string]string{"tag": "wrong-number"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("finish status = %d body = %s", w.Code, w.Body)
	}
	if c.finish.Tag == nil || c.finish.Tag.Tag != "wrong-number" || len(c.finish.Responses) != 1 || c.finish.Responses[0].InteractionStepID != 1 {
		t.Errorf("finish input = %+v", c.finish)
	}

	if w := do(t, h, "PATCH", "/contacts/5/message-status", map[string]string{"message_status": "bogus"}); w.Code != http.StatusBadRequest {
		t.Errorf("bogus status = %d", w.Code)
	}
	if w := do(t, h, "PATCH", "/contacts/5/message-status", map[string]string{"message_status": "closed"}); w.Code != http.StatusOK {
		t.Errorf("closed status = %d", w.Code)
	}
}

func TestTagsRequireBody(t *testing.T) {
	h := newRouter(&MockAssignments{}, &MockContacts{}, nil)
	if w := do(t, h, "POST", "/contacts/tags", map[string]any{"tags": []any{}}); w.Code != http.StatusBadRequest {
		t.Errorf("empty tags status = %d", w.Code)
	}
	w := do(t, h, "POST", "/contacts/tags/resolve", map[string]any{"contact_ids": []int{1, 2}, "tag": "x"})
	if w.Code != http.StatusOK {
		t.Errorf("resolve status = %d", w.Code)
	}
}

func TestSendRateLimit(t *testing.T) {
	h := newRouter(&MockAssignments{}, &MockContacts{}, controller.SendRateLimit(0.001, 2))
	body := map[string]any{"assignment_id": 3, "text": "Hello"}
	for i := 0; i < 2; i++ {
		if w := do(t, h, "POST", "/contacts/5/messages", body); w.Code != http.StatusCreated {
			t.Fatalf("request %d status = %d", i, w.Code)
		}
	}
	w := do(t, h, "POST", "/contacts/5/messages", body)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("third request status = %d", w.Code)
	}
	// Reads are not throttled.
	if w := do(t, h, "GET", "/contacts/5/eligibility", nil); w.Code != http.StatusOK {
		t.Errorf("eligibility status = %d", w.Code)
	}
}
