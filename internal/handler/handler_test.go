package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/canvass-backend/internal/controller"
	appErrors "github.com/unclebandit/canvass-backend/internal/errors"
	"github.com/unclebandit/canvass-backend/internal/model"
	"github.com/unclebandit/canvass-backend/internal/survey"
)

type MockSettings struct {
	start, end int
	enforced   *bool
	userID     int
}

func (m *MockSettings) UpdateTextingHours(ctx context.Context, userID, organizationID, start, end int) (*model.Organization, error) {
	m.userID, m.start, m.end = userID, start, end
	return &model.Organization{ID: organizationID, TextingHoursStart: start, TextingHoursEnd: end}, nil
}

func (m *MockSettings) UpdateTextingHoursEnforcement(ctx context.Context, userID, organizationID int, enforced bool) (*model.Organization, error) {
	m.enforced = &enforced
	return &model.Organization{ID: organizationID, TextingHoursEnforced: enforced}, nil
}

func (m *MockSettings) UpdateOptOutMessage(ctx context.Context, userID, organizationID int, message string) (*model.Organization, error) {
	if userID != 12 {
		return nil, appErrors.ErrForbidden
	}
	return &model.Organization{ID: organizationID, OptOutMessage: message}, nil
}

type MockScripts struct {
	doc []byte
}

func (m *MockScripts) ImportScript(ctx context.Context, userID, campaignID int, document []byte) ([]survey.Step, error) {
	m.doc = document
	if _, err := survey.ParseScriptYAML(document); err != nil {
		return nil, &appErrors.ConfigurationError{CampaignID: campaignID, Reason: err.Error()}
	}
	return []survey.Step{{ID: 1}}, nil
}

func (m *MockScripts) AvailableSteps(ctx context.Context, campaignID, contactID int) ([]survey.Step, error) {
	if contactID == 404 {
		return nil, appErrors.NewNotFound("campaign contact", contactID)
	}
	return []survey.Step{{ID: 1}, {ID: 2}}, nil
}

func router(settings *MockSettings, scripts *MockScripts) http.Handler {
	r := chi.NewRouter()
	r.Use(controller.Identify)
	(&OrganizationHandler{Settings: settings}).Routes(r)
	(&CampaignHandler{Scripts: scripts, Steps: scripts}).Routes(r)
	return r
}

func send(h http.Handler, method, path, user, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(controller.UserIDHeader, user)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestUpdateTextingHours(t *testing.T) {
	s := &MockSettings{}
	h := router(s, &MockScripts{})

	w := send(h, "PUT", "/organizations/1/texting-hours", "12", `{"texting_hours_start": 10, "texting_hours_end": 20}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body)
	}
	if s.start != 10 || s.end != 20 || s.userID != 12 {
		t.Errorf("settings = %+v", s)
	}

	if w := send(h, "PUT", "/organizations/1/texting-hours", "12", `{"texting_hours_start": 10}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing end status = %d", w.Code)
	}
	if w := send(h, "PUT", "/organizations/x/texting-hours", "12", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d", w.Code)
	}
}

func TestUpdateTextingHoursEnforcement(t *testing.T) {
	s := &MockSettings{}
	h := router(s, &MockScripts{})
	if w := send(h, "PUT", "/organizations/1/texting-hours-enforcement", "12", `{"texting_hours_enforced": false}`); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if s.enforced == nil || *s.enforced {
		t.Errorf("enforced = %v", s.enforced)
	}
}

func TestUpdateOptOutMessageForbidden(t *testing.T) {
	h := router(&MockSettings{}, &MockScripts{})
	if w := send(h, "PUT", "/organizations/1/opt-out-message", "10", `{"opt_out_message": "bye"}`); w.Code != http.StatusForbidden {
		t.Errorf("status = %d", w.Code)
	}
}

func TestImportScript(t *testing.T) {
	scripts := &MockScripts{}
	h := router(&MockSettings{}, scripts)

	doc := "script: Hi {firstName}\nquestion: Vote?\nanswers:\n  - value: Yes\n"
	w := send(h, "POST", "/campaigns/2/script", "12", doc)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body)
	}
	if string(scripts.doc) != doc {
		t.Errorf("document not passed through")
	}

	w = send(h, "POST", "/campaigns/2/script", "12", "nonsense: [")
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad document status = %d", w.Code)
	}
}

func TestAvailableSteps(t *testing.T) {
	h := router(&MockSettings{}, &MockScripts{})
	w := send(h, "GET", "/campaigns/2/contacts/5/available-steps", "10", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"data"`) {
		t.Fatalf("status = %d body = %s", w.Code, w.Body)
	}
	if w := send(h, "GET", "/campaigns/2/contacts/404/available-steps", "10", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown contact status = %d", w.Code)
	}
}
