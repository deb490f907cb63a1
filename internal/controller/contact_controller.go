// internal/controller/contact_controller.go
package controller

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/canvass-backend/internal/model"
	"github.com/unclebandit/canvass-backend/internal/service"
	"github.com/unclebandit/canvass-backend/internal/survey"
)

type ContactService interface {
	SendMessage(ctx context.Context, in service.SendMessageInput) (*model.Message, error)
	CreateOptOut(ctx context.Context, in service.OptOutInput) (*model.Message, error)
	UpdateQuestionResponses(ctx context.Context, in service.QuestionResponsesInput) (survey.Responses, error)
	DeleteQuestionResponses(ctx context.Context, contactID, assignmentID, userID int, stepIDs []int) (survey.Responses, error)
	FinishContact(ctx context.Context, in service.FinishInput) error
	EditMessageStatus(ctx context.Context, userID, contactID int, status model.MessageStatus) (*model.CampaignContact, error)
	AddTags(ctx context.Context, userID int, tags []model.ContactTag) error
	ResolveTags(ctx context.Context, userID int, contactIDs []int, tag string) (int, error)
	Eligibility(ctx context.Context, contactID int) (*service.Eligibility, error)
}

type ContactController struct {
	Contacts  ContactService
	SendLimit func(http.Handler) http.Handler
}

func (c *ContactController) Routes(r chi.Router) {
	r.Route("/contacts", func(r chi.Router) {
		r.Post("/tags", c.AddTags)
		r.Post("/tags/resolve", c.ResolveTags)
		r.Route("/{id}", func(r chi.Router) {
			r.With(limitOrPass(c.SendLimit)).Post("/messages", c.SendMessage)
			r.With(limitOrPass(c.SendLimit)).Post("/opt-out", c.OptOut)
			r.Put("/question-responses", c.UpdateQuestionResponses)
			r.Delete("/question-responses", c.DeleteQuestionResponses)
			r.Patch("/message-status", c.EditMessageStatus)
			r.Post("/finish", c.Finish)
			r.Get("/eligibility", c.Eligibility)
		})
	})
}

// decodeForContact reads the contact id from the URL and the JSON body
// into v.
func decodeForContact(r *http.Request, v any) (int, error) {
	id, err := URLInt(r, "id")
	if err != nil {
		return 0, err
	}
	return id, DecodeJSON(r, v)
}

func (c *ContactController) SendMessage(w http.ResponseWriter, r *http.Request) {
	var in service.SendMessageInput
	id, err := decodeForContact(r, &in)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	in.ContactID, in.UserID = id, UserID(r.Context())

	msg, err := c.Contacts.SendMessage(r.Context(), in)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, msg)
}

func (c *ContactController) OptOut(w http.ResponseWriter, r *http.Request) {
	var in service.OptOutInput
	id, err := decodeForContact(r, &in)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	in.ContactID, in.UserID = id, UserID(r.Context())

	msg, err := c.Contacts.CreateOptOut(r.Context(), in)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"contact_id": id, "opted_out": true, "message": msg})
}

func (c *ContactController) UpdateQuestionResponses(w http.ResponseWriter, r *http.Request) {
	var in service.QuestionResponsesInput
	id, err := decodeForContact(r, &in)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	in.ContactID, in.UserID = id, UserID(r.Context())

	responses, err := c.Contacts.UpdateQuestionResponses(r.Context(), in)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"responses": responses})
}

func (c *ContactController) DeleteQuestionResponses(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AssignmentID       int   `json:"assignment_id"`
		InteractionStepIDs []int `json:"interaction_step_ids"`
	}
	id, err := decodeForContact(r, &body)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	responses, err := c.Contacts.DeleteQuestionResponses(r.Context(), id, body.AssignmentID, UserID(r.Context()), body.InteractionStepIDs)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"responses": responses})
}

func (c *ContactController) EditMessageStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		MessageStatus model.MessageStatus `json:"message_status"`
	}
	id, err := decodeForContact(r, &body)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	contact, err := c.Contacts.EditMessageStatus(r.Context(), UserID(r.Context()), id, body.MessageStatus)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, contact)
}

func (c *ContactController) Finish(w http.ResponseWriter, r *http.Request) {
	var in service.FinishInput
	id, err := decodeForContact(r, &in)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	in.ContactID, in.UserID = id, UserID(r.Context())

	if err := c.Contacts.FinishContact(r.Context(), in); err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"contact_id": id, "message_status": model.StatusClosed})
}

func (c *ContactController) AddTags(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Tags []model.ContactTag `json:"tags"`
	}
	if err := DecodeJSON(r, &body); err != nil {
		WriteError(w, r, err)
		return
	}
	if len(body.Tags) == 0 {
		WriteError(w, r, badRequest("no tags given"))
		return
	}
	if err := c.Contacts.AddTags(r.Context(), UserID(r.Context()), body.Tags); err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{"tagged": len(body.Tags)})
}

func (c *ContactController) ResolveTags(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ContactIDs []int  `json:"contact_ids"`
		Tag        string `json:"tag"`
	}
	if err := DecodeJSON(r, &body); err != nil {
		WriteError(w, r, err)
		return
	}
	n, err := c.Contacts.ResolveTags(r.Context(), UserID(r.Context()), body.ContactIDs, body.Tag)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{"resolved": n})
}

func (c *ContactController) Eligibility(w http.ResponseWriter, r *http.Request) {
	id, err := URLInt(r, "id")
	if err != nil {
		WriteError(w, r, err)
		return
	}
	e, err := c.Contacts.Eligibility(r.Context(), id)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, e)
}
