// internal/handler/organization_handler.go
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/canvass-backend/internal/controller"
	"github.com/unclebandit/canvass-backend/internal/model"
)

type OrganizationSettings interface {
	UpdateTextingHours(ctx context.Context, userID, organizationID, start, end int) (*model.Organization, error)
	UpdateTextingHoursEnforcement(ctx context.Context, userID, organizationID int, enforced bool) (*model.Organization, error)
	UpdateOptOutMessage(ctx context.Context, userID, organizationID int, message string) (*model.Organization, error)
}

// OrganizationHandler serves the admin settings that shape texting hours
// and opt-outs.
type OrganizationHandler struct {
	Settings OrganizationSettings
}

func (h *OrganizationHandler) Routes(r chi.Router) {
	r.Route("/organizations/{id}", func(r chi.Router) {
		r.Put("/texting-hours", h.UpdateTextingHours)
		r.Put("/texting-hours-enforcement", h.UpdateTextingHoursEnforcement)
		r.Put("/opt-out-message", h.UpdateOptOutMessage)
	})
}

// update decodes the body into payload and writes the organization that
// apply returns.
func (h *OrganizationHandler) update(w http.ResponseWriter, r *http.Request, payload any, apply func(ctx context.Context, userID, orgID int) (*model.Organization, error)) {
	id, err := controller.URLInt(r, "id")
	if err != nil {
		controller.WriteError(w, r, err)
		return
	}
	if err := controller.DecodeJSON(r, payload); err != nil {
		controller.WriteError(w, r, err)
		return
	}
	org, err := apply(r.Context(), controller.UserID(r.Context()), id)
	if err != nil {
		controller.WriteError(w, r, err)
		return
	}
	controller.WriteJSON(w, http.StatusOK, org)
}

func (h *OrganizationHandler) UpdateTextingHours(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Start *int `json:"texting_hours_start"`
		End   *int `json:"texting_hours_end"`
	}
	h.update(w, r, &payload, func(ctx context.Context, userID, orgID int) (*model.Organization, error) {
		if payload.Start == nil || payload.End == nil {
			return nil, &controller.BadRequestError{Msg: "texting_hours_start and texting_hours_end are required"}
		}
		return h.Settings.UpdateTextingHours(ctx, userID, orgID, *payload.Start, *payload.End)
	})
}

func (h *OrganizationHandler) UpdateTextingHoursEnforcement(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Enforced *bool `json:"texting_hours_enforced"`
	}
	h.update(w, r, &payload, func(ctx context.Context, userID, orgID int) (*model.Organization, error) {
		if payload.Enforced == nil {
			return nil, &controller.BadRequestError{Msg: "texting_hours_enforced is required"}
		}
		return h.Settings.UpdateTextingHoursEnforcement(ctx, userID, orgID, *payload.Enforced)
	})
}

func (h *OrganizationHandler) UpdateOptOutMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message string `json:"opt_out_message"`
	}
	h.update(w, r, &payload, func(ctx context.Context, userID, orgID int) (*model.Organization, error) {
		return h.Settings.UpdateOptOutMessage(ctx, userID, orgID, payload.Message)
	})
}
