// internal/handler/campaign_handler.go
package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/canvass-backend/internal/controller"
	"github.com/unclebandit/canvass-backend/internal/survey"
)

// MaxScriptBytes bounds an imported script document.
const MaxScriptBytes = 1 << 20

type ScriptImporter interface {
	ImportScript(ctx context.Context, userID, campaignID int, document []byte) ([]survey.Step, error)
}

type StepLister interface {
	AvailableSteps(ctx context.Context, campaignID, contactID int) ([]survey.Step, error)
}

// CampaignHandler serves campaign script endpoints.
type CampaignHandler struct {
	Scripts ScriptImporter
	Steps   StepLister
}

func (h *CampaignHandler) Routes(r chi.Router) {
	r.Post("/campaigns/{id}/script", h.ImportScript)
	r.Get("/campaigns/{id}/contacts/{contactId}/available-steps", h.AvailableSteps)
}

// ImportScript replaces the campaign's script with the YAML request body.
func (h *CampaignHandler) ImportScript(w http.ResponseWriter, r *http.Request) {
	id, err := controller.URLInt(r, "id")
	if err != nil {
		controller.WriteError(w, r, err)
		return
	}
	doc, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxScriptBytes))
	if err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	steps, err := h.Scripts.ImportScript(r.Context(), controller.UserID(r.Context()), id, doc)
	if err != nil {
		controller.WriteError(w, r, err)
		return
	}
	controller.WriteJSON(w, http.StatusOK, map[string]any{
		"campaign_id": id,
		"steps":       steps,
	})
}

// AvailableSteps returns the survey questions open to a contact given its
// recorded answers.
func (h *CampaignHandler) AvailableSteps(w http.ResponseWriter, r *http.Request) {
	campaignID, err := controller.URLInt(r, "id")
	if err != nil {
		controller.WriteError(w, r, err)
		return
	}
	contactID, err := controller.URLInt(r, "contactId")
	if err != nil {
		controller.WriteError(w, r, err)
		return
	}

	steps, err := h.Steps.AvailableSteps(r.Context(), campaignID, contactID)
	if err != nil {
		controller.WriteError(w, r, err)
		return
	}
	controller.WriteJSON(w, http.StatusOK, map[string]any{"data": steps})
}
