package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lastline-erp/lastline-backend/api/middleware"
	"github.com/lastline-erp/lastline-backend/api/responses"
	"github.com/lastline-erp/lastline-backend/api/validators"
	"github.com/lastline-erp/lastline-backend/internal/allocation"
	"github.com/lastline-erp/lastline-backend/internal/cardview"
	"github.com/lastline-erp/lastline-backend/internal/productioncards"
	"github.com/lastline-erp/lastline-backend/internal/requirements"
	"github.com/lastline-erp/lastline-backend/internal/requisitions"
	pkgerrors "github.com/lastline-erp/lastline-backend/pkg/errors"
	"github.com/lastline-erp/lastline-backend/pkg/logger"
	"github.com/lastline-erp/lastline-backend/pkg/types"
	"go.uber.org/multierr"
)

type cardSaveRequest struct {
	AllocationQuantity *decimal.Decimal   `json:"allocation_quantity" validate:"required"`
	AssignedPlant      string             `json:"assigned_plant"`
	StartDate          types.NullableDate `json:"start_date"`
	EndDate            types.NullableDate `json:"end_date"`
	Remarks            string             `json:"remarks"`
}

func (r cardSaveRequest) toInput(id *uuid.UUID, projectID uuid.UUID, operator string) productioncards.SaveInput {
	return productioncards.SaveInput{
		ID:                 id,
		ProjectID:          projectID,
		AllocationQuantity: *r.AllocationQuantity,
		AssignedPlant:      validators.SanitizeString(r.AssignedPlant, 255),
		StartDate:          r.StartDate.Value,
		EndDate:            r.EndDate.Value,
		Remarks:            validators.SanitizeString(r.Remarks, 2000),
		Operator:           operator,
	}
}

type cardSaveResponse struct {
	Card        productioncards.Card `json:"card"`
	Summary     allocation.Summary   `json:"summary"`
	Requisition *requisitions.View   `json:"requisition,omitempty"`
	Changed     bool                 `json:"changed"`
}

func newCardSaveResponse(outcome *productioncards.SaveOutcome) cardSaveResponse {
	resp := cardSaveResponse{
		Card:    outcome.Card,
		Summary: outcome.Summary,
		Changed: outcome.Changed,
	}
	if outcome.Requisition != nil {
		view := requisitions.ToView(*outcome.Requisition)
		resp.Requisition = &view
	}
	return resp
}

// ProjectCards lists a project's live cards with its allocation summary.
func ProjectCards(svc productioncards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "card service unavailable"))
			return
		}

		projectID, err := parseUUIDParam(r, "projectId", "project id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), projectID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// ProjectCardCreate saves a new production card under the project.
func ProjectCardCreate(svc productioncards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "card service unavailable"))
			return
		}

		projectID, err := parseUUIDParam(r, "projectId", "project id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cardSaveRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		outcome, err := svc.Save(r.Context(), payload.toInput(nil, projectID, middleware.OperatorFromContext(r.Context())))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessNotice(w, http.StatusCreated, newCardSaveResponse(outcome), outcome.Notice)
	}
}

// CardUpdate saves changes to an existing card. An unchanged card answers
// with an informational notice and nothing is written.
func CardUpdate(svc productioncards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "card service unavailable"))
			return
		}

		cardID, err := parseUUIDParam(r, "cardId", "card id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cardSaveRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		outcome, err := svc.Save(r.Context(), payload.toInput(&cardID, uuid.Nil, middleware.OperatorFromContext(r.Context())))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessNotice(w, http.StatusOK, newCardSaveResponse(outcome), outcome.Notice)
	}
}

type cardDeleteResponse struct {
	ID      uuid.UUID              `json:"id"`
	Deleted bool                   `json:"deleted"`
	Cards   []productioncards.Card `json:"cards"`
}

// CardDelete soft-deletes a card and cancels its requisition. The response
// carries the project's remaining cards.
func CardDelete(svc productioncards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "card service unavailable"))
			return
		}

		cardID, err := parseUUIDParam(r, "cardId", "card id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		card, err := svc.Get(r.Context(), cardID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.List(r.Context(), card.ProjectID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view := cardview.New(list.Cards, svc)
		if err := view.Delete(r.Context(), cardID, middleware.OperatorFromContext(r.Context())); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cardDeleteResponse{ID: cardID, Deleted: true, Cards: view.Cards()})
	}
}

type cardsDeleteRequest struct {
	CardIDs []uuid.UUID `json:"card_ids" validate:"required,min=1"`
}

type cardDeleteFailure struct {
	CardID  uuid.UUID `json:"card_id"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

type cardsDeleteResponse struct {
	Cards    []productioncards.Card `json:"cards"`
	Failures []cardDeleteFailure    `json:"failures"`
}

// ProjectCardsDelete deletes several cards. Each card succeeds or fails on
// its own; refused cards stay in the returned list at their old position.
func ProjectCardsDelete(svc productioncards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "card service unavailable"))
			return
		}

		projectID, err := parseUUIDParam(r, "projectId", "project id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cardsDeleteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), projectID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		known := make(map[uuid.UUID]struct{}, len(list.Cards))
		for _, card := range list.Cards {
			known[card.ID] = struct{}{}
		}
		ids := make([]uuid.UUID, 0, len(payload.CardIDs))
		seen := make(map[uuid.UUID]struct{}, len(payload.CardIDs))
		for _, id := range payload.CardIDs {
			if _, ok := known[id]; !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "card not found in project"))
				return
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}

		view := cardview.New(list.Cards, svc)
		deleteErr := view.DeleteAll(r.Context(), ids, middleware.OperatorFromContext(r.Context()))

		resp := cardsDeleteResponse{Cards: view.Cards(), Failures: []cardDeleteFailure{}}
		if deleteErr == nil {
			responses.WriteSuccess(w, resp)
			return
		}

		remaining := make(map[uuid.UUID]struct{}, len(resp.Cards))
		for _, card := range resp.Cards {
			remaining[card.ID] = struct{}{}
		}
		errs := multierr.Errors(deleteErr)
		next := 0
		for _, id := range ids {
			if _, failed := remaining[id]; !failed || next >= len(errs) {
				continue
			}
			resp.Failures = append(resp.Failures, newCardDeleteFailure(id, errs[next]))
			next++
		}

		responses.WriteSuccessNotice(w, http.StatusOK, resp,
			types.WarningNotice("some cards could not be deleted and were kept"))
	}
}

func newCardDeleteFailure(id uuid.UUID, err error) cardDeleteFailure {
	failure := cardDeleteFailure{CardID: id, Code: string(pkgerrors.CodeInternal)}
	typed := pkgerrors.As(err)
	if typed == nil {
		failure.Message = pkgerrors.MetadataFor(pkgerrors.CodeInternal).PublicMessage
		return failure
	}
	failure.Code = string(typed.Code())
	failure.Message = typed.Message()
	if failure.Message == "" {
		failure.Message = pkgerrors.MetadataFor(typed.Code()).PublicMessage
	}
	return failure
}

// CardProjection previews the requirement per category for an allocation
// that has not been saved. A blank allocation previews the unset state.
func CardProjection(svc productioncards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "card service unavailable"))
			return
		}

		cardID, err := parseUUIDParam(r, "cardId", "card id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		alloc, err := requirements.ParseAllocation(r.URL.Query().Get("allocation"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		projection, err := svc.Projection(r.Context(), cardID, alloc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessNotice(w, http.StatusOK, projection, projection.Notice)
	}
}
