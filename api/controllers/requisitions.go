package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/lastline-erp/lastline-backend/api/middleware"
	"github.com/lastline-erp/lastline-backend/api/responses"
	"github.com/lastline-erp/lastline-backend/api/validators"
	"github.com/lastline-erp/lastline-backend/internal/issuance"
	"github.com/lastline-erp/lastline-backend/internal/requisitions"
	"github.com/lastline-erp/lastline-backend/pkg/enums"
	pkgerrors "github.com/lastline-erp/lastline-backend/pkg/errors"
	"github.com/lastline-erp/lastline-backend/pkg/logger"
	pkgpagination "github.com/lastline-erp/lastline-backend/pkg/pagination"
)

type requisitionResponse struct {
	Requisition requisitions.View `json:"requisition"`
	Changed     bool              `json:"changed"`
	Issuance    *issuance.Batch   `json:"issuance,omitempty"`
}

func writeRequisitionOutcome(w http.ResponseWriter, outcome *requisitions.Outcome) {
	responses.WriteSuccessNotice(w, http.StatusOK, requisitionResponse{
		Requisition: requisitions.ToView(outcome.Requisition),
		Changed:     outcome.Changed,
		Issuance:    outcome.Issuance,
	}, outcome.Notice)
}

// RequisitionGet returns a requisition with its five category sequences.
func RequisitionGet(svc requisitions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "requisition service unavailable"))
			return
		}

		id, err := parseUUIDParam(r, "requisitionId", "requisition id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, requisitions.ToView(*record))
	}
}

// CardRequisitionGet returns the requisition attached to a card.
func CardRequisitionGet(svc requisitions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "requisition service unavailable"))
			return
		}

		cardID, err := parseUUIDParam(r, "cardId", "card id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.GetByCard(r.Context(), cardID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, requisitions.ToView(*record))
	}
}

// RequisitionList is the store operator queue, newest first.
func RequisitionList(svc requisitions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "requisition service unavailable"))
			return
		}

		status, err := validators.ParseQueryEnum(r, "status", enums.ParseRequisitionStatus)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := requisitions.ListParams{Status: status}

		limit, err := validators.ParseQueryInt(r, "limit", pkgpagination.DefaultLimit, 1, pkgpagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params.Params = pkgpagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		result, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type requisitionUpsertRequest struct {
	Remarks *string         `json:"remarks"`
	Lines   []issuance.Edit `json:"lines" validate:"dive"`
}

// CardRequisitionUpsert creates or updates a card's requisition. Resending
// identical line data changes nothing.
func CardRequisitionUpsert(svc requisitions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "requisition service unavailable"))
			return
		}

		cardID, err := parseUUIDParam(r, "cardId", "card id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload requisitionUpsertRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.Remarks != nil {
			remarks := validators.SanitizeString(*payload.Remarks, 2000)
			payload.Remarks = &remarks
		}

		outcome, err := svc.Upsert(r.Context(), cardID, requisitions.UpsertInput{
			Remarks:  payload.Remarks,
			Lines:    payload.Lines,
			Operator: middleware.OperatorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeRequisitionOutcome(w, outcome)
	}
}

type issuanceRequest struct {
	Lines []issuance.Edit `json:"lines" validate:"required,min=1,dive"`
}

// RequisitionIssuance records store issuance against requisition lines.
func RequisitionIssuance(svc requisitions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "requisition service unavailable"))
			return
		}

		id, err := parseUUIDParam(r, "requisitionId", "requisition id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload issuanceRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		outcome, err := svc.RecordIssuance(r.Context(), id, requisitions.IssuanceInput{
			Lines:    payload.Lines,
			Operator: middleware.OperatorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeRequisitionOutcome(w, outcome)
	}
}

type requisitionTransition func(ctx context.Context, id uuid.UUID, operator string) (*requisitions.Outcome, error)

func requisitionAction(transition requisitionTransition, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if transition == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "requisition service unavailable"))
			return
		}

		id, err := parseUUIDParam(r, "requisitionId", "requisition id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		outcome, err := transition(r.Context(), id, middleware.OperatorFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeRequisitionOutcome(w, outcome)
	}
}

// RequisitionSendToStore hands a requisition to the store.
func RequisitionSendToStore(svc requisitions.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return requisitionAction(nil, logg)
	}
	return requisitionAction(svc.SendToStore, logg)
}

// RequisitionCancel cancels a requisition. Later card syncs keep it cancelled.
func RequisitionCancel(svc requisitions.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return requisitionAction(nil, logg)
	}
	return requisitionAction(svc.Cancel, logg)
}

// RequisitionReactivate returns a cancelled requisition to the availability check.
func RequisitionReactivate(svc requisitions.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return requisitionAction(nil, logg)
	}
	return requisitionAction(svc.Reactivate, logg)
}
