package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/lastline-erp/lastline-backend/api/middleware"
	"github.com/lastline-erp/lastline-backend/api/responses"
	"github.com/lastline-erp/lastline-backend/api/validators"
	"github.com/lastline-erp/lastline-backend/internal/projects"
	"github.com/lastline-erp/lastline-backend/pkg/enums"
	pkgerrors "github.com/lastline-erp/lastline-backend/pkg/errors"
	"github.com/lastline-erp/lastline-backend/pkg/logger"
)

// ProjectGet returns the order quantity and allocation totals of a project.
func ProjectGet(svc projects.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "project service unavailable"))
			return
		}

		projectID, err := parseUUIDParam(r, "projectId", "project id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		overview, err := svc.Get(r.Context(), projectID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, overview)
	}
}

// ProjectCapacity returns the remaining capacity, optionally ignoring the
// card being edited.
func ProjectCapacity(svc projects.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "project service unavailable"))
			return
		}

		projectID, err := parseUUIDParam(r, "projectId", "project id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		excluding, err := parseOptionalUUIDQuery(r, "excludingCardId", "card id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		capacity, err := svc.Capacity(r.Context(), projectID, excluding)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, capacity)
	}
}

type orderQuantityRequest struct {
	OrderQuantity *decimal.Decimal `json:"order_quantity" validate:"required"`
}

// ProjectOrderQuantityUpdate records an approved purchase-order quantity.
func ProjectOrderQuantityUpdate(svc projects.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "project service unavailable"))
			return
		}

		projectID, err := parseUUIDParam(r, "projectId", "project id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload orderQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		outcome, err := svc.UpdateOrderQuantity(r.Context(), projectID, *payload.OrderQuantity, middleware.OperatorFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessNotice(w, http.StatusOK, outcome.Project, outcome.Notice)
	}
}

// ProjectCostLines returns one category of the cost sheet, or the whole sheet
// when no category is given.
func ProjectCostLines(svc projects.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "project service unavailable"))
			return
		}

		projectID, err := parseUUIDParam(r, "projectId", "project id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		category, err := validators.ParseQueryEnum(r, "category", enums.ParseCostCategory)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if category == nil {
			sheet, err := svc.CostSheet(r.Context(), projectID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, sheet)
			return
		}

		lines, err := svc.CostLines(r.Context(), projectID, *category)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, lines)
	}
}

type costLinesImportRequest struct {
	Lines []costLinePayload `json:"lines" validate:"dive"`
}

type costLinePayload struct {
	ItemID        string          `json:"item_id" validate:"required"`
	ItemName      string          `json:"item_name"`
	Specification string          `json:"specification"`
	Department    *string         `json:"department"`
	Position      int             `json:"position" validate:"min=0"`
	Attributes    json.RawMessage `json:"attributes"`
}

func (r costLinesImportRequest) toInput() []projects.CostLineInput {
	rows := make([]projects.CostLineInput, len(r.Lines))
	for i, line := range r.Lines {
		rows[i] = projects.CostLineInput{
			ItemID:        validators.SanitizeString(line.ItemID, 128),
			ItemName:      validators.SanitizeString(line.ItemName, 255),
			Specification: validators.SanitizeString(line.Specification, 1000),
			Department:    line.Department,
			Position:      line.Position,
			Attributes:    line.Attributes,
		}
	}
	return rows
}

// ProjectCostLinesImport replaces one category of the cost sheet with raw rows
// as exported from costing.
func ProjectCostLinesImport(svc projects.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "project service unavailable"))
			return
		}

		projectID, err := parseUUIDParam(r, "projectId", "project id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		category, err := enums.ParseCostCategory(chi.URLParam(r, "category"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid category"))
			return
		}

		var payload costLinesImportRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lines, err := svc.ImportCostLines(r.Context(), projectID, category, payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, lines)
	}
}
