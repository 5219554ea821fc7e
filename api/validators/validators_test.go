package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lastline-erp/lastline-backend/pkg/enums"
	pkgerrors "github.com/lastline-erp/lastline-backend/pkg/errors"
)

type issueLine struct {
	Category enums.CostCategory `json:"category" validate:"required,cost_category"`
	ItemID   string             `json:"item_id" validate:"required"`
	Issue    *decimal.Decimal   `json:"issue"`
}

type issueRequest struct {
	Lines []issueLine `json:"lines" validate:"required,min=1,dive"`
}

func decode(t *testing.T, body string) error {
	t.Helper()
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(body))
	var dest issueRequest
	return DecodeJSONBody(req, &dest)
}

func detailsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details, _ := typed.Details().(map[string]string)
	return details
}

func TestDecodeJSONBodyAcceptsValidPayload(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"lines":[{"category":"upper","item_id":"LEA-1","issue":"12.5"}]}`))
	var dest issueRequest
	require.NoError(t, DecodeJSONBody(req, &dest))
	require.Len(t, dest.Lines, 1)
	assert.True(t, dest.Lines[0].Issue.Equal(decimal.RequireFromString("12.5")))
}

func TestDecodeJSONBodyReportsNestedFieldPaths(t *testing.T) {
	err := decode(t, `{"lines":[{"category":"upper","item_id":"A"},{"category":"soles","item_id":""}]}`)
	details := detailsOf(t, err)
	assert.Equal(t, "is required", details["lines[1].item_id"])
	assert.Contains(t, details["lines[1].category"], "must be one of")
	assert.NotContains(t, details, "lines[0].item_id")
}

func TestDecodeJSONBodyRejectsEmptyLines(t *testing.T) {
	details := detailsOf(t, decode(t, `{"lines":[]}`))
	assert.Equal(t, "must contain at least 1 item(s)", details["lines"])
}

func TestDecodeJSONBodyRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"empty":         ``,
		"unknown field": `{"lines":[],"extra":true}`,
		"trailing data": `{"lines":[{"category":"upper","item_id":"A"}]} {}`,
		"bad decimal":   `{"lines":[{"category":"upper","item_id":"A","issue":"abc"}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			err := decode(t, body)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
		})
	}
}

func TestDecodeJSONBodyEnforcesSizeLimit(t *testing.T) {
	body := `{"lines":[{"category":"upper","item_id":"` + strings.Repeat("x", MaxBodyBytes) + `"}]}`
	err := decode(t, body)
	require.Error(t, err)
	assert.Equal(t, "request body too large", pkgerrors.As(err).Message())
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=25&bad=x&big=900", nil)

	v, err := ParseQueryInt(req, "limit", 50, 1, 200)
	require.NoError(t, err)
	assert.Equal(t, 25, v)

	v, err = ParseQueryInt(req, "missing", 50, 1, 200)
	require.NoError(t, err)
	assert.Equal(t, 50, v)

	_, err = ParseQueryInt(req, "bad", 50, 1, 200)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = ParseQueryInt(req, "big", 50, 1, 200)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParseQueryEnum(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?status=pending_to_store&category=Soles", nil)

	status, err := ParseQueryEnum(req, "status", enums.ParseRequisitionStatus)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, enums.RequisitionStatusPendingToStore, *status)

	absent, err := ParseQueryEnum(req, "missing", enums.ParseRequisitionStatus)
	require.NoError(t, err)
	assert.Nil(t, absent)

	_, err = ParseQueryEnum(req, "category", enums.ParseCostCategory)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "Plant 2", SanitizeString("  Plant 2 \x00", 0))
	assert.Equal(t, "line one\nline two", SanitizeString("line one\nline two", 100))
	assert.Equal(t, "çãé", SanitizeString("çãéíó", 3))
	assert.Equal(t, "ab", SanitizeString("ab  cd", 3))
}
