package consumption

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/lastline-erp/lastline-backend/pkg/quantity"
)

// consumptionFields is the lookup order for the per-unit consumption value of
// a cost row. Cost sheets are typed by hand, so the same figure shows up under
// several names.
var consumptionFields = []string{
	"consumption",
	"consumptionPerUnit",
	"consumption_per_unit",
	"consumptionRate",
	"consumption_rate",
	"rate",
	"quantity",
	"qty",
}

var (
	nameFields          = []string{"itemName", "item_name", "name"}
	specificationFields = []string{"specification", "spec"}
	departmentFields    = []string{"department", "dept"}
)

// ConsumptionOf returns the per-unit consumption stored in a raw cost row.
// The first non-blank field in lookup order wins; a value that is not a finite
// number, or is negative, reads as zero.
func ConsumptionOf(attrs map[string]any) decimal.Decimal {
	value, ok := firstPresent(attrs, consumptionFields)
	if !ok {
		return quantity.Zero
	}
	return quantity.ClampZero(quantity.ParseRateOrZero(value))
}

// firstPresent returns the first field whose value is neither missing, null
// nor blank text.
func firstPresent(attrs map[string]any, fields []string) (any, bool) {
	for _, field := range fields {
		value, ok := attrs[field]
		if !ok || value == nil {
			continue
		}
		if text, isText := value.(string); isText && strings.TrimSpace(text) == "" {
			continue
		}
		return value, true
	}
	return nil, false
}

func textOf(attrs map[string]any, fields []string) string {
	value, ok := firstPresent(attrs, fields)
	if !ok {
		return ""
	}
	text, isText := value.(string)
	if !isText {
		return ""
	}
	return strings.TrimSpace(text)
}
