package consumption

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestConsumptionOf(t *testing.T) {
	cases := []struct {
		name  string
		attrs map[string]any
		want  string
	}{
		{name: "number", attrs: map[string]any{"consumption": 0.5}, want: "0.5"},
		{name: "json number", attrs: map[string]any{"consumption": json.Number("1.25")}, want: "1.25"},
		{name: "numeric text", attrs: map[string]any{"consumptionPerUnit": " 2.5 "}, want: "2.5"},
		{name: "thousands separator", attrs: map[string]any{"qty": "1,250.5"}, want: "1250.5"},
		{name: "decimal comma", attrs: map[string]any{"rate": "0,75"}, want: "0.75"},
		{name: "decimal comma with three digits", attrs: map[string]any{"consumption": "1,234"}, want: "1.234"},
		{name: "lookup order", attrs: map[string]any{"rate": 3, "consumption": "1.5"}, want: "1.5"},
		{name: "blank falls through", attrs: map[string]any{"consumption": "  ", "consumptionRate": "4"}, want: "4"},
		{name: "null falls through", attrs: map[string]any{"consumption": nil, "quantity": 7}, want: "7"},
		{name: "snake case", attrs: map[string]any{"consumption_per_unit": "0.3333"}, want: "0.3333"},
		{name: "garbage text", attrs: map[string]any{"consumption": "n/a", "rate": 2}, want: "0"},
		{name: "negative", attrs: map[string]any{"consumption": -1}, want: "0"},
		{name: "rounded", attrs: map[string]any{"consumption": "0.123456"}, want: "0.1235"},
		{name: "missing", attrs: map[string]any{"unit": "pairs"}, want: "0"},
		{name: "nil map", attrs: nil, want: "0"},
		{name: "nested object", attrs: map[string]any{"consumption": map[string]any{"value": 1}}, want: "0"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ConsumptionOf(tc.attrs)
			assert.True(t, got.Equal(decimal.RequireFromString(tc.want)), "got %s want %s", got, tc.want)
		})
	}
}
