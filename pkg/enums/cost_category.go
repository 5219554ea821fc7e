package enums

import (
	"fmt"
	"strings"
)

// CostCategory identifies one of the five cost-sheet sections a material belongs to.
type CostCategory string

const (
	CostCategoryUpper         CostCategory = "upper"
	CostCategoryMaterial      CostCategory = "material"
	CostCategoryComponent     CostCategory = "component"
	CostCategoryPackaging     CostCategory = "packaging"
	CostCategoryMiscellaneous CostCategory = "miscellaneous"
)

// CostCategories lists the categories in cost-sheet order.
var CostCategories = []CostCategory{
	CostCategoryUpper,
	CostCategoryMaterial,
	CostCategoryComponent,
	CostCategoryPackaging,
	CostCategoryMiscellaneous,
}

// String implements fmt.Stringer.
func (c CostCategory) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CostCategory.
func (c CostCategory) IsValid() bool {
	for _, candidate := range CostCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// Position returns the index of the category in cost-sheet order, or -1.
func (c CostCategory) Position() int {
	for i, candidate := range CostCategories {
		if candidate == c {
			return i
		}
	}
	return -1
}

// ParseCostCategory converts raw input into a CostCategory. Matching ignores
// case and surrounding whitespace.
func ParseCostCategory(value string) (CostCategory, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range CostCategories {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cost category %q", value)
}
