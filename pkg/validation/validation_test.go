package validation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quoteBody struct {
	Amount       decimal.Decimal  `json:"amount" validate:"money"`
	ExpectedDays int              `json:"expectedDays" validate:"required,term"`
	Tip          *decimal.Decimal `json:"tip" validate:"omitempty,money"`
}

type lawyerBody struct {
	BarNumber    string `json:"barNumber" validate:"omitempty,barnum"`
	Jurisdiction string `json:"jurisdiction" validate:"omitempty,jurisdiction"`
	Name         string `validate:"required"`
}

func TestValidate_Money(t *testing.T) {
	cases := []struct {
		amount string
		ok     bool
	}{
		{"1500", true},
		{"1200.50", true},
		{"0.01", true},
		{"0", false},
		{"-5", false},
		{"10.005", false},
	}
	for _, tc := range cases {
		t.Run(tc.amount, func(t *testing.T) {
			errs, err := Validate(quoteBody{Amount: decimal.RequireFromString(tc.amount), ExpectedDays: 30})
			require.NoError(t, err)
			if tc.ok {
				assert.Empty(t, errs)
				return
			}
			assert.Equal(t, []string{"Must be a positive amount with at most 2 decimal places"}, errs["amount"])
		})
	}

	// pointers are checked only when present
	bad := decimal.RequireFromString("0.001")
	errs, err := Validate(quoteBody{Amount: decimal.NewFromInt(1), ExpectedDays: 1, Tip: &bad})
	require.NoError(t, err)
	assert.Contains(t, errs, "tip")
}

func TestValidate_Term(t *testing.T) {
	for days, ok := range map[int]bool{1: true, 365: true, 366: false, -1: false} {
		errs, err := Validate(quoteBody{Amount: decimal.NewFromInt(10), ExpectedDays: days})
		require.NoError(t, err)
		if ok {
			assert.Empty(t, errs, "days=%d", days)
		} else {
			assert.Equal(t, []string{"Must be between 1 and 365 days"}, errs["expectedDays"], "days=%d", days)
		}
	}

	errs, err := Validate(quoteBody{Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	assert.Equal(t, []string{"This field is required"}, errs["expectedDays"])
}

func TestValidate_LawyerFields(t *testing.T) {
	errs, err := Validate(lawyerBody{BarNumber: "SG/2020-114", Jurisdiction: "sg", Name: "Lee"})
	require.NoError(t, err)
	assert.Empty(t, errs)

	errs, err = Validate(lawyerBody{BarNumber: "#!", Jurisdiction: "SGP"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Invalid bar number format"}, errs["barNumber"])
	assert.Contains(t, errs, "jurisdiction")
	// no json tag falls back to the Go field name
	assert.Equal(t, []string{"This field is required"}, errs["Name"])
}
