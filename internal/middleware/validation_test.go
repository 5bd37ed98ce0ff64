package middleware

import (
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lineRequest struct {
	ProductID string          `json:"product_id" validate:"required,uuid"`
	Quantity  *int            `json:"quantity" validate:"required,gte=1,lte=100"`
	Price     decimal.Decimal `json:"price" validate:"gte=0"`
}

func decodeLine(body string) (lineRequest, error) {
	var req lineRequest
	r := httptest.NewRequest("POST", "/api/cart/items", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return req, DecodeAndValidate(r, &req)
}

func TestProperty_QuantityRangeValidation(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("quantity outside 1..100 is rejected", prop.ForAll(
		func(quantity int) bool {
			_, err := decodeLine(fmt.Sprintf(`{"product_id":"6f1c1a52-8d0e-4f0a-9d59-2b6f0a4c8e11","quantity":%d}`, quantity))
			if quantity >= 1 && quantity <= 100 {
				return err == nil
			}
			fields := FormatValidationErrors(err)
			return len(fields) == 1 && fields[0].Field == "quantity"
		},
		gen.IntRange(-50, 150),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_RequiredFieldsAreReported(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("each missing field is listed by its JSON name", prop.ForAll(
		func(withProduct, withQuantity bool) bool {
			var parts []string
			if withProduct {
				parts = append(parts, `"product_id":"6f1c1a52-8d0e-4f0a-9d59-2b6f0a4c8e11"`)
			}
			if withQuantity {
				parts = append(parts, `"quantity":2`)
			}

			_, err := decodeLine("{" + strings.Join(parts, ",") + "}")
			missing := map[string]bool{}
			for _, f := range FormatValidationErrors(err) {
				missing[f.Field] = f.Message == "This field is required"
			}

			return missing["product_id"] == !withProduct && missing["quantity"] == !withQuantity
		},
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestDecodeAndValidate_DecimalBounds(t *testing.T) {
	req, err := decodeLine(`{"product_id":"6f1c1a52-8d0e-4f0a-9d59-2b6f0a4c8e11","quantity":1,"price":"12.50"}`)
	require.NoError(t, err)
	assert.Equal(t, "12.50", req.Price.StringFixed(2))

	_, err = decodeLine(`{"product_id":"6f1c1a52-8d0e-4f0a-9d59-2b6f0a4c8e11","quantity":1,"price":"-0.01"}`)
	fields := FormatValidationErrors(err)
	require.Len(t, fields, 1)
	assert.Equal(t, "price", fields[0].Field)
}

func TestDecodeAndValidate_MalformedBodies(t *testing.T) {
	for _, body := range []string{
		`not json`,
		`{"product_id":"6f1c1a52-8d0e-4f0a-9d59-2b6f0a4c8e11","quantity":1,"coupon":"FREE"}`,
		`{"quantity":"two"}`,
	} {
		_, err := decodeLine(body)
		assert.True(t, errors.Is(err, ErrMalformedBody), "body %q: %v", body, err)
		assert.Empty(t, FormatValidationErrors(err))

		w := httptest.NewRecorder()
		RespondWithDecodeError(w, err)
		assert.Equal(t, 400, w.Code)
	}

	_, err := decodeLine(`{"product_id":"not-a-uuid","quantity":1}`)
	fields := FormatValidationErrors(err)
	require.Len(t, fields, 1)
	assert.Equal(t, "Must be a valid UUID", fields[0].Message)
}
