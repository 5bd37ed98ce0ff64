package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var errorStatuses = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusPaymentRequired,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
}

func TestProperty_ErrorsHaveConsistentStructure(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("every error body carries code, message and an RFC3339 timestamp", prop.ForAll(
		func(message string, pick int, withDetails bool) bool {
			status := errorStatuses[pick%len(errorStatuses)]
			var details map[string]interface{}
			if withDetails {
				details = map[string]interface{}{"field": message}
			}

			w := httptest.NewRecorder()
			RespondWithErrorDetails(w, status, message, details)

			var body ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				return false
			}
			if _, err := time.Parse(time.RFC3339, body.Error.Timestamp); err != nil {
				return false
			}

			return w.Code == status &&
				w.Header().Get("Content-Type") == "application/json" &&
				body.Error.Code == http.StatusText(status) &&
				body.Error.Message == message &&
				(body.Error.Details != nil) == withDetails
		},
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }),
		gen.IntRange(0, 100),
		gen.Bool(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestRespondWithValidationErrors(t *testing.T) {
	w := httptest.NewRecorder()
	RespondWithValidationErrors(w, []ValidationError{{Field: "quantity", Message: "Value must be greater than or equal to 1"}})

	require.Equal(t, http.StatusBadRequest, w.Code)

	var body struct {
		Error struct {
			Message string `json:"message"`
			Details struct {
				ValidationErrors []ValidationError `json:"validation_errors"`
			} `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "validation failed", body.Error.Message)
	require.Len(t, body.Error.Details.ValidationErrors, 1)
	assert.Equal(t, "quantity", body.Error.Details.ValidationErrors[0].Field)
}

func TestErrorHandlingMiddleware_RecoversPanics(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	handler := ErrorHandlingMiddleware(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("POST", "/api/checkout", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "/api/checkout", logs.All()[0].ContextMap()["path"])
}
