package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	budgetapp "github.com/orcamento/backend/internal/application/budget"
	"github.com/orcamento/backend/internal/domain/budget"
	"github.com/orcamento/backend/internal/interfaces/http/middleware"
	"github.com/orcamento/backend/internal/interfaces/http/router"
)

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, middleware.SetupValidator())

	service := budgetapp.NewReallocationService(budget.NewEngine(), nil)
	engine := gin.New()
	engine.Use(middleware.RequestID())
	router.NewRouter(engine).
		Register(NewReallocationHandler(service)).
		Register(NewSystemHandler("budget-backend")).
		Setup()
	return engine
}

func post(t *testing.T, engine *gin.Engine, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)
	return w
}

const sampleBody = `{
	"sources": [{
		"code": "500",
		"units": [{
			"code": "140102",
			"name": "PLANNING DEPT",
			"natures": [
				{"code": "319011", "name": "Salaries", "original_balance": 100, "current_balance": -30},
				{"code": "33.90.30", "name": "Supplies", "original_balance": 200},
				{"code": "449052", "name": "Equipment", "original_balance": 150}
			]
		}]
	}]
}`

func TestRunEndpoint(t *testing.T) {
	engine := newTestEngine(t)

	w := post(t, engine, "/api/v1/budget/reallocations", sampleBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var envelope struct {
		Success bool                           `json:"success"`
		Data    budgetapp.ReallocationResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.True(t, envelope.Success)

	require.Len(t, envelope.Data.Transfers, 1)
	tr := envelope.Data.Transfers[0]
	assert.Equal(t, "339030", tr.DonorNature)
	assert.Equal(t, "319011", tr.ReceiverNature)
	assert.Equal(t, "30", tr.Amount.String())

	assert.True(t, envelope.Data.Validation.Valid)
	assert.Len(t, envelope.Data.Balances, 3)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRunEndpointValidation(t *testing.T) {
	engine := newTestEngine(t)

	t.Run("rejects non 6-digit nature code", func(t *testing.T) {
		body := strings.Replace(sampleBody, "319011", "31901", 1)
		w := post(t, engine, "/api/v1/budget/reallocations", body)
		require.Equal(t, http.StatusBadRequest, w.Code)

		var envelope struct {
			Success bool `json:"success"`
			Error   struct {
				Code    string `json:"code"`
				Details []struct {
					Field   string `json:"field"`
					Message string `json:"message"`
				} `json:"details"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
		assert.False(t, envelope.Success)
		assert.Equal(t, "ERR_VALIDATION", envelope.Error.Code)
		require.NotEmpty(t, envelope.Error.Details)
		assert.Equal(t, "Must be a 6-digit code", envelope.Error.Details[0].Message)
	})

	t.Run("rejects empty sources", func(t *testing.T) {
		w := post(t, engine, "/api/v1/budget/reallocations", `{"sources": []}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		w := post(t, engine, "/api/v1/budget/reallocations", `{"sources": [`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRunEndpointForbiddenConfigErrors(t *testing.T) {
	engine := newTestEngine(t)

	body := strings.Replace(sampleBody,
		`"sources": [{`,
		`"forbidden_sources": ["999"], "sources": [{`, 1)

	w := post(t, engine, "/api/v1/budget/reallocations", body)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	var envelope struct {
		Error struct {
			Code      string `json:"code"`
			RequestID string `json:"request_id"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "ERR_FORBIDDEN_SOURCE", envelope.Error.Code)
	assert.NotEmpty(t, envelope.Error.RequestID)
}

func TestPreviewEndpoint(t *testing.T) {
	engine := newTestEngine(t)

	w := post(t, engine, "/api/v1/budget/reallocations/preview", sampleBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var envelope struct {
		Data budgetapp.PreviewResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data.Transfers, 1)
	assert.Equal(t, "30", envelope.Data.Transfers[0].Amount.String())
}

func TestValidateTableEndpoint(t *testing.T) {
	engine := newTestEngine(t)

	w := post(t, engine, "/api/v1/budget/tables/validate", sampleBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var envelope struct {
		Data budgetapp.ValidationView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.False(t, envelope.Data.Valid)
	require.Len(t, envelope.Data.Violations, 1)
	assert.Equal(t, "RESIDUAL_DEFICIT", envelope.Data.Violations[0].Type)
}

func TestHealthEndpoint(t *testing.T) {
	engine := newTestEngine(t)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/system/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}
