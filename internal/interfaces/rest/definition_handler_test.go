package rest_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/digi-serve/ab-service-definition-manager/internal/application/services"
	"github.com/digi-serve/ab-service-definition-manager/internal/domain/events"
	"github.com/digi-serve/ab-service-definition-manager/internal/domain/models"
	"github.com/digi-serve/ab-service-definition-manager/internal/interfaces/rest"
	"github.com/digi-serve/ab-service-definition-manager/pkg/constants"
	apperrors "github.com/digi-serve/ab-service-definition-manager/pkg/errors"
)

func newTestContext(w http.ResponseWriter, method, path string, body interface{}, params ...gin.Param) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(w)

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}
	c.Request = httptest.NewRequest(method, path, reader)
	c.Request.Header.Set(constants.HeaderContentType, constants.ContentTypeJSON)
	c.Set(constants.ContextKeyTenant, "t1")
	c.Params = params
	return c
}

// streamRecorder lets gin's Stream watch for a client that never goes away.
type streamRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *streamRecorder) CloseNotify() <-chan bool { return r.closed }

func TestDefinitionHandler_Import(t *testing.T) {
	mockService := new(MockDefinitionService)
	handler := rest.NewDefinitionHandler(mockService, &fakeStreamer{})

	t.Run("Success", func(t *testing.T) {
		w := httptest.NewRecorder()
		c := newTestContext(w, "POST", "/api/definitions/import",
			`{"json":{"definitions":[{"id":"A1","type":"application","name":"Sales","json":{}}]}}`)

		isBundle := mock.MatchedBy(func(b *models.Bundle) bool {
			return len(b.Definitions) == 1 && b.Definitions[0].ID == "A1"
		})
		mockService.On("Import", mock.Anything, "t1", isBundle).Return(&services.ImportResult{Developer: 2}, nil).Once()

		handler.Import(c)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{}`, w.Body.String(), "item errors go to the notifier, not the caller")
		mockService.AssertExpectations(t)
	})

	t.Run("Missing bundle", func(t *testing.T) {
		w := httptest.NewRecorder()
		c := newTestContext(w, "POST", "/api/definitions/import", `{}`)
		untouched := new(MockDefinitionService)

		rest.NewDefinitionHandler(untouched, &fakeStreamer{}).Import(c)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		untouched.AssertNotCalled(t, "Import", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Invalid bundle", func(t *testing.T) {
		w := httptest.NewRecorder()
		c := newTestContext(w, "POST", "/api/definitions/import", `{"json":{"definitions":[{"id":"","type":"object"}]}}`)

		mockService.On("Import", mock.Anything, "t1", mock.Anything).
			Return(nil, apperrors.NewValidationError("id", "definition id is required")).Once()

		handler.Import(c)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
	})
}

func TestDefinitionHandler_Create(t *testing.T) {
	mockService := new(MockDefinitionService)
	handler := rest.NewDefinitionHandler(mockService, &fakeStreamer{})

	w := httptest.NewRecorder()
	c := newTestContext(w, "POST", "/api/definitions", `{"name":"Lead","type":"object","json":{"tableName":"AB_Lead"}}`)

	isLead := mock.MatchedBy(func(d *models.Definition) bool {
		return d.Name == "Lead" && d.Type == models.TypeObject
	})
	created := &models.Definition{ID: "O1", Name: "Lead", Type: models.TypeObject, JSON: json.RawMessage(`{"tableName":"AB_Lead"}`)}
	mockService.On("Create", mock.Anything, "t1", isLead).Return(created, nil).Once()

	handler.Create(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	var got models.Definition
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "O1", got.ID)
	mockService.AssertExpectations(t)
}

func TestDefinitionHandler_Update(t *testing.T) {
	mockService := new(MockDefinitionService)
	handler := rest.NewDefinitionHandler(mockService, &fakeStreamer{})

	t.Run("Success", func(t *testing.T) {
		w := httptest.NewRecorder()
		c := newTestContext(w, "PATCH", "/api/definitions/A1", `{"name":"Sales CRM"}`, gin.Param{Key: "id", Value: "A1"})

		renamed := mock.MatchedBy(func(p services.DefinitionPatch) bool {
			return p.Name != nil && *p.Name == "Sales CRM" && p.JSON == nil
		})
		mockService.On("Update", mock.Anything, "t1", "A1", renamed).
			Return(&models.Definition{ID: "A1", Name: "Sales CRM"}, nil).Once()

		handler.Update(c)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Sales CRM")
	})

	t.Run("Conflict", func(t *testing.T) {
		w := httptest.NewRecorder()
		c := newTestContext(w, "PATCH", "/api/definitions/A1", `{"name":"Dup"}`, gin.Param{Key: "id", Value: "A1"})

		mockService.On("Update", mock.Anything, "t1", "A1", mock.Anything).
			Return(nil, apperrors.NewConflictError("definition", "id", "A1")).Once()

		handler.Update(c)

		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestDefinitionHandler_DeleteMissing(t *testing.T) {
	mockService := new(MockDefinitionService)
	handler := rest.NewDefinitionHandler(mockService, &fakeStreamer{})

	w := httptest.NewRecorder()
	c := newTestContext(w, "DELETE", "/api/definitions/nope", nil, gin.Param{Key: "id", Value: "nope"})

	mockService.On("Delete", mock.Anything, "t1", "nope").Return(nil, apperrors.NewNotFoundError("definition", "nope")).Once()

	handler.Delete(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")
}

func TestDefinitionHandler_ForRoles(t *testing.T) {
	mockService := new(MockDefinitionService)
	handler := rest.NewDefinitionHandler(mockService, &fakeStreamer{})

	w := httptest.NewRecorder()
	c := newTestContext(w, "POST", "/api/definitions/for-roles", `{"roles":[{"uuid":"r-2"},{"uuid":"r-1"}]}`)

	serialized := []byte(`[{"id":"A1","name":"Sales","type":"application","json":{}}]`)
	mockService.On("ForRoles", mock.Anything, "t1", []string{"r-2", "r-1"}).Return(serialized, nil).Once()

	handler.ForRoles(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(serialized), w.Body.String(), "the cached document is written as is")
	assert.Contains(t, w.Header().Get(constants.HeaderContentType), constants.ContentTypeJSON)
	mockService.AssertExpectations(t)
}

func TestDefinitionHandler_ForApp(t *testing.T) {
	mockService := new(MockDefinitionService)
	handler := rest.NewDefinitionHandler(mockService, &fakeStreamer{})

	w := httptest.NewRecorder()
	c := newTestContext(w, "GET", "/api/definitions/app/nope", nil, gin.Param{Key: "id", Value: "nope"})

	mockService.On("ForApp", mock.Anything, "t1", "nope").Return(nil, apperrors.NewNotFoundError("application", "nope")).Once()

	handler.ForApp(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDefinitionHandler_CheckUpdate(t *testing.T) {
	mockService := new(MockDefinitionService)
	handler := rest.NewDefinitionHandler(mockService, &fakeStreamer{})

	t.Run("Global", func(t *testing.T) {
		w := httptest.NewRecorder()
		c := newTestContext(w, "GET", "/api/definitions/check-update", nil)
		mockService.On("CheckUpdate", mock.Anything, "t1").Return(int64(1700000000000), nil).Once()

		handler.CheckUpdate(c)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"updated":1700000000000}`, w.Body.String())
	})

	t.Run("Mobile", func(t *testing.T) {
		w := httptest.NewRecorder()
		c := newTestContext(w, "GET", "/api/definitions/mobile-check-update/A1", nil, gin.Param{Key: "appID", Value: "A1"})
		mockService.On("MobileCheckUpdate", mock.Anything, "t1", "A1").Return(int64(1700000000001), nil).Once()

		handler.MobileCheckUpdate(c)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"updated":1700000000001}`, w.Body.String())
	})

	mockService.AssertExpectations(t)
}

func TestDefinitionHandler_EventsFiltersByTenant(t *testing.T) {
	streamer := &fakeStreamer{events: []services.PlatformEvent{
		{Type: events.DefinitionCreated, Payload: events.DefinitionChange{TenantID: "t1", ID: "A1"}},
		{Type: events.DefinitionUpdated, Payload: events.DefinitionChange{TenantID: "t2", ID: "B1"}},
		{Type: events.DefinitionStale, Payload: events.StalePayload{}},
		{Type: events.DefinitionStale, Payload: events.StalePayload{TenantID: "t2"}},
		{Type: events.ImportErrors, Payload: "ignored"},
	}}
	handler := rest.NewDefinitionHandler(new(MockDefinitionService), streamer)

	w := &streamRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool)}
	c := newTestContext(w, "GET", "/api/definitions/events", nil)

	handler.Events(c)

	body := w.Body.String()
	assert.Equal(t, 2, strings.Count(body, "event:"))
	assert.Contains(t, body, "event:definition.created")
	assert.Contains(t, body, "event:definition.stale")
	assert.NotContains(t, body, "B1")
	assert.Equal(t, constants.ContentTypeEventStream, w.Header().Get(constants.HeaderContentType))
	assert.Contains(t, streamer.types, events.DefinitionDestroyed)
}
