package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rescindhq/rescind/pkg/cmd"
	"github.com/rescindhq/rescind/pkg/dispatcher"
	"github.com/rescindhq/rescind/pkg/flows"
	"github.com/rescindhq/rescind/pkg/mocks"
	"github.com/rescindhq/rescind/pkg/models"
	"github.com/rescindhq/rescind/pkg/persistence/file"
)

func setupTestApp(t *testing.T) (*fiber.App, *file.Persistence, *mocks.MockEventBus) {
	t.Helper()

	persistence := file.NewPersistence(t.TempDir())
	bus := &mocks.MockEventBus{}

	api := NewAPI(
		slog.Default(),
		persistence,
		cmd.NewRegistry(slog.Default()),
		bus,
		flows.Default(),
	)

	return api.App(), persistence, bus
}

func closeBody(t *testing.T, resp *http.Response) {
	t.Helper()

	err := resp.Body.Close()
	if err != nil {
		t.Logf("Failed to close response body: %v", err)
	}
}

func dispatchBody(action, workItemID, userID string) *bytes.Reader {
	payload, _ := json.Marshal(map[string]any{
		"action":       action,
		"work_item_id": workItemID,
		"user_id":      userID,
		"metadata": map[string]any{
			"merchant":      "Netflix",
			"amount":        15.99,
			"date":          "2025-01-01",
			"account_last4": "1234",
		},
	})

	return bytes.NewReader(payload)
}

func TestAPI_RootEndpoint(t *testing.T) {
	app, _, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer closeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Rescind API", string(body))
}

func TestAPI_Liveness(t *testing.T) {
	app, _, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer closeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_DispatchCancel(t *testing.T) {
	app, persistence, bus := setupTestApp(t)

	bus.On("Publish", mock.Anything, "x1", mock.Anything).Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/dispatch", dispatchBody("cancel", "x1", "u1"))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer closeBody(t, resp)

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var result dispatcher.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.True(t, result.Success)
	assert.Equal(t, "STARTED", result.Status)
	assert.NotEmpty(t, result.ExecutionID)

	item, err := persistence.WorkItems().GetByID(req.Context(), "x1")
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemStatusPending, item.Status)
}

func TestAPI_DispatchKeep(t *testing.T) {
	app, persistence, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/dispatch", dispatchBody("keep", "x1", "u1"))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer closeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result dispatcher.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "COMPLETED", result.Status)

	item, err := persistence.WorkItems().GetByID(req.Context(), "x1")
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemStatusKept, item.Status)
}

func TestAPI_DispatchInvalidAction(t *testing.T) {
	app, _, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/dispatch", dispatchBody("invalid_value", "x1", "u1"))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer closeBody(t, resp)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "invalid_action")
}

func TestAPI_DispatchMissingUserID(t *testing.T) {
	app, _, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/dispatch", dispatchBody("cancel", "x1", ""))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer closeBody(t, resp)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "validation_error")
}

func TestAPI_GetWorkItem(t *testing.T) {
	app, persistence, _ := setupTestApp(t)

	item := &models.WorkItem{
		ID:     "x1",
		UserID: "u1",
		Kind:   models.ActionKindCancel,
		Status: models.WorkItemStatusCancelled,
		Metadata: models.WorkItemMetadata{
			Merchant: "Netflix",
		},
	}
	require.NoError(t, persistence.WorkItems().Save(httptest.NewRequest(http.MethodGet, "/", nil).Context(), item))

	req := httptest.NewRequest(http.MethodGet, "/items/x1", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer closeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var fetched models.WorkItem
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fetched))
	assert.Equal(t, models.WorkItemStatusCancelled, fetched.Status)
}

func TestAPI_GetWorkItemNotFound(t *testing.T) {
	app, _, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/items/ghost", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer closeBody(t, resp)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_GetWorkItemAttempts(t *testing.T) {
	app, persistence, _ := setupTestApp(t)

	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()

	item := &models.WorkItem{ID: "x1", UserID: "u1", Kind: models.ActionKindCancel}
	require.NoError(t, persistence.WorkItems().Save(ctx, item))
	require.NoError(t, persistence.WorkItems().AppendAttempt(ctx, &models.ChannelAttempt{
		ID:         "a1",
		WorkItemID: "x1",
		Method:     models.ChannelMethodAPI,
		Outcome:    models.AttemptOutcomeSuccess,
	}))

	req := httptest.NewRequest(http.MethodGet, "/items/x1/attempts", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer closeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		WorkItemID string                   `json:"work_item_id"`
		Attempts   []*models.ChannelAttempt `json:"attempts"`
		TotalCount int                      `json:"total_count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, 1, payload.TotalCount)
	require.Len(t, payload.Attempts, 1)
	assert.Equal(t, models.ChannelMethodAPI, payload.Attempts[0].Method)
}

func TestAPI_GetExecutionNotFound(t *testing.T) {
	app, _, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/executions/ghost", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer closeBody(t, resp)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_Health(t *testing.T) {
	app, _, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer closeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "healthy")
}
