package email

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescindhq/rescind/pkg/channels"
	"github.com/rescindhq/rescind/pkg/models"
	"github.com/rescindhq/rescind/pkg/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func request(merchant string) protocol.ExecutionRequest {
	return protocol.ExecutionRequest{
		WorkItemID: "x1",
		UserID:     "u1",
		Kind:       models.ActionKindCancel,
		Metadata: models.WorkItemMetadata{
			Merchant:     merchant,
			AccountLast4: "1234",
		},
	}
}

func TestFactoryID(t *testing.T) {
	assert.Equal(t, "email", NewExecutorFactory().ID())
}

func TestExecute_NoContactIsBusinessFailure(t *testing.T) {
	executor := NewExecutor(map[string]any{})

	result, err := executor.Execute(context.Background(), request("Corner Laundromat"), testLogger())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "no support contact on file", result.Diagnostic)
}

func TestExecute_ForcedSuccessCarriesArtifacts(t *testing.T) {
	executor := NewExecutor(map[string]any{"success_rate": 1.0})

	result, err := executor.Execute(context.Background(), request("Netflix"), testLogger())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Contains(t, result.Artifacts, "email_id")
	assert.Contains(t, result.Artifacts, "draft_id")
	assert.Contains(t, result.Artifacts["subject"], "1234")
}

func TestExecute_RejectionKeepsDraft(t *testing.T) {
	executor := NewExecutor(map[string]any{"success_rate": 0.0})

	result, err := executor.Execute(context.Background(), request("Netflix"), testLogger())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Artifacts, "draft_id")
}

func TestExecute_ContactFromConfig(t *testing.T) {
	executor := NewExecutor(map[string]any{
		"success_rate": 1.0,
		"contacts":     map[string]any{"Corner Laundromat": "help@cornerlaundromat.example"},
	})

	result, err := executor.Execute(context.Background(), request("Corner Laundromat"), testLogger())
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestExecute_TransportFailure(t *testing.T) {
	executor := NewExecutor(map[string]any{
		"success_rate":           1.0,
		"transport_failure_rate": 1.0,
	})

	_, err := executor.Execute(context.Background(), request("Netflix"), testLogger())
	require.Error(t, err)
	assert.True(t, channels.IsTransport(err))
}
