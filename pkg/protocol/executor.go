// Package protocol defines the contracts between the orchestrator and the
// pluggable channel executors.
package protocol

import (
	"context"
	"log/slog"

	"github.com/rescindhq/rescind/pkg/models"
)

// ExecutionRequest is the input every channel executor receives.
type ExecutionRequest struct {
	WorkItemID string                  `json:"work_item_id"`
	UserID     string                  `json:"user_id"`
	Kind       models.ActionKind       `json:"kind"`
	Metadata   models.WorkItemMetadata `json:"metadata"`

	// Artifacts carries references saved by earlier steps of the same
	// execution, e.g. the call ID a verification step polls.
	Artifacts map[string]any `json:"artifacts,omitempty"`
}

// ChannelExecutor attempts one cancellation or dispute method.
//
// Expected business failures (merchant declined, dispute rejected) must come
// back as a ChannelResult with Success=false, never as an error. An error
// return is reserved for transport-level failures, which the orchestrator
// retries, and configuration failures, which it does not.
type ChannelExecutor interface {
	Execute(ctx context.Context, req ExecutionRequest, logger *slog.Logger) (*models.ChannelResult, error)
}

// ExecutorFactory creates executor instances from configuration.
type ExecutorFactory interface {
	Create(config map[string]any) (ChannelExecutor, error)
	ID() string
}
