// Package api provides the merchant-API channel executor. It simulates the
// upstream cancellation API of known merchants; a production deployment swaps
// the simulator for a real adapter behind the same factory.
package api

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rescindhq/rescind/pkg/channels"
	"github.com/rescindhq/rescind/pkg/models"
	"github.com/rescindhq/rescind/pkg/protocol"
)

// ExecutorFactory creates merchant-API executors.
type ExecutorFactory struct{}

func NewExecutorFactory() *ExecutorFactory {
	return &ExecutorFactory{}
}

func (*ExecutorFactory) ID() string {
	return "api"
}

func (f *ExecutorFactory) Create(config map[string]any) (protocol.ChannelExecutor, error) {
	if config == nil {
		config = map[string]any{}
	}

	return NewExecutor(config), nil
}

// Executor attempts cancellation through the merchant's API.
type Executor struct {
	directory     *Directory
	transportRate float64
	rng           *rand.Rand
}

func NewExecutor(config map[string]any) *Executor {
	directory := DefaultDirectory()
	if rates, ok := config["success_rates"].(map[string]any); ok {
		directory = directory.WithRates(rates)
	}

	transportRate, _ := config["transport_failure_rate"].(float64)

	seed := time.Now().UnixNano()
	if s, ok := config["seed"].(int64); ok {
		seed = s
	}

	return &Executor{
		directory:     directory,
		transportRate: transportRate,
		rng:           rand.New(rand.NewSource(seed)),
	}
}

func (e *Executor) Execute(ctx context.Context, req protocol.ExecutionRequest, logger *slog.Logger) (*models.ChannelResult, error) {
	logger = logger.With("channel", "api", "merchant", req.Metadata.Merchant)

	entry, known := e.directory.Lookup(req.Metadata.Merchant)
	if !known {
		logger.Info("Merchant has no cancellation API")

		return &models.ChannelResult{
			Success:    false,
			Method:     models.ChannelMethodAPI,
			Merchant:   req.Metadata.Merchant,
			WorkItemID: req.WorkItemID,
			Diagnostic: "merchant has no cancellation API",
		}, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, channels.NewTransportError(models.ChannelMethodAPI, "call", err)
	}

	if e.transportRate > 0 && e.rng.Float64() < e.transportRate {
		return nil, channels.NewTransportError(models.ChannelMethodAPI, "call", channels.ErrUpstreamTimeout)
	}

	if e.rng.Float64() >= entry.SuccessRate {
		logger.Info("Merchant declined cancellation request", "endpoint", entry.Endpoint)

		return &models.ChannelResult{
			Success:    false,
			Method:     models.ChannelMethodAPI,
			Merchant:   req.Metadata.Merchant,
			WorkItemID: req.WorkItemID,
			Diagnostic: "merchant declined cancellation request",
		}, nil
	}

	cancellationID := "cnl-" + uuid.New().String()[:8]

	logger.Info("Cancellation accepted", "endpoint", entry.Endpoint, "cancellation_id", cancellationID)

	return &models.ChannelResult{
		Success:             true,
		Method:              models.ChannelMethodAPI,
		Merchant:            req.Metadata.Merchant,
		WorkItemID:          req.WorkItemID,
		ExternalReferenceID: cancellationID,
		Artifacts: map[string]any{
			"cancellation_id": cancellationID,
		},
	}, nil
}
