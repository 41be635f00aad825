// Package voice provides the voice channel executor and the dispute
// verification executor. Calls are simulated; a production deployment swaps
// the simulator for a real voice-agent adapter behind the same factories.
package voice

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rescindhq/rescind/pkg/channels"
	"github.com/rescindhq/rescind/pkg/models"
	"github.com/rescindhq/rescind/pkg/protocol"
)

// ExecutorFactory creates voice executors.
type ExecutorFactory struct{}

func NewExecutorFactory() *ExecutorFactory {
	return &ExecutorFactory{}
}

func (*ExecutorFactory) ID() string {
	return "voice"
}

func (f *ExecutorFactory) Create(config map[string]any) (protocol.ChannelExecutor, error) {
	if config == nil {
		config = map[string]any{}
	}

	return NewExecutor(config), nil
}

// Executor places a cancellation or dispute call.
//
// For cancel items the call runs to completion and the result reflects the
// merchant's answer. For dispute items the call is only initiated here; a
// later verification step polls its final outcome.
type Executor struct {
	directory     *Directory
	defaultBank   string
	successRate   float64
	transportRate float64
	rng           *rand.Rand
}

func NewExecutor(config map[string]any) *Executor {
	directory := DefaultDirectory()
	if numbers, ok := config["numbers"].(map[string]any); ok {
		directory = directory.WithNumbers(numbers)
	}

	defaultBank, _ := config["default_bank"].(string)

	successRate := 0.55
	if rate, ok := config["success_rate"].(float64); ok {
		successRate = rate
	}

	transportRate, _ := config["transport_failure_rate"].(float64)

	seed := time.Now().UnixNano()
	if s, ok := config["seed"].(int64); ok {
		seed = s
	}

	return &Executor{
		directory:     directory,
		defaultBank:   defaultBank,
		successRate:   successRate,
		transportRate: transportRate,
		rng:           rand.New(rand.NewSource(seed)),
	}
}

func (e *Executor) Execute(ctx context.Context, req protocol.ExecutionRequest, logger *slog.Logger) (*models.ChannelResult, error) {
	logger = logger.With("channel", "voice", "merchant", req.Metadata.Merchant)

	number, ok := e.directory.Resolve(req.Metadata.CustomPhoneNumber, req.Metadata.Merchant, e.defaultBank)
	if !ok {
		// Not retryable: no amount of retrying conjures a number.
		return nil, channels.NewConfigurationError(models.ChannelMethodVoice, channels.ErrNoDestination)
	}

	if err := ctx.Err(); err != nil {
		return nil, channels.NewTransportError(models.ChannelMethodVoice, "dial", err)
	}

	if e.transportRate > 0 && e.rng.Float64() < e.transportRate {
		return nil, channels.NewTransportError(models.ChannelMethodVoice, "dial", channels.ErrUpstreamTimeout)
	}

	callID := "cal-" + uuid.New().String()[:8]

	if req.Kind == models.ActionKindDispute {
		logger.Info("Dispute call initiated", "number", number, "call_id", callID)

		return &models.ChannelResult{
			Success:             true,
			Method:              models.ChannelMethodVoice,
			Merchant:            req.Metadata.Merchant,
			WorkItemID:          req.WorkItemID,
			ExternalReferenceID: callID,
			Diagnostic:          "call initiated",
			Artifacts: map[string]any{
				"call_id":       callID,
				"dialed_number": number,
			},
		}, nil
	}

	transcript := fmt.Sprintf(
		"Called %s on behalf of account ending %s to cancel the %s subscription.",
		req.Metadata.Merchant, req.Metadata.AccountLast4, req.Metadata.Merchant,
	)

	if e.rng.Float64() >= e.successRate {
		logger.Info("Merchant declined cancellation over the phone", "number", number, "call_id", callID)

		return &models.ChannelResult{
			Success:    false,
			Method:     models.ChannelMethodVoice,
			Merchant:   req.Metadata.Merchant,
			WorkItemID: req.WorkItemID,
			Diagnostic: "merchant declined cancellation over the phone",
			Artifacts: map[string]any{
				"call_id":    callID,
				"transcript": transcript + " The representative declined the request.",
			},
		}, nil
	}

	logger.Info("Cancellation confirmed over the phone", "number", number, "call_id", callID)

	return &models.ChannelResult{
		Success:             true,
		Method:              models.ChannelMethodVoice,
		Merchant:            req.Metadata.Merchant,
		WorkItemID:          req.WorkItemID,
		ExternalReferenceID: callID,
		Artifacts: map[string]any{
			"call_id":    callID,
			"transcript": transcript + " The representative confirmed the cancellation.",
		},
	}, nil
}
