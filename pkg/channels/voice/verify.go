package voice

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

// VerifyFactory creates dispute verification executors.
type VerifyFactory struct{}

func NewVerifyFactory() *VerifyFactory {
	return &VerifyFactory{}
}

func (*VerifyFactory) ID() string {
	return "voice-verify"
}

func (f *VerifyFactory) Create(config map[string]any) (protocol.ChannelExecutor, error) {
	if config == nil {
		config = map[string]any{}
	}

	return NewVerifier(config), nil
}

// Verifier polls the final outcome of a previously initiated dispute call.
type Verifier struct {
	successRate   float64
	transportRate float64
	rng           *rand.Rand
}

func NewVerifier(config map[string]any) *Verifier {
	successRate := 0.7
	if rate, ok := config["success_rate"].(float64); ok {
		successRate = rate
	}

	transportRate, _ := config["transport_failure_rate"].(float64)

	seed := time.Now().UnixNano()
	if s, ok := config["seed"].(int64); ok {
		seed = s
	}

	return &Verifier{
		successRate:   successRate,
		transportRate: transportRate,
		rng:           rand.New(rand.NewSource(seed)),
	}
}

func (v *Verifier) Execute(ctx context.Context, req protocol.ExecutionRequest, logger *slog.Logger) (*models.ChannelResult, error) {
	logger = logger.With("channel", "voice-verify", "merchant", req.Metadata.Merchant)

	callID, _ := req.Artifacts["call_id"].(string)
	if callID == "" {
		return nil, channels.NewConfigurationError(models.ChannelMethodVoice, channels.ErrMissingConfiguration)
	}

	if err := ctx.Err(); err != nil {
		return nil, channels.NewTransportError(models.ChannelMethodVoice, "poll", err)
	}

	if v.transportRate > 0 && v.rng.Float64() < v.transportRate {
		return nil, channels.NewTransportError(models.ChannelMethodVoice, "poll", channels.ErrMalformedResponse)
	}

	if v.rng.Float64() >= v.successRate {
		logger.Info("Dispute was not accepted", "call_id", callID)

		return &models.ChannelResult{
			Success:    false,
			Method:     models.ChannelMethodVoice,
			Merchant:   req.Metadata.Merchant,
			WorkItemID: req.WorkItemID,
			Diagnostic: "dispute not accepted by the issuing bank",
			Artifacts: map[string]any{
				"call_id": callID,
				"outcome": "dispute_rejected",
			},
		}, nil
	}

	caseID := "cse-" + uuid.New().String()[:8]

	logger.Info("Dispute submitted", "call_id", callID, "case_id", caseID)

	return &models.ChannelResult{
		Success:             true,
		Method:              models.ChannelMethodVoice,
		Merchant:            req.Metadata.Merchant,
		WorkItemID:          req.WorkItemID,
		ExternalReferenceID: caseID,
		Artifacts: map[string]any{
			"call_id": callID,
			"case_id": caseID,
			"outcome": "dispute_submitted",
		},
	}, nil
}
