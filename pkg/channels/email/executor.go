// Package email provides the email channel executor. It drafts a cancellation
// request to the merchant's support address and simulates the send; a real
// deployment swaps the simulator for an SMTP or provider adapter behind the
// same factory.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rescindhq/rescind/pkg/channels"
	"github.com/rescindhq/rescind/pkg/models"
	"github.com/rescindhq/rescind/pkg/protocol"
)

// ExecutorFactory creates email executors.
type ExecutorFactory struct{}

func NewExecutorFactory() *ExecutorFactory {
	return &ExecutorFactory{}
}

func (*ExecutorFactory) ID() string {
	return "email"
}

func (f *ExecutorFactory) Create(config map[string]any) (protocol.ChannelExecutor, error) {
	if config == nil {
		config = map[string]any{}
	}

	return NewExecutor(config), nil
}

// Executor attempts cancellation by emailing the merchant's support contact.
type Executor struct {
	contacts      map[string]string
	successRate   float64
	transportRate float64
	rng           *rand.Rand
}

func NewExecutor(config map[string]any) *Executor {
	contacts := defaultContacts()
	if extra, ok := config["contacts"].(map[string]any); ok {
		for merchant, raw := range extra {
			if address, ok := raw.(string); ok {
				contacts[strings.ToLower(strings.TrimSpace(merchant))] = address
			}
		}
	}

	successRate := 0.65
	if rate, ok := config["success_rate"].(float64); ok {
		successRate = rate
	}

	transportRate, _ := config["transport_failure_rate"].(float64)

	seed := time.Now().UnixNano()
	if s, ok := config["seed"].(int64); ok {
		seed = s
	}

	return &Executor{
		contacts:      contacts,
		successRate:   successRate,
		transportRate: transportRate,
		rng:           rand.New(rand.NewSource(seed)),
	}
}

func defaultContacts() map[string]string {
	return map[string]string{
		"netflix":   "cancellations@netflix.com",
		"spotify":   "support@spotify.com",
		"hulu":      "support@hulu.com",
		"audible":   "customer-service@audible.com",
		"nytimes":   "care@nytimes.com",
		"planetfit": "memberservices@planetfitness.com",
	}
}

func (e *Executor) Execute(ctx context.Context, req protocol.ExecutionRequest, logger *slog.Logger) (*models.ChannelResult, error) {
	logger = logger.With("channel", "email", "merchant", req.Metadata.Merchant)

	address, known := e.contacts[strings.ToLower(strings.TrimSpace(req.Metadata.Merchant))]
	if !known {
		logger.Info("No support contact on file for merchant")

		return &models.ChannelResult{
			Success:    false,
			Method:     models.ChannelMethodEmail,
			Merchant:   req.Metadata.Merchant,
			WorkItemID: req.WorkItemID,
			Diagnostic: "no support contact on file",
		}, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, channels.NewTransportError(models.ChannelMethodEmail, "send", err)
	}

	if e.transportRate > 0 && e.rng.Float64() < e.transportRate {
		return nil, channels.NewTransportError(models.ChannelMethodEmail, "send", channels.ErrUpstreamTimeout)
	}

	draftID := "drf-" + uuid.New().String()[:8]
	subject := fmt.Sprintf("Cancellation request: account ending %s", req.Metadata.AccountLast4)

	if e.rng.Float64() >= e.successRate {
		logger.Info("Merchant rejected emailed cancellation", "to", address, "draft_id", draftID)

		return &models.ChannelResult{
			Success:    false,
			Method:     models.ChannelMethodEmail,
			Merchant:   req.Metadata.Merchant,
			WorkItemID: req.WorkItemID,
			Diagnostic: "merchant rejected emailed cancellation request",
			Artifacts: map[string]any{
				"draft_id": draftID,
			},
		}, nil
	}

	emailID := "eml-" + uuid.New().String()[:8]

	logger.Info("Cancellation email accepted", "to", address, "email_id", emailID)

	return &models.ChannelResult{
		Success:             true,
		Method:              models.ChannelMethodEmail,
		Merchant:            req.Metadata.Merchant,
		WorkItemID:          req.WorkItemID,
		ExternalReferenceID: emailID,
		Artifacts: map[string]any{
			"email_id": emailID,
			"draft_id": draftID,
			"subject":  subject,
		},
	}, nil
}
