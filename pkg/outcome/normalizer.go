// Package outcome maps raw executor results onto the common contract the
// orchestrator branches on.
package outcome

import (
	"errors"

	"github.com/rescindhq/rescind/pkg/channels"
	"github.com/rescindhq/rescind/pkg/models"
)

// Normalize converts an executor's raw return into an Outcome. It is total:
// every combination of result and error maps to a value, and it never panics.
func Normalize(result *models.ChannelResult, err error) models.Outcome {
	if err != nil {
		return models.Outcome{
			Success: false,
			Method:  methodOf(result, err),
			Error:   err.Error(),
		}
	}

	if result == nil {
		return models.Outcome{
			Success: false,
			Error:   "executor returned no result",
		}
	}

	out := models.Outcome{
		Success: result.Success,
		Method:  result.Method,
	}

	if !result.Success {
		out.Error = result.Diagnostic
	}

	return out
}

func methodOf(result *models.ChannelResult, err error) models.ChannelMethod {
	if result != nil && result.Method != "" {
		return result.Method
	}

	var te *channels.TransportError
	if errors.As(err, &te) {
		return te.Method
	}

	var ce *channels.ConfigurationError
	if errors.As(err, &ce) {
		return ce.Method
	}

	return ""
}
