package outcome

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rescindhq/rescind/pkg/channels"
	"github.com/rescindhq/rescind/pkg/models"
)

func TestNormalize_Success(t *testing.T) {
	result := &models.ChannelResult{
		Success:    true,
		Method:     models.ChannelMethodAPI,
		Merchant:   "Netflix",
		WorkItemID: "x1",
	}

	out := Normalize(result, nil)

	assert.True(t, out.Success)
	assert.Equal(t, models.ChannelMethodAPI, out.Method)
	assert.Empty(t, out.Error)
}

func TestNormalize_BusinessFailure(t *testing.T) {
	result := &models.ChannelResult{
		Success:    false,
		Method:     models.ChannelMethodEmail,
		Diagnostic: "no support contact on file",
	}

	out := Normalize(result, nil)

	assert.False(t, out.Success)
	assert.Equal(t, models.ChannelMethodEmail, out.Method)
	assert.Equal(t, "no support contact on file", out.Error)
}

func TestNormalize_TransportError(t *testing.T) {
	err := channels.NewTransportError(models.ChannelMethodAPI, "call", channels.ErrUpstreamTimeout)

	out := Normalize(nil, err)

	assert.False(t, out.Success)
	assert.Equal(t, models.ChannelMethodAPI, out.Method)
	assert.Contains(t, out.Error, "transport failure")
}

func TestNormalize_ConfigurationError(t *testing.T) {
	err := channels.NewConfigurationError(models.ChannelMethodVoice, channels.ErrNoDestination)

	out := Normalize(nil, err)

	assert.False(t, out.Success)
	assert.Equal(t, models.ChannelMethodVoice, out.Method)
	assert.Contains(t, out.Error, "configuration failure")
}

func TestNormalize_PlainError(t *testing.T) {
	out := Normalize(nil, errors.New("something odd"))

	assert.False(t, out.Success)
	assert.Empty(t, out.Method)
	assert.Equal(t, "something odd", out.Error)
}

func TestNormalize_ErrorWithResultKeepsMethod(t *testing.T) {
	result := &models.ChannelResult{Method: models.ChannelMethodVoice}

	out := Normalize(result, errors.New("line dropped"))

	assert.False(t, out.Success)
	assert.Equal(t, models.ChannelMethodVoice, out.Method)
}

func TestNormalize_NilResultNilError(t *testing.T) {
	out := Normalize(nil, nil)

	assert.False(t, out.Success)
	assert.Equal(t, "executor returned no result", out.Error)
}
