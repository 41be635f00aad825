// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/rescindhq/rescind/pkg/channels/api"
	"github.com/rescindhq/rescind/pkg/channels/email"
	"github.com/rescindhq/rescind/pkg/channels/voice"
	"github.com/rescindhq/rescind/pkg/registry"
)

func registerNativeExecutors(reg *registry.Registry) {
	reg.RegisterExecutor(api.NewExecutorFactory())
	reg.RegisterExecutor(email.NewExecutorFactory())
	reg.RegisterExecutor(voice.NewExecutorFactory())
	reg.RegisterExecutor(voice.NewVerifyFactory())
}

func NewRegistry(log *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(log)

	registerNativeExecutors(reg)

	return reg
}
