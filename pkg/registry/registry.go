// Package registry maps executor type names to their factories so workflow
// definitions stay declarative and test doubles can stand in for any channel.
package registry

import (
	"fmt"
	"log/slog"

	"github.com/rescindhq/rescind/pkg/protocol"
)

type Registry struct {
	logger            *slog.Logger
	executorFactories map[string]protocol.ExecutorFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:            log,
		executorFactories: make(map[string]protocol.ExecutorFactory),
	}
}

func (r *Registry) RegisterExecutor(factory protocol.ExecutorFactory) {
	r.executorFactories[factory.ID()] = factory
}

func (r *Registry) CreateExecutor(executorType string, config map[string]any) (protocol.ChannelExecutor, error) {
	factory, ok := r.executorFactories[executorType]
	if !ok {
		return nil, fmt.Errorf("executor type '%s' not registered", executorType)
	}

	return factory.Create(config)
}

// ExecutorTypes returns the registered executor type names.
func (r *Registry) ExecutorTypes() []string {
	types := make([]string, 0, len(r.executorFactories))
	for executorType := range r.executorFactories {
		types = append(types, executorType)
	}

	return types
}
