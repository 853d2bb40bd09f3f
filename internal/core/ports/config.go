package ports

import (
	"context"

	"github.com/tjfontaine/polyglot-chat/internal/pkg/config"
)

// ConfigProvider supplies the chat backend's configuration.
type ConfigProvider interface {
	// Load reads and validates the configuration.
	Load(ctx context.Context) (*config.Config, error)

	// Watch calls onChange with each valid new configuration until ctx is
	// done. It returns once watching has started; providers that cannot
	// watch return an error and the last loaded configuration stays in use.
	Watch(ctx context.Context, onChange func(*config.Config)) error

	Close() error
}
