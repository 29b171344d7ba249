package queue

import (
	"fmt"

	"github.com/abduss/cloudnest/internal/config"
	"go.uber.org/zap"
)

// Open returns the transport selected by cfg.Driver.
func Open(cfg config.QueueConfig, logger *zap.Logger) (Bus, error) {
	switch cfg.Driver {
	case config.QueueNATS, "":
		bus, err := DialNATS(cfg.URL, cfg.Group, logger)
		if err != nil {
			return nil, err
		}
		return bus, nil
	case config.QueueMemory:
		return NewMemoryBus(), nil
	default:
		return nil, fmt.Errorf("unsupported queue driver %q", cfg.Driver)
	}
}
