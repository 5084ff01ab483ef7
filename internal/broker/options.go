package broker

import (
	"go.uber.org/zap"

	"github.com/dshills/eventbroker/internal/broker/matcher"
)

// Option configures a Broker.
type Option func(*brokerConfig)

// brokerConfig contains configuration for the broker.
type brokerConfig struct {
	// logger receives broker and worker diagnostics.
	logger *zap.Logger

	// inspector produces the declarations of registered instances.
	inspector Inspector

	// poolWorkers is the number of fire-and-forget workers.
	poolWorkers int

	// poolQueueSize is the capacity of the fire-and-forget queue.
	poolQueueSize int

	matchers   []matcher.Matcher
	extensions []Extension
}

// defaultBrokerConfig returns sensible default configuration.
func defaultBrokerConfig() brokerConfig {
	return brokerConfig{
		logger:        zap.NewNop(),
		inspector:     DeclarerInspector{},
		poolWorkers:   4,
		poolQueueSize: 1024,
	}
}

// WithLogger sets the broker logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *brokerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithInspector replaces the inspector producing declarations.
func WithInspector(in Inspector) Option {
	return func(c *brokerConfig) {
		if in != nil {
			c.inspector = in
		}
	}
}

// WithPoolWorkers sets the number of fire-and-forget workers.
func WithPoolWorkers(count int) Option {
	return func(c *brokerConfig) {
		if count > 0 {
			c.poolWorkers = count
		}
	}
}

// WithPoolQueueSize sets the capacity of the fire-and-forget queue.
func WithPoolQueueSize(size int) Option {
	return func(c *brokerConfig) {
		if size > 0 {
			c.poolQueueSize = size
		}
	}
}

// WithGlobalMatchers adds matchers applied to every delivery.
func WithGlobalMatchers(ms ...matcher.Matcher) Option {
	return func(c *brokerConfig) {
		c.matchers = append(c.matchers, ms...)
	}
}

// WithExtensions adds extensions.
func WithExtensions(exts ...Extension) Option {
	return func(c *brokerConfig) {
		c.extensions = append(c.extensions, exts...)
	}
}
