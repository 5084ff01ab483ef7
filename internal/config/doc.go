// Package config provides the configuration of a broker process.
//
// Configuration is read in layers, higher layers overriding lower:
//
//	┌─────────────────────────────┐
//	│  3. Environment Variables   │  ← EVENTBROKER_*
//	├─────────────────────────────┤
//	│  2. Config File             │  ← broker.yaml or broker.toml
//	├─────────────────────────────┤
//	│  1. Built-in Defaults       │
//	└─────────────────────────────┘
//
// # Basic Usage
//
//	cfg, err := config.Load("broker.yaml")
//	if err != nil {
//	    return err
//	}
//	logger, err := cfg.NewLogger()
//	if err != nil {
//	    return err
//	}
//	b := broker.New(cfg.BrokerOptions(logger)...)
//
// # Environment Variables
//
// Any EVENTBROKER_SECTION_SETTING_NAME variable maps to
// section.settingName, e.g. EVENTBROKER_POOL_QUEUE_SIZE sets
// pool.queueSize. Shorthands exist for the common settings:
//
//	EVENTBROKER_LOG_LEVEL         logging.level
//	EVENTBROKER_LOG_DEVELOPMENT   logging.development
//	EVENTBROKER_MANIFEST          manifest.path
//	EVENTBROKER_MANIFEST_WATCH    manifest.watch
//	EVENTBROKER_WORKERS           pool.workers
//	EVENTBROKER_SHUTDOWN_TIMEOUT  shutdownTimeout
package config
