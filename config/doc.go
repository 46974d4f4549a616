// Package config loads the relay configuration.
//
// Loader builds a Config from layers: built-in defaults, then each file layer
// in order (JSON, or YAML for .yaml/.yml files), then environment overrides
// with the LNRELAY_ prefix. Maps merge key by key; lists such as nodes are
// replaced by the later layer. Durations accept Go duration strings.
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/base.json")
//	loader.AddLayer("configs/production.yaml")
//
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Supported environment overrides:
//
//	LNRELAY_RELAY_IMPLEMENTATION  relay.implementation
//	LNRELAY_NATS_ENABLED          nats.enabled
//	LNRELAY_NATS_URLS             nats.urls (comma separated)
//	LNRELAY_NATS_USERNAME         nats.username
//	LNRELAY_NATS_PASSWORD         nats.password
//	LNRELAY_NATS_TOKEN            nats.token
//	LNRELAY_REGISTRY_MODE         registry.mode
//	LNRELAY_METRICS_PORT          metrics.port
//
// File paths are checked before reading: relative paths must stay inside the
// working directory, files are capped at 10MB and JSON nesting depth is bounded.
package config
