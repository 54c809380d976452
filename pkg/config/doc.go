// Package config loads, validates and watches the admission service
// configuration.
//
// Configuration is read from a YAML file, completed with defaults and
// overridden by ADMISSION_* environment variables:
//
//	server:
//	  listen_address: "0.0.0.0:8080"
//
//	policies:
//	  login:
//	    algorithm: sliding_window
//	    window: 1m
//	    max_requests: 5
//	  resend-code:
//	    algorithm: cooldown
//	    min_interval: 30s
//	    key_source: ip
//
//	journal:
//	  enabled: true
//	  backend: sqlite
//	  sqlite:
//	    path: data/decisions.db
//	  retention:
//	    period: 168h
//	    prune_schedule: "0 3 * * *"
//
// Environment variables follow ADMISSION_SECTION_FIELD, for example
// ADMISSION_SERVER_LISTEN_ADDRESS or ADMISSION_POLICIES_LOGIN_MAX_REQUESTS.
//
// Validate collects every problem into a ValidationError instead of stopping
// at the first one. A Watcher reloads the file on change and only hands
// valid configurations to its callback.
package config
