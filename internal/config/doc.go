// Package config provides configuration parsing for the reflab command.
//
// The configuration is stored in reflab.yaml and is optional: every field
// has a default, and a missing file yields the defaults.
//
// # Configuration File Structure
//
//	log:
//	  level: info          # debug, info, warn, error
//	  format: text         # text, json
//	loop:
//	  frameInterval: 16ms
//	  queueSize: 256
//	inspect:
//	  addr: 127.0.0.1:7070
//	  heartbeat: 15s
//	metrics:
//	  namespace: refs
//	tracing:
//	  enabled: false
//	  deliveries: false
//	limits:
//	  search:
//	    strategy: debounce
//	    timing: timeout
//	    interval: 250ms
//	bench:
//	  writes: 10000
//	  fanout: 8
//
// # Usage
//
//	cfg, err := config.LoadOptional(".")
//	if err != nil {
//	    return err
//	}
//	logger := cfg.Logger(os.Stderr)
package config
