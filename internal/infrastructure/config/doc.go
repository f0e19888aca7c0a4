// Package config loads and validates Tilt Logic Core configuration.
//
// Configuration is layered: hardcoded defaults, then a YAML file, then
// TILTLOGIC_* environment variables. A .env file in the working directory
// is loaded first for development convenience.
//
// # Usage
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	interval := cfg.FrameInterval()
package config
