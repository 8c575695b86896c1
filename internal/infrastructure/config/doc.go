// Package config loads and validates the bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading an optional .env file into the environment
//   - Overriding with MIDEA_BRIDGE_* environment variables
//   - Validation of required fields, reported all at once
//
// Security Considerations:
//   - The cloud password and InfluxDB token should come from the environment
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	if err := config.LoadDotEnv(".env"); err != nil {
//	    log.Fatal(err)
//	}
//	cfg, err := config.Load(config.Path())
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
