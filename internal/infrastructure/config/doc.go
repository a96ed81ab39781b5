// Package config handles loading and validating BillBot Node configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The identity passphrase and gateway token should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Gateway host, port and token in the config file only seed the persisted
// settings on first run. After that the settings store is authoritative and
// is changed through the local API.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Gateway.Host)
package config
