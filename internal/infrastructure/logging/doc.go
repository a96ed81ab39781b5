// Package logging provides structured logging for BillBot Node.
//
// It wraps log/slog so every component logs with the same handler,
// level filter and default fields (service, version).
//
// Configuration (config.yaml):
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	gw := logger.Component("gateway")
//	gw.Info("handshake complete", "protocol", 3)
//
// Never log gateway tokens, device tokens, the identity passphrase or
// private key material.
package logging
