// Package logging provides structured logging for the hdhr tool.
//
// This package wraps zap logger with convenience functions for common logging
// patterns used throughout the client. It provides both general logging
// functions and specialized functions for protocol-specific logging needs.
//
// # Log Levels
//
// The package supports standard log levels:
//   - Debug: Detailed debugging info (hex dumps, frame parsing, datagrams)
//   - Info: Normal operations (discovery passes, device refreshes)
//   - Warn: Non-fatal issues (unreachable endpoints, fallbacks)
//   - Error: Fatal issues (user-command failures)
//
// # Structured Logging
//
// All log functions use structured fields for queryability:
//
//	logging.Info("Device discovered",
//	    zap.String("device_id", "10501234"),
//	    zap.String("host", "192.168.1.100"),
//	    zap.Int("tuner_count", 2),
//	)
//
// # Specialized Logging
//
// The package provides domain-specific logging functions:
//
// Discovery datagram logging:
//
//	logging.LogDatagram(remoteAddr, "received", payload)
//	logging.LogDatagram(remoteAddr, "sent", payload)
//
// Control-protocol exchange logging:
//
//	logging.LogControlExchange(remoteAddr, "/sys/version", reqLen, rpyLen)
//
// # Configuration
//
// Logging is silent by default so CLI output stays clean. Set the
// HDHR_LOG_LEVEL environment variable (debug, info, warn, error) to
// enable it, and initialize at startup:
//
//	if err := logging.InitializeFromEnv(); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. The underlying zap logger
// handles synchronization automatically.
package logging
