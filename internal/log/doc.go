// Package log provides secure logging functionality with automatic sanitization
// of sensitive information, built on top of the standard slog package.
//
// This package extends slog to provide:
//   - Automatic sanitization of sensitive values (cookies, tokens, device IDs)
//   - Configurable log levels with verbose mode support
//   - Consistent log formatting across the application
//
// # Security Features
//
// The SecureHandler automatically sanitizes sensitive information in log output:
//   - HTTP headers (Authorization, Cookie, Set-Cookie, X-Api-Key)
//   - The Lofter login cookie (LOFTER-PHONE-LOGIN-AUTH)
//   - Device identity headers sent with every API request
//   - Secret values detected by pattern matching (passwords, tokens, keys)
//
// Even in verbose mode, sensitive values are masked to prevent accidental
// exposure of secrets. Verbose crawl logs are often pasted into bug reports
// together with the exact request that failed, so masking has to happen at
// the handler, not at each call site.
//
// # Usage
//
//	// Create a secure logger
//	logger := log.NewSecureLogger(os.Stderr, true) // verbose=true
//
//	// Use as a standard slog.Logger
//	logger.Info("request sent",
//	    "cookie", "LOFTER-PHONE-LOGIN-AUTH=abc123",  // Will be masked
//	    "url", "https://api.lofter.com/comment/l1/page.json",
//	)
//
//	// Set as default logger
//	slog.SetDefault(logger)
package log
