// Package lofter implements the HTTP client for the Lofter comment API.
//
// The package knows about two endpoints: the paginated first-level comment
// endpoint (L1) and the reply-batch endpoint (L2). Both answer with a JSON
// envelope carrying a status code and a data payload whose shape varies
// between endpoint versions; this package decodes the envelope and leaves
// shape-dependent payload interpretation to the caller.
//
// Every request carries the header set of the official Android client.
// The API rejects or rate-limits requests that do not look like the app,
// so the headers are not optional decoration. An authentication cookie
// and a SOCKS5 proxy can be layered on top via configuration.
//
// Transient failures (connection errors, non-2xx statuses, undecodable
// bodies) are retried inside the client with exponential backoff before
// an error reaches the caller.
package lofter
