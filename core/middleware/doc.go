// Package middleware contains HTTP middleware for the Fiber application.
//
// # Components
//
//   - auth: API key validation through the X-API-Key header.
//   - rayid: a unique request id per request, stored in the context for
//     logger.WithRayID and echoed in the X-Ray-ID response header.
//
// rayid must be registered first so that every log line carries the id.
package middleware
