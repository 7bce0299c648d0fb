// Package server holds the HTTP server configuration.
//
// The mirror API started by the serve command listens on Config.Addr and
// requires Config.ApiKey in the X-API-Key header when it is set.
package server
