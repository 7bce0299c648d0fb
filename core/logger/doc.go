// Package logger builds the zap logger shared by the commands and the HTTP
// server.
//
// Config.Level picks the minimum level (debug, info, warn, error); an unknown
// level is an error. debug also switches to zap's development defaults.
// Config.Format picks the encoder independently of the level: "console" gives
// colored human-readable lines without stack traces, anything else gives JSON.
// Both encoders use the keys level, time and message.
//
// WithRayID tags a request's log lines with the ray id the rayid middleware
// stored in the fiber context.
//
//	log, err := logger.New(&cfg.Log)
//	if err != nil {
//		return err
//	}
//	logger.WithRayID(log, c).Warn("Title not found")
package logger
