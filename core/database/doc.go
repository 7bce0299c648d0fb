// Package database opens the optional SQL connection behind the download
// history ledger.
//
// It wraps GORM with either the MySQL or the SQLite dialector. Connect pings
// the database before returning, so a misconfigured connection fails early
// and callers can fall back to running without history.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    log.Warn("History disabled", zap.Error(err))
//	}
package database
