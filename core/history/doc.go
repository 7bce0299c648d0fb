// Package history keeps a ledger of every per-file reconciliation outcome.
//
// The ledger is optional. When a database is configured, the reconcile
// engine records one Event per upload per pass into the download_events
// table, and the mirror API serves them back per title.
package history
