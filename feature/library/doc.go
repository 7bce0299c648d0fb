// Package library runs a download pass over every owned title.
//
// A Syncer lists the account's purchases, turns each record into a Title and
// hands it to the reconcile engine. Titles are processed by a bounded worker
// pool; a failure in one title never stops the others. Progress is rendered
// as a bar on stdout and a Summary is returned at the end.
//
// # Usage
//
//	s := library.NewSyncer(itchClient, engine, cfg.Mirror, log)
//	summary, err := s.Run(ctx, cfg.Itch.APIKey)
package library
