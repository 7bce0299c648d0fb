// Package storage replicates the local mirror into object storage.
//
// It wraps the MinIO Go client behind a small Client interface so that
// replication can be tested with the mock in core/storage/mocks. Both AWS S3
// and self-hosted MinIO are supported.
//
// # Replication
//
// Replicator uploads every verified download to
//
//	<prefix>/<publisher>/<title>/<file>
//
// and tags it with the file's md5 as user metadata. An object whose ETag or
// metadata already carries that digest is not uploaded again.
//
// # Usage
//
//	client, err := storage.NewClient(cfg)
//	rep := storage.NewReplicator(client, cfg, log)
//	err = rep.EnsureBucket(ctx)
package storage
