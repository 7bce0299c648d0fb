// Package config provides configuration management for the archiver.
//
// It utilizes Viper for loading configuration from environment variables and
// an optional .env file. Defaults come from the `default` struct tags of each
// section; every key maps to an upper-case environment variable with dots
// replaced by underscores (mirror.root -> MIRROR_ROOT).
//
// # Configuration Structure
//
//   - Itch: storefront API key, base URL, timeout and request rate
//   - Mirror: mirror root, platform filter, worker count, lock timeout
//   - Server: HTTP port and API key of the mirror API
//   - Storage: optional S3/MinIO replica
//   - Database: optional download ledger (mysql or sqlite)
//   - Log: logging level and format
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Mirror.Root)
package config
