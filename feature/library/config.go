package library

// Config holds the mirror settings of a download pass.
type Config struct {
	// Root is the mirror root directory.
	Root string `mapstructure:"root" default:"."`
	// Platform restricts tagged uploads to one platform; empty keeps all.
	Platform string `mapstructure:"platform" default:""`
	// Jobs is the number of titles reconciled concurrently.
	Jobs int `mapstructure:"jobs" default:"4"`
	// SkipExisting skips titles that already have a manifest.
	SkipExisting bool `mapstructure:"skip_existing" default:"false"`
	// LockTimeoutSeconds bounds the wait for the mirror lock.
	LockTimeoutSeconds int `mapstructure:"lock_timeout_seconds" default:"30"`
}
