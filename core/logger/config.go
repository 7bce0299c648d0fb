package logger

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level: debug, info, warn or error.
	Level string `mapstructure:"level" default:"info"`
	// Format is "json" or "console".
	Format string `mapstructure:"format" default:"console"`
}
