package itch

// Config holds configuration for the storefront API.
type Config struct {
	// APIKey authenticates every request.
	APIKey string `mapstructure:"api_key" default:""`
	// BaseURL is the API root.
	BaseURL string `mapstructure:"base_url" default:"https://api.itch.io"`
	// TimeoutSeconds bounds API calls and download response headers.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"30"`
	// RequestsPerSecond is the sustained API request rate.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" default:"4"`
	// Burst is the number of requests allowed above the sustained rate.
	Burst int `mapstructure:"burst" default:"4"`
}
