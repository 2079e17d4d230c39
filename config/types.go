package config

// Auth configures bearer token verification on the RPC surface. Tokens are
// HS256 JWTs whose subject is the calling account.
type Auth struct {
	Enabled        bool     `toml:"Enabled" yaml:"enabled"`
	HMACSecret     string   `toml:"HMACSecret" yaml:"hmacSecret"`
	Issuer         string   `toml:"Issuer" yaml:"issuer"`
	Audience       string   `toml:"Audience" yaml:"audience"`
	ClockSkewSecs  uint32   `toml:"ClockSkewSecs" yaml:"clockSkewSecs"`
	AdminAccounts  []string `toml:"AdminAccounts" yaml:"adminAccounts"`
	AllowAnonymous bool     `toml:"AllowAnonymous" yaml:"allowAnonymous"`
}

// RateLimit throttles RPC callers keyed by account (or remote address for
// anonymous calls).
type RateLimit struct {
	RequestsPerMinute float64 `toml:"RequestsPerMinute" yaml:"requestsPerMinute"`
	Burst             int     `toml:"Burst" yaml:"burst"`
}

// Telemetry controls the OTLP exporters.
type Telemetry struct {
	Endpoint string `toml:"Endpoint" yaml:"endpoint"`
	Insecure bool   `toml:"Insecure" yaml:"insecure"`
	// Headers uses the OTEL_EXPORTER_OTLP_HEADERS form: "key=value,foo=bar".
	Headers     string  `toml:"Headers" yaml:"headers"`
	Traces      bool    `toml:"Traces" yaml:"traces"`
	Metrics     bool    `toml:"Metrics" yaml:"metrics"`
	SampleRatio float64 `toml:"SampleRatio" yaml:"sampleRatio"`
}

// Kafka configures the payout notification publisher. An empty broker list
// disables it.
type Kafka struct {
	Brokers []string `toml:"Brokers" yaml:"brokers"`
	Topic   string   `toml:"Topic" yaml:"topic"`
}

// Indexer configures the relational event index. An empty driver disables
// it.
type Indexer struct {
	Driver string `toml:"Driver" yaml:"driver"`
	DSN    string `toml:"DSN" yaml:"dsn"`
}
