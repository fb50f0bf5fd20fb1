package config

// Default returns a usable single-listener, single-route configuration
// suitable for onboarding a brand-new deployment.
func Default() *Config {
	c := &Config{
		Server: Server{
			Host:      DefaultHost,
			Port:      DefaultPort,
			TimeoutMs: DefaultTimeoutMs,
		},
		Routes: []Route{
			{
				Name:      "default",
				Path:      "/*",
				Upstream:  "http://localhost:8080",
				StripPath: false,
			},
		},
		Logging: Logging{Level: DefaultLogLevel},
	}
	applyDefaults(c)
	deriveTimeouts(c)
	return c
}

// Example returns a richly-commented TOML template written to disk by the
// `init` subcommand.
func Example() string {
	return `# FerraGate configuration.

[server]
host = "0.0.0.0"              # bind address
port = 3000                    # cleartext listener port
timeout_ms = 30000              # default per-request timeout, overridable per route

[server.tls]                   # optional HTTPS listener
enabled = false
port = 8443                    # must differ from server.port
cert_file = "certs/server.crt"
key_file  = "certs/server.key"
redirect_http = true            # if true, the cleartext listener only issues 308 redirects

[[routes]]
name = "example-api"
path = "/api/*"
upstream = "http://user-service:8080"
methods = ["GET", "POST"]       # empty/omitted means "any method"
strip_path = true               # forward only the captured "*" suffix
preserve_host = false           # forward the upstream authority as Host, not the client's

[routes.headers]
"X-Gateway" = "ferragate"

[logging]
level = "info"                  # one of trace,debug,info,warn,error
json  = false
file  = false
`
}
