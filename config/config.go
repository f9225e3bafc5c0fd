package config

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration, including the per-connection
// limits: MaxPostDataSize, KeepAliveTimeout, AllowPostTempFile,
// AllowProxyReqs.
type Config struct {
	Port         int
	ReadTimeout  int
	WriteTimeout int
	Env          string

	// Shards is the number of independent reactor shards (core/reactor),
	// each with its own poller and goroutine, spreading accepted
	// connections across cores without a shared run queue.
	Shards int

	// MaxPostDataSize bounds a POST body's Content-Length; a request
	// claiming more is rejected with 413 before any read happens.
	MaxPostDataSize int

	// KeepAliveTimeout bounds how long an idle kept-alive connection may
	// sit between requests before the reactor closes it.
	KeepAliveTimeout time.Duration

	// AllowPostTempFile permits POST bodies at or above
	// httpproto.SmallBodyThreshold to spill to an unlinked temp file
	// instead of being rejected outright.
	AllowPostTempFile bool

	// AllowProxyReqs gates whether incoming connections may lead with a
	// PROXY v1/v2 prefix.
	AllowProxyReqs bool

	// AdminAddr, when non-empty, brings up the out-of-band admin RPC
	// listener (stats, bottleneck report, maintenance switch) on that
	// address.
	AdminAddr string

	// MetricsAddr, when non-empty, serves the Prometheus /metrics handler
	// on that address, separate from the serving reactor's ports.
	MetricsAddr string
}

// New loads configuration from flags, with environment variables able to
// override the listener port (the one setting operators routinely need to
// change without touching the flag line).
func New() *Config {
	cfg := &Config{}

	flag.IntVar(&cfg.Port, "port", 8080, "HTTP server port")
	flag.IntVar(&cfg.ReadTimeout, "read-timeout", 10, "HTTP read timeout (seconds)")
	flag.IntVar(&cfg.WriteTimeout, "write-timeout", 30, "HTTP write timeout (seconds)")
	flag.StringVar(&cfg.Env, "env", "development", "Environment (development/production)")
	flag.IntVar(&cfg.Shards, "shards", 0, "reactor shard count (0 = GOMAXPROCS)")
	flag.IntVar(&cfg.MaxPostDataSize, "max-post-data-size", 10<<20, "maximum accepted POST Content-Length, in bytes")
	keepAliveSeconds := flag.Int("keep-alive-timeout", 15, "idle keep-alive timeout (seconds)")
	flag.BoolVar(&cfg.AllowPostTempFile, "allow-post-temp-file", true, "spill large POST bodies to an unlinked temp file")
	flag.BoolVar(&cfg.AllowProxyReqs, "allow-proxy-reqs", false, "accept PROXY protocol v1/v2 prefixes on new connections")
	flag.StringVar(&cfg.AdminAddr, "admin-addr", "", "admin RPC listener address (empty = disabled)")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "Prometheus /metrics listener address (empty = disabled)")

	flag.Parse()
	cfg.KeepAliveTimeout = time.Duration(*keepAliveSeconds) * time.Second

	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}

	return cfg
}
