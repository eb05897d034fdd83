package api

import (
	"log/slog"
	"time"
)

// HTTPServerConfig configures the registry's API server and the signed
// request authentication in front of it.
type HTTPServerConfig struct {
	// ListenAddr serves the agent, owner and read APIs.
	ListenAddr string

	// MetricsAddr serves Prometheus metrics. Empty disables the listener.
	MetricsAddr string

	EnablePprof bool

	Log *slog.Logger

	// DrainDuration is how long /drain waits after flipping readiness, so
	// load balancers stop routing before shutdown.
	DrainDuration time.Duration

	// GracefulShutdownDuration bounds how long in-flight registrations and
	// signature requests may take to finish on shutdown.
	GracefulShutdownDuration time.Duration

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// RequestMaxAge is the accepted clock difference on signed requests and
	// how long a seen request signature is remembered for replay rejection.
	RequestMaxAge time.Duration

	// MaxRequestBodySize caps signed request bodies; larger bodies get 413.
	MaxRequestBodySize int64
}

// NewSignedRequestAuth builds the authentication middleware from the config.
func (cfg *HTTPServerConfig) NewSignedRequestAuth() *SignedRequestAuth {
	return NewSignedRequestAuth(cfg.RequestMaxAge, cfg.Log).WithMaxBodySize(cfg.MaxRequestBodySize)
}
