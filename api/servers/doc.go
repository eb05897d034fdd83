/*
Package servers runs the registry HTTP API.

A Server mounts the route registrars it is given (see api/agents and
api/owner) behind request logging, and adds:

  - /livez and /readyz probes
  - /drain and /undrain to take the instance out of a load balancer
  - /debug/pprof when pprof is enabled
  - a separate Prometheus listener on MetricsAddr

Run attaches the listeners to an errgroup and stops them when the context is
cancelled, which is how cmd/gateway drives it. RunInBackground and Shutdown
remain for callers managing the lifecycle themselves.
*/
package servers
