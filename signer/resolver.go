package signer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// DefaultDNSServer is the systemd-resolved stub listener.
const DefaultDNSServer = "127.0.0.53:53"

// SRVTarget is one host:port from an SRV answer.
type SRVTarget struct {
	Host     string
	Port     uint16
	Priority uint16
	Weight   uint16
}

func (t SRVTarget) Address() string {
	return net.JoinHostPort(strings.TrimSuffix(t.Host, "."), strconv.Itoa(int(t.Port)))
}

// SRVResolver looks up SRV records against a single DNS server.
type SRVResolver struct {
	server string
	client *dns.Client
}

// NewSRVResolver creates a resolver querying server (host:port). An empty
// server uses DefaultDNSServer.
func NewSRVResolver(server string) *SRVResolver {
	if server == "" {
		server = DefaultDNSServer
	}
	return &SRVResolver{
		server: server,
		client: &dns.Client{Timeout: 5 * time.Second},
	}
}

// Resolve returns the SRV targets for name, ordered by priority and then by
// descending weight.
func (r *SRVResolver) Resolve(ctx context.Context, name string) ([]SRVTarget, error) {
	m := new(dns.Msg)
	m.Id = dns.Id()
	m.RecursionDesired = true
	m.Question = []dns.Question{{Name: dns.Fqdn(name), Qtype: dns.TypeSRV, Qclass: dns.ClassINET}}

	in, _, err := r.client.ExchangeContext(ctx, m, r.server)
	if err != nil {
		return nil, fmt.Errorf("SRV lookup for %s failed: %w", name, err)
	}
	if in.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("SRV lookup for %s failed: %s", name, dns.RcodeToString[in.Rcode])
	}

	targets := make([]SRVTarget, 0, len(in.Answer))
	for _, answer := range in.Answer {
		if srv, ok := answer.(*dns.SRV); ok {
			targets = append(targets, SRVTarget{
				Host:     srv.Target,
				Port:     srv.Port,
				Priority: srv.Priority,
				Weight:   srv.Weight,
			})
		}
	}
	if len(targets) == 0 {
		return nil, errors.New("no SRV records for " + name)
	}

	sort.SliceStable(targets, func(i, j int) bool {
		if targets[i].Priority != targets[j].Priority {
			return targets[i].Priority < targets[j].Priority
		}
		return targets[i].Weight > targets[j].Weight
	})
	return targets, nil
}
