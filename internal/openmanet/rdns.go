package openmanet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// Resolver fills in names for nodes that only reported an address, via a PTR
// query against the LAN resolver (typically the bridge itself). Lookups are
// best effort and never fail a fetch.
type Resolver struct {
	server  string
	client  *dns.Client
	timeout time.Duration
}

// NewResolver builds a resolver against server ("host:53"). An empty server
// returns nil, which disables reverse-DNS naming.
func NewResolver(server string) *Resolver {
	server = strings.TrimSpace(server)
	if server == "" {
		return nil
	}
	if !strings.Contains(server, ":") {
		server += ":53"
	}
	return &Resolver{
		server:  server,
		client:  &dns.Client{},
		timeout: 500 * time.Millisecond,
	}
}

// LookupAddr returns the first PTR name for ip, without the trailing dot.
func (r *Resolver) LookupAddr(ctx context.Context, ip string) (string, error) {
	if r == nil {
		return "", fmt.Errorf("resolver not configured")
	}

	ptr, err := dns.ReverseAddr(ip)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	msg := new(dns.Msg)
	msg.SetQuestion(ptr, dns.TypePTR)

	resp, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil {
		return "", err
	}
	for _, rr := range resp.Answer {
		if p, ok := rr.(*dns.PTR); ok {
			name := strings.TrimSuffix(p.Ptr, ".")
			if name != "" {
				return name, nil
			}
		}
	}
	return "", fmt.Errorf("no PTR record for %s", ip)
}
