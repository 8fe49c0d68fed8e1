// Package dns abstracts name resolution behind a pure lookup interface.
package dns

import (
	"context"
	"maps"
	"net"
	"net/netip"

	"github.com/pkg/errors"
)

var ErrDomainNotFound = errors.New("domain not found")

type Lookuper interface {
	LookupIP(ctx context.Context, domain string) (addrs []netip.Addr, err error)
}

// NetLookuper resolves through the operating system.
type NetLookuper struct {
	resolver *net.Resolver
}

var _ Lookuper = (*NetLookuper)(nil)

func NewNetLookuper() *NetLookuper {
	return &NetLookuper{resolver: net.DefaultResolver}
}

func (n *NetLookuper) LookupIP(ctx context.Context, domain string) ([]netip.Addr, error) {
	addrs, err := n.resolver.LookupNetIP(ctx, "ip", domain)
	if err != nil {
		return nil, errors.Wrapf(err, "lookup for host(%s) failed", domain)
	}
	if len(addrs) == 0 {
		return nil, ErrDomainNotFound
	}

	return addrs, nil
}

// MapLookuper resolves from a fixed table. Meant for tests.
type MapLookuper struct {
	set map[string][]netip.Addr
}

var _ Lookuper = (*MapLookuper)(nil)

func NewMapLookuper(set map[string][]netip.Addr) *MapLookuper {
	if set == nil {
		set = make(map[string][]netip.Addr)
	}
	return &MapLookuper{set: maps.Clone(set)}
}

func (m *MapLookuper) LookupIP(ctx context.Context, domain string) ([]netip.Addr, error) {
	addrs, ok := m.set[domain]
	if !ok {
		return nil, ErrDomainNotFound
	}
	return addrs, nil
}

func (m *MapLookuper) Set(domain string, addrs []netip.Addr) {
	if len(addrs) == 0 {
		return
	}
	m.set[domain] = addrs
}

func (m *MapLookuper) Del(domain string) { delete(m.set, domain) }
