// Package broadcast derives the IPv4 broadcast address of the local subnet
// from host network interfaces.
package broadcast

import (
	"context"
	"fmt"
	"net"
	"strings"

	psnet "github.com/shirou/gopsutil/v3/net"
)

// Address families as reported on an Interface
const (
	FamilyIPv4 = "IPv4"
	FamilyIPv6 = "IPv6"
)

// Interface is one address assignment on a host network interface.
// An interface with several addresses appears once per address.
type Interface struct {
	Name      string
	Family    string
	Address   string
	Netmask   string
	Broadcast string // empty when the platform does not report it
	Internal  bool   // loopback
}

// Lister enumerates host interfaces
type Lister func(ctx context.Context) ([]Interface, error)

// Resolver finds the primary broadcast address using a Lister
type Resolver struct {
	list Lister
}

// NewResolver returns a resolver backed by the host's interfaces
func NewResolver() *Resolver {
	return &Resolver{list: HostInterfaces}
}

// NewResolverWithLister returns a resolver over a custom interface source
func NewResolverWithLister(list Lister) *Resolver {
	return &Resolver{list: list}
}

// ResolvePrimary returns the broadcast address of the first external IPv4
// interface. ok is false when no interface qualifies; err is only set when
// the interfaces could not be enumerated.
func (r *Resolver) ResolvePrimary(ctx context.Context) (addr string, ok bool, err error) {
	ifaces, err := r.list(ctx)
	if err != nil {
		return "", false, fmt.Errorf("failed to list network interfaces: %w", err)
	}
	addr, ok = Resolve(ifaces)
	return addr, ok, nil
}

// Resolve picks the first IPv4, non-internal interface and returns its
// broadcast address, computing it from address and netmask when the
// interface does not report one.
func Resolve(ifaces []Interface) (string, bool) {
	for _, iface := range ifaces {
		if iface.Family != FamilyIPv4 || iface.Internal {
			continue
		}
		if iface.Broadcast != "" {
			return iface.Broadcast, true
		}
		if iface.Address == "" || iface.Netmask == "" {
			continue
		}
		if addr, err := Compute(iface.Address, iface.Netmask); err == nil {
			return addr, true
		}
	}
	return "", false
}

// Compute returns address | ^netmask for dotted-quad IPv4 strings
func Compute(address, netmask string) (string, error) {
	ip := net.ParseIP(address).To4()
	if ip == nil {
		return "", fmt.Errorf("invalid IPv4 address %q", address)
	}
	mask := net.ParseIP(netmask).To4()
	if mask == nil {
		return "", fmt.Errorf("invalid IPv4 netmask %q", netmask)
	}

	octets := make([]string, 4)
	for i := 0; i < 4; i++ {
		octets[i] = fmt.Sprintf("%d", ip[i]|(^mask[i]&0xFF))
	}
	return strings.Join(octets, "."), nil
}

// HostInterfaces lists the host's interface addresses via gopsutil
func HostInterfaces(ctx context.Context) ([]Interface, error) {
	stats, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	var ifaces []Interface
	for _, stat := range stats {
		ifaces = append(ifaces, fromStat(stat)...)
	}
	return ifaces, nil
}

// fromStat flattens a gopsutil interface into one Interface per CIDR address
func fromStat(stat psnet.InterfaceStat) []Interface {
	loopback := hasFlag(stat.Flags, "loopback")

	var out []Interface
	for _, a := range stat.Addrs {
		ip, ipnet, err := net.ParseCIDR(a.Addr)
		if err != nil {
			continue
		}

		iface := Interface{
			Name:     stat.Name,
			Address:  ip.String(),
			Internal: loopback || ip.IsLoopback(),
		}
		if ip.To4() != nil {
			iface.Family = FamilyIPv4
			iface.Netmask = net.IP(ipnet.Mask).To4().String()
		} else {
			iface.Family = FamilyIPv6
			iface.Netmask = net.IP(ipnet.Mask).String()
		}
		out = append(out, iface)
	}
	return out
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, want) {
			return true
		}
	}
	return false
}
