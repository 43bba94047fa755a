package domain

import (
	"fmt"
	"net"
)

// Subnet is a parsed IPv4 CIDR network together with the derived host range
// needed by the reservation policy and the allocator's candidate scan.
type Subnet struct {
	CIDR   string // canonical string form, e.g. "10.0.0.0/24"
	Prefix int
	base   uint32 // network address as a uint32
}

// ParseSubnet parses a CIDR string into a Subnet. Only IPv4 is supported;
// IPv6 input is rejected per the IPv4-only scope of this allocator.
func ParseSubnet(cidr string) (*Subnet, error) {
	ip, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("invalid cidr %q: %w", cidr, err)
	}
	if ip.To4() == nil {
		return nil, fmt.Errorf("only IPv4 subnets are supported: %q", cidr)
	}
	mask, bits := network.Mask.Size()
	if bits != 32 {
		return nil, fmt.Errorf("only IPv4 subnets are supported: %q", cidr)
	}
	base := ipToUint32(network.IP.To4())
	return &Subnet{
		CIDR:   fmt.Sprintf("%s/%d", network.IP.String(), mask),
		Prefix: mask,
		base:   base,
	}, nil
}

// NetworkAddress returns the subnet's network address in dotted-quad form.
func (s *Subnet) NetworkAddress() string {
	return uint32ToIP(s.base).String()
}

// BroadcastAddress returns the subnet's broadcast address in dotted-quad
// form (the highest address in the block, including for /31 and /32).
func (s *Subnet) BroadcastAddress() string {
	return uint32ToIP(s.base + s.addressCount() - 1).String()
}

// HasGateway reports whether the subnet has a distinct first-usable-host
// slot separate from the network and broadcast addresses (prefix < 31).
func (s *Subnet) HasGateway() bool {
	return s.Prefix < 31
}

// GatewayAddress returns the first usable host address (offset 1). Only
// meaningful when HasGateway is true.
func (s *Subnet) GatewayAddress() string {
	return uint32ToIP(s.base + 1).String()
}

// UsableHostCount returns the number of non-network, non-broadcast
// addresses in the subnet. For /31 and /32 this is 0.
func (s *Subnet) UsableHostCount() uint32 {
	if s.Prefix >= 31 {
		return 0
	}
	return s.addressCount() - 2
}

// HostAt returns the bare dotted-quad address at the given 1-indexed offset
// into the usable host range (offset 1 is the first usable host, i.e. the
// gateway slot). It returns empty string once offset exceeds the usable
// range, mirroring the teacher's NextIP contract.
func (s *Subnet) HostAt(offset uint32) string {
	if offset == 0 || offset > s.UsableHostCount() {
		return ""
	}
	return uint32ToIP(s.base + offset).String()
}

func (s *Subnet) addressCount() uint32 {
	hostBits := uint32(32 - s.Prefix)
	if hostBits >= 32 {
		return 0xFFFFFFFF
	}
	return uint32(1) << hostBits
}

func ipToUint32(ip net.IP) uint32 {
	return uint32(ip[0])<<24 | uint32(ip[1])<<16 | uint32(ip[2])<<8 | uint32(ip[3])
}

func uint32ToIP(v uint32) net.IP {
	return net.IPv4(byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
