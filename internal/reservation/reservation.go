// Package reservation computes the set of addresses a subnet can never
// allocate: the network address, the broadcast address, and the gateway
// slot.
package reservation

import "github.com/linode-vlan/ipallocator/internal/domain"

// Reserved returns the set of bare addresses that must never be allocated
// in the given subnet. For degenerate subnets (/31, /32) this is just the
// network and broadcast addresses; there is no gateway slot.
func Reserved(s *domain.Subnet) map[string]struct{} {
	reserved := map[string]struct{}{
		s.NetworkAddress():   {},
		s.BroadcastAddress(): {},
	}
	if s.HasGateway() {
		reserved[s.GatewayAddress()] = struct{}{}
	}
	return reserved
}

// IsReserved reports whether bare is reserved in the given subnet.
func IsReserved(s *domain.Subnet, bare string) bool {
	_, ok := Reserved(s)[bare]
	return ok
}
