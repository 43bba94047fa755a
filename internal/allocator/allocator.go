// Package allocator owns the atomic claim protocol and the reconciliation
// between the allocation store and the cloud provider's observed VLAN
// interface inventory.
package allocator

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/linode-vlan/ipallocator/internal/cache"
	"github.com/linode-vlan/ipallocator/internal/domain"
	"github.com/linode-vlan/ipallocator/internal/metrics"
	"github.com/linode-vlan/ipallocator/internal/normalize"
	"github.com/linode-vlan/ipallocator/internal/reservation"
	"github.com/linode-vlan/ipallocator/internal/store"
)

// Store is the narrow subset of the allocation store the allocator needs.
type Store interface {
	GetPrefix(ctx context.Context, prefix string) ([]store.KV, error)
	Delete(ctx context.Context, key string) (bool, error)
	ClaimIfAbsent(ctx context.Context, mustBeAbsent []string, putKey string, putValue []byte) (bool, error)
	Status(ctx context.Context) error
}

// CloudInventory is the narrow subset of the cloud inventory client the
// allocator needs.
type CloudInventory interface {
	ListVLANAddresses(ctx context.Context, region string) ([]string, error)
}

// Allocator answers Allocate and Release requests.
type Allocator struct {
	store  Store
	cloud  CloudInventory
	region string
	prefix string

	// releaseSubnet is the single subnet configured for this process,
	// consulted by Release to decide reservedness and legacy-key prefix.
	releaseSubnet *domain.Subnet

	vlanCache *cache.TTLCache[[]string]
}

// New builds an Allocator. releaseSubnetCIDR may be empty if release is not
// expected to be used by this deployment; Release then always fails with
// ErrMissingConfig.
func New(st Store, cloud CloudInventory, region, prefix, releaseSubnetCIDR string, vlanCacheTTL time.Duration) (*Allocator, error) {
	a := &Allocator{
		store:     st,
		cloud:     cloud,
		region:    region,
		prefix:    prefix,
		vlanCache: cache.New[[]string](vlanCacheTTL),
	}
	if releaseSubnetCIDR != "" {
		s, err := domain.ParseSubnet(releaseSubnetCIDR)
		if err != nil {
			return nil, fmt.Errorf("allocator: invalid release subnet: %w", err)
		}
		a.releaseSubnet = s
	}
	return a, nil
}

// AllocateResult is the successful response of Allocate.
type AllocateResult struct {
	IP          string `json:"ip"`
	CIDR        string `json:"cidr"`
	AllocatedIP string `json:"allocated_ip"`
}

// ReleaseResult is the successful response of Release.
type ReleaseResult struct {
	IP string `json:"ip"`
}

// Allocate returns the first free, non-reserved host address in subnetCIDR,
// building its view of "used" addresses from both the store and a fresh
// cloud inventory fetch.
func (a *Allocator) Allocate(ctx context.Context, subnetCIDR string) (*AllocateResult, error) {
	if a.region == "" {
		return nil, domain.NewError(domain.ErrMissingConfig, "REGION is not configured", nil)
	}

	subnet, err := domain.ParseSubnet(subnetCIDR)
	if err != nil {
		return nil, domain.NewError(domain.ErrInvalidSubnet, err.Error(), nil)
	}

	usedFromStore, err := a.usedFromStore(ctx)
	if err != nil {
		return nil, domain.NewError(domain.ErrStoreUnavailable, err.Error(), nil)
	}

	usedFromCloud, err := a.usedFromCloud(ctx)
	if err != nil {
		return nil, domain.NewError(domain.ErrCloudUnavailable, err.Error(), nil)
	}

	used := make(map[string]struct{}, len(usedFromStore)+len(usedFromCloud))
	for addr := range usedFromStore {
		used[addr] = struct{}{}
	}
	for _, addr := range usedFromCloud {
		used[addr] = struct{}{}
	}

	a.importPhase(ctx, subnet, usedFromStore, usedFromCloud)

	reserved := reservation.Reserved(subnet)

	total := subnet.UsableHostCount()
	for offset := uint32(1); offset <= total; offset++ {
		candidate := subnet.HostAt(offset)
		if candidate == "" {
			continue
		}
		if _, ok := reserved[candidate]; ok {
			continue
		}
		if _, ok := used[candidate]; ok {
			continue
		}

		committed, err := a.claim(ctx, candidate, subnet.Prefix, store.SourceAPIAllocate, subnet.CIDR)
		if err != nil {
			return nil, domain.NewError(domain.ErrStoreUnavailable, err.Error(), nil)
		}
		if !committed {
			// Lost the race to a concurrent requester or an in-flight
			// legacy-key migration; try the next candidate.
			metrics.IncStoreTxnConflict()
			used[candidate] = struct{}{}
			continue
		}

		cidrSuffix := "/" + strconv.Itoa(subnet.Prefix)
		return &AllocateResult{
			IP:          candidate,
			CIDR:        cidrSuffix,
			AllocatedIP: candidate + cidrSuffix,
		}, nil
	}

	return nil, domain.NewError(domain.ErrSubnetExhausted, "no free address in subnet", map[string]int{
		"reserved": len(reserved),
		"used":     len(used),
		"total":    int(total),
	})
}

// Release deletes both key forms for the normalized address and reports
// success if either existed.
func (a *Allocator) Release(ctx context.Context, ipInput string) (*ReleaseResult, error) {
	bare := normalize.Bare(ipInput)
	if bare == "" {
		return nil, domain.NewError(domain.ErrInvalidRequest, "ip_address is required", nil)
	}
	if a.releaseSubnet == nil {
		return nil, domain.NewError(domain.ErrMissingConfig, "SUBNET is not configured", nil)
	}

	if reservation.IsReserved(a.releaseSubnet, bare) {
		return nil, domain.NewError(domain.ErrReservedAddress, "cannot release a reserved address", nil)
	}

	canonKey := a.prefix + bare
	legacyKey := a.prefix + bare + "/" + strconv.Itoa(a.releaseSubnet.Prefix)

	deletedCanon, err := a.store.Delete(ctx, canonKey)
	if err != nil {
		return nil, domain.NewError(domain.ErrStoreUnavailable, err.Error(), nil)
	}
	deletedLegacy, err := a.store.Delete(ctx, legacyKey)
	if err != nil {
		return nil, domain.NewError(domain.ErrStoreUnavailable, err.Error(), nil)
	}

	if !deletedCanon && !deletedLegacy {
		return nil, domain.NewError(domain.ErrNotAllocated, "address is not allocated", nil)
	}
	return &ReleaseResult{IP: bare}, nil
}

// usedFromStore reads every key under the configured prefix and returns the
// set of normalized bare addresses already recorded, tolerating both
// canonical and legacy key forms.
func (a *Allocator) usedFromStore(ctx context.Context) (map[string]struct{}, error) {
	kvs, err := a.store.GetPrefix(ctx, a.prefix)
	if err != nil {
		return nil, err
	}
	used := make(map[string]struct{}, len(kvs))
	for _, kv := range kvs {
		rest := strings.TrimPrefix(kv.Key, a.prefix)
		bare := normalize.Bare(rest)
		if bare != "" {
			used[bare] = struct{}{}
		}
	}
	return used, nil
}

// usedFromCloud returns the cloud-observed VLAN address set, consulting
// the inventory cache first.
func (a *Allocator) usedFromCloud(ctx context.Context) ([]string, error) {
	if cached, ok := a.vlanCache.Get(); ok {
		return cached, nil
	}
	addrs, err := a.cloud.ListVLANAddresses(ctx, a.region)
	if err != nil {
		return nil, err
	}
	a.vlanCache.Set(addrs)
	return addrs, nil
}

// importPhase best-effort imports cloud-observed addresses the store does
// not yet know about. Transaction failures are logged and ignored; the
// address is still considered used by the caller regardless of outcome.
func (a *Allocator) importPhase(ctx context.Context, subnet *domain.Subnet, usedFromStore map[string]struct{}, usedFromCloud []string) {
	for _, addr := range usedFromCloud {
		if _, known := usedFromStore[addr]; known {
			continue
		}
		_, err := a.claim(ctx, addr, subnet.Prefix, store.SourceLinodeSync, subnet.CIDR)
		if err != nil {
			log.Printf("allocator: import of %s failed, ignoring: %v", addr, err)
		}
	}
}

// ListAllocated returns every bare address currently recorded in the
// store under the configured prefix, sorted numerically by octet.
func (a *Allocator) ListAllocated(ctx context.Context) ([]string, error) {
	used, err := a.usedFromStore(ctx)
	if err != nil {
		return nil, err
	}
	ips := make([]string, 0, len(used))
	for ip := range used {
		ips = append(ips, ip)
	}
	sort.Slice(ips, func(i, j int) bool {
		return compareIPs(ips[i], ips[j]) < 0
	})
	return ips, nil
}

// compareIPs orders two dotted-quad IPv4 addresses numerically rather
// than lexicographically (so "10.0.0.2" sorts before "10.0.0.10").
func compareIPs(a, b string) int {
	pa, pb := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(pa) && i < len(pb); i++ {
		na, _ := strconv.Atoi(pa[i])
		nb, _ := strconv.Atoi(pb[i])
		if na != nb {
			return na - nb
		}
	}
	return 0
}

// claim attempts the two-key atomic claim for bare: both the canonical and
// legacy key forms must be absent for the write to commit, closing the
// race between a fresh claim and an in-flight legacy-key migration.
func (a *Allocator) claim(ctx context.Context, bare string, prefixLen int, source store.Source, subnetCIDR string) (bool, error) {
	canonKey := a.prefix + bare
	legacyKey := a.prefix + bare + "/" + strconv.Itoa(prefixLen)

	rec := store.NewRecord(source, a.region, subnetCIDR, nil)
	return a.store.ClaimIfAbsent(ctx, []string{canonKey, legacyKey}, canonKey, rec.Encode())
}
