// Package cloudinventory queries the cloud provider for the set of bare IP
// addresses currently bound to VLAN interfaces across all instances in a
// region.
package cloudinventory

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/linode/linodego"
	"golang.org/x/oauth2"

	"github.com/linode-vlan/ipallocator/internal/cache"
	"github.com/linode-vlan/ipallocator/internal/metrics"
	"github.com/linode-vlan/ipallocator/internal/normalize"
)

const vlanPurpose = "vlan"

// regionProbeTTL bounds how often ProbeRegion actually calls the provider;
// health checks run far more often than the region's reachability can
// meaningfully change.
const regionProbeTTL = 30 * time.Second

// Config controls retry discipline and fan-out concurrency. Zero values
// fall back to the defaults described in the allocation engine's design.
type Config struct {
	Token string

	// MaxAttempts bounds retries per HTTP call. Default 3.
	MaxAttempts int

	// MaxConcurrentConfigFetches bounds the worker pool used to fetch
	// per-instance config detail. Default 8; actual concurrency is also
	// capped to the number of (instance, config) pairs being fetched.
	MaxConcurrentConfigFetches int
}

// tokenSource adapts a static API token to oauth2.TokenSource, mirroring
// the construction used by cloud-provider integrations built on linodego.
type tokenSource struct {
	token string
}

func (t *tokenSource) Token() (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: t.token}, nil
}

// Client lists VLAN-bound addresses for a region via the Linode API.
type Client struct {
	linode      *linodego.Client
	maxWorkers  int
	regionCache *cache.TTLCache[error]
}

// NewClient builds a cloud inventory client. If cfg.Token is empty,
// ErrCredentialsUnavailable is returned immediately (fail-fast, mirroring
// the "obtain the API credential" precondition).
func NewClient(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, ErrCredentialsUnavailable
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	maxWorkers := cfg.MaxConcurrentConfigFetches
	if maxWorkers <= 0 {
		maxWorkers = 8
	}

	oauthClient := oauth2.NewClient(context.Background(), &tokenSource{token: cfg.Token})
	oauthClient.Transport = newRetryTransport(oauthClient.Transport, maxAttempts)

	linodeClient := linodego.NewClient(oauthClient)
	linodeClient.SetUserAgent("vlan-ip-allocator")

	return &Client{
		linode:      &linodeClient,
		maxWorkers:  maxWorkers,
		regionCache: cache.New[error](regionProbeTTL),
	}, nil
}

// newClientWithTransport is used by tests to point the client at an
// httptest.Server instead of the real Linode API.
func newClientWithTransport(rt http.RoundTripper, maxWorkers int) *Client {
	httpClient := &http.Client{Transport: rt}
	linodeClient := linodego.NewClient(httpClient)
	if maxWorkers <= 0 {
		maxWorkers = 8
	}
	return &Client{
		linode:      &linodeClient,
		maxWorkers:  maxWorkers,
		regionCache: cache.New[error](regionProbeTTL),
	}
}

// ProbeRegion performs a cheap reachability check against the provider by
// fetching the configured region's metadata, caching the outcome briefly
// so a health check every few seconds doesn't turn into sustained API
// traffic.
func (c *Client) ProbeRegion(ctx context.Context, region string) error {
	if cached, ok := c.regionCache.Get(); ok {
		return cached
	}
	_, err := c.linode.GetRegion(ctx, region)
	c.regionCache.Set(err)
	return err
}

// ListVLANAddresses returns the bare addresses bound as VLAN interface
// addresses across every instance in region. Order is not significant;
// duplicates may appear and are treated as a set by callers.
func (c *Client) ListVLANAddresses(ctx context.Context, region string) (addrs []string, err error) {
	defer func() {
		if err != nil {
			metrics.IncCloudInventoryRequest("error")
		} else {
			metrics.IncCloudInventoryRequest("ok")
		}
	}()

	instances, err := c.listInstances(ctx, region)
	if err != nil {
		if isTransientFailure(err) {
			return nil, ErrTransientFailure
		}
		return nil, err
	}

	type pair struct {
		instanceID int
		configID   int
	}

	var pairs []pair
	for _, inst := range instances {
		configs, err := c.linode.ListInstanceConfigs(ctx, inst.ID, &linodego.ListOptions{PageSize: 100})
		if err != nil {
			return nil, ErrTransientFailure
		}
		for _, cfg := range configs {
			pairs = append(pairs, pair{instanceID: inst.ID, configID: cfg.ID})
		}
	}

	workers := c.maxWorkers
	if workers > len(pairs) {
		workers = len(pairs)
	}
	if workers <= 0 {
		return nil, nil
	}

	sem := make(chan struct{}, workers)
	results := make([][]string, len(pairs))
	errs := make([]error, len(pairs))
	var wg sync.WaitGroup

	for i, p := range pairs {
		wg.Add(1)
		go func(i int, p pair) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			detail, err := c.linode.GetInstanceConfig(ctx, p.instanceID, p.configID)
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = addressesFromConfig(detail)
		}(i, p)
	}
	wg.Wait()

	for i := range pairs {
		if errs[i] != nil {
			return nil, ErrTransientFailure
		}
		addrs = append(addrs, results[i]...)
	}
	return addrs, nil
}

func addressesFromConfig(cfg *linodego.InstanceConfig) []string {
	var addrs []string
	for _, iface := range cfg.Interfaces {
		if string(iface.Purpose) != vlanPurpose {
			continue
		}
		bare := normalize.Bare(iface.IPAMAddress)
		if bare != "" {
			addrs = append(addrs, bare)
		}
	}
	return addrs
}

func (c *Client) listInstances(ctx context.Context, region string) ([]linodego.Instance, error) {
	var all []linodego.Instance
	opts := &linodego.ListOptions{
		PageOptions: &linodego.PageOptions{Page: 1},
		PageSize:    100,
		Filter:      fmt.Sprintf(`{"region":"%s"}`, region),
	}
	page := 1
	for {
		opts.Page = page
		batch, err := c.linode.ListInstances(ctx, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if opts.Pages == 0 || page >= opts.Pages {
			break
		}
		page++
	}
	return all, nil
}
