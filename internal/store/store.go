// Package store is a thin wrapper over a replicated key-value store
// (etcd) exposing exactly the primitives the allocator needs: prefix
// reads, deletes, and a compare-and-swap transaction.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// ErrUnavailable is returned when no configured endpoint answers Status.
var ErrUnavailable = errors.New("store: no reachable endpoint")

// KV is a single key/value/version tuple returned by GetPrefix.
type KV struct {
	Key     string
	Value   []byte
	Version int64
}

// Client dials one of a list of endpoints on every public call, favouring
// simplicity over pooled-connection latency, per the allocation engine's
// endpoint selection rule: try each endpoint in order, use the first whose
// Status call succeeds for the whole request.
type Client struct {
	endpoints   []string
	dialTimeout time.Duration
}

// NewClient builds a store client over the given endpoints. Each endpoint
// should be a bare host:port (scheme stripped, trailing slash removed).
func NewClient(endpoints []string) *Client {
	cleaned := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		ep = strings.TrimSpace(ep)
		ep = strings.TrimPrefix(ep, "http://")
		ep = strings.TrimPrefix(ep, "https://")
		ep = strings.TrimSuffix(ep, "/")
		if ep != "" {
			cleaned = append(cleaned, ep)
		}
	}
	return &Client{endpoints: cleaned, dialTimeout: 5 * time.Second}
}

func (c *Client) dial(ctx context.Context) (*clientv3.Client, error) {
	var lastErr error
	for _, ep := range c.endpoints {
		cli, err := clientv3.New(clientv3.Config{
			Endpoints:   []string{ep},
			DialTimeout: c.dialTimeout,
		})
		if err != nil {
			lastErr = err
			continue
		}
		statusCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
		_, err = cli.Status(statusCtx, ep)
		cancel()
		if err != nil {
			cli.Close()
			lastErr = err
			continue
		}
		return cli, nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
	}
	return nil, ErrUnavailable
}

// Status reports whether at least one endpoint is reachable.
func (c *Client) Status(ctx context.Context) error {
	cli, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer cli.Close()
	return nil
}

// GetPrefix returns every key/value/version tuple whose key starts with
// prefix.
func (c *Client) GetPrefix(ctx context.Context, prefix string) ([]KV, error) {
	cli, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer cli.Close()

	resp, err := cli.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	out := make([]KV, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		out = append(out, KV{Key: string(kv.Key), Value: kv.Value, Version: kv.Version})
	}
	return out, nil
}

// Put writes key unconditionally.
func (c *Client) Put(ctx context.Context, key string, value []byte) error {
	cli, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer cli.Close()
	_, err = cli.Put(ctx, key, string(value))
	return err
}

// Delete removes key and reports whether a key was actually removed.
func (c *Client) Delete(ctx context.Context, key string) (bool, error) {
	cli, err := c.dial(ctx)
	if err != nil {
		return false, err
	}
	defer cli.Close()
	resp, err := cli.Delete(ctx, key)
	if err != nil {
		return false, err
	}
	return resp.Deleted > 0, nil
}

// ClaimIfAbsent atomically writes putValue under putKey iff every key in
// mustBeAbsent does not yet exist (version == 0). This is the only
// transaction shape the allocator needs: a multi-key existence predicate
// guarding a single put.
func (c *Client) ClaimIfAbsent(ctx context.Context, mustBeAbsent []string, putKey string, putValue []byte) (bool, error) {
	cli, err := c.dial(ctx)
	if err != nil {
		return false, err
	}
	defer cli.Close()

	cmps := make([]clientv3.Cmp, 0, len(mustBeAbsent))
	for _, k := range mustBeAbsent {
		cmps = append(cmps, clientv3.Compare(clientv3.Version(k), "=", 0))
	}

	resp, err := cli.Txn(ctx).
		If(cmps...).
		Then(clientv3.OpPut(putKey, string(putValue))).
		Commit()
	if err != nil {
		return false, err
	}
	return resp.Succeeded, nil
}
