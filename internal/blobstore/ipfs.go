package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	shell "github.com/ipfs/go-ipfs-api"
	"go.uber.org/zap"

	"nft_messenger/internal/utils/log"
)

const defaultGatewayRetries = 3

type (
	// IPFSStore uploads through a kubo RPC endpoint and reads through one or
	// more HTTP gateways, trying each in order.
	IPFSStore struct {
		shell      *shell.Shell
		gateways   []string
		httpClient *http.Client
		retries    uint64
	}

	IPFSOption func(*IPFSStore)
)

func WithHTTPClient(c *http.Client) IPFSOption {
	return func(s *IPFSStore) { s.httpClient = c }
}

func WithGatewayRetries(n uint64) IPFSOption {
	return func(s *IPFSStore) { s.retries = n }
}

func NewIPFSStore(apiURL string, gateways []string, timeout time.Duration, opts ...IPFSOption) *IPFSStore {
	sh := shell.NewShell(apiURL)
	if timeout > 0 {
		sh.SetTimeout(timeout)
	}

	s := &IPFSStore{
		shell:      sh,
		httpClient: &http.Client{Timeout: timeout},
		retries:    defaultGatewayRetries,
	}
	for _, g := range gateways {
		if g = strings.TrimRight(strings.TrimSpace(g), "/"); g != "" {
			s.gateways = append(s.gateways, g)
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put adds data with pinning enabled and then pins the returned CID
// explicitly, so the content survives garbage collection on the node.
func (s *IPFSStore) Put(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", uploadFailed(err)
	}

	cid, err := s.shell.Add(bytes.NewReader(data), shell.Pin(true))
	if err != nil {
		return "", uploadFailed(err)
	}
	if err := s.shell.Pin(cid); err != nil {
		return "", uploadFailed(fmt.Errorf("pin %s: %w", cid, err))
	}

	log.Debug("blob pinned", zap.String("cid", cid), zap.Int("size", len(data)))
	return cid, nil
}

func (s *IPFSStore) Get(ctx context.Context, address string) ([]byte, error) {
	if address == "" || strings.ContainsAny(address, "/?#") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	if len(s.gateways) == 0 {
		return nil, fetchFailed(fmt.Errorf("no gateways configured"))
	}

	var lastErr error
	for _, gw := range s.gateways {
		data, err := s.fetch(ctx, gw+"/ipfs/"+address)
		if err == nil {
			return data, nil
		}
		log.Warn("gateway fetch failed", zap.String("gateway", gw), zap.String("cid", address), zap.Error(err))
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fetchFailed(lastErr)
}

func (s *IPFSStore) fetch(ctx context.Context, url string) ([]byte, error) {
	var data []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("gateway status %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("gateway status %d", resp.StatusCode))
		}

		data, err = io.ReadAll(io.LimitReader(resp.Body, maxBlobSize))
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return data, backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, s.retries), ctx))
}
