// Package marketplace lists the message tokens an account currently holds,
// using the marketplace indexer's user tokens API.
package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"nft_messenger/internal/utils/log"
)

const DefaultBaseURL = "https://api-mainnet.magiceden.dev/v3/rtp/monad-testnet"

// ErrUpstream means the marketplace answered with a non-2xx status.
var ErrUpstream = errors.New("upstream failed")

type (
	Client struct {
		baseURL string
		token   string
		http    *http.Client
	}

	tokensResponse struct {
		Tokens []struct {
			Token struct {
				TokenID json.Number `json:"tokenId"`
			} `json:"token"`
		} `json:"tokens"`
	}
)

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// HeldTokens returns the ids of collection tokens held by owner, most
// recently acquired first.
func (c *Client) HeldTokens(ctx context.Context, owner, collection string) ([]string, error) {
	params := url.Values{
		"collection":     []string{strings.ToLower(collection)},
		"sortBy":         []string{"acquiredAt"},
		"sortDirection":  []string{"desc"},
		"limit":          []string{"200"},
		"includeRawData": []string{"false"},
	}
	u := fmt.Sprintf("%s/users/%s/tokens/v7?%s", c.baseURL, url.PathEscape(strings.ToLower(owner)), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "*/*")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Error("marketplace error", zap.Int("status", resp.StatusCode), zap.ByteString("body", body))
		return nil, fmt.Errorf("%w: %s", ErrUpstream, resp.Status)
	}

	var out tokensResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode marketplace response: %w", err)
	}

	ids := make([]string, 0, len(out.Tokens))
	for _, t := range out.Tokens {
		ids = append(ids, t.Token.TokenID.String())
	}
	return ids, nil
}
