package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"nft_messenger/internal/model"
)

var ErrNotIndexed = errors.New("token not in index")

type (
	// APIError is a non-2xx answer from the backend.
	APIError struct {
		Status  int
		Code    string
		Missing []string
	}

	// API is the HTTP client of the backend.
	API struct {
		base *url.URL
		http *http.Client
	}
)

func (e *APIError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("backend %d: %s %s", e.Status, e.Code, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("backend %d: %s", e.Status, e.Code)
}

func NewAPI(baseURL string, timeout time.Duration) (*API, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend url %q: scheme must be http or https", baseURL)
	}
	return &API{
		base: u,
		http: &http.Client{Timeout: timeout},
	}, nil
}

func (c *API) endpoint(segments ...string) string {
	u := *c.base
	parts := []string{u.Path, "api"}
	for _, s := range segments {
		parts = append(parts, s)
	}
	u.Path = strings.Join(parts, "/")
	u.RawPath = ""
	return u.String()
}

func (c *API) Challenge(ctx context.Context, address string) (*model.Challenge, error) {
	var ch model.Challenge
	return &ch, c.do(ctx, http.MethodGet, c.endpoint("challenge", address), nil, &ch)
}

func (c *API) PublishKey(ctx context.Context, req *model.PublishKeyRequest) error {
	return c.do(ctx, http.MethodPost, c.endpoint("pubkey"), req, nil)
}

func (c *API) LookupKey(ctx context.Context, address string) (string, error) {
	var resp model.PublicKeyResponse
	if err := c.do(ctx, http.MethodGet, c.endpoint("pubkey", address), nil, &resp); err != nil {
		return "", err
	}
	return resp.PubKey, nil
}

func (c *API) Config(ctx context.Context) (*model.ConfigResponse, error) {
	var resp model.ConfigResponse
	return &resp, c.do(ctx, http.MethodGet, c.endpoint("config"), nil, &resp)
}

func (c *API) Held(ctx context.Context, address string) ([]string, error) {
	var resp model.HeldResponse
	if err := c.do(ctx, http.MethodGet, c.endpoint("held", address), nil, &resp); err != nil {
		return nil, err
	}
	return resp.TokenIDs, nil
}

func (c *API) RecordIndex(ctx context.Context, req *model.RecordIndexRequest) error {
	return c.do(ctx, http.MethodPost, c.endpoint("index"), req, nil)
}

// MessageInfo returns ErrNotIndexed when the backend never indexed tokenID.
func (c *API) MessageInfo(ctx context.Context, tokenID string) (*model.ConversationIndexEntry, error) {
	var entry model.ConversationIndexEntry
	err := c.do(ctx, http.MethodGet, c.endpoint("msginfo", tokenID), nil, &entry)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return nil, ErrNotIndexed
	}
	if err != nil {
		return nil, err
	}
	entry.TokenID = tokenID
	return &entry, nil
}

func (c *API) Encrypt(ctx context.Context, message string, recipients []string) (*model.EncryptResult, error) {
	var res model.EncryptResult
	req := &model.EncryptRequest{Message: message, Recipients: recipients}
	return &res, c.do(ctx, http.MethodPost, c.endpoint("encrypt"), req, &res)
}

// Subscribe opens the index event stream for address.
func (c *API) Subscribe(ctx context.Context, address string) (*websocket.Conn, error) {
	u, err := url.Parse(c.endpoint("subscribe", address))
	if err != nil {
		return nil, err
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *API) do(ctx context.Context, method, u string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return err
		}
		body = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	defer io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		var e model.ErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e)
		if e.Error == "" {
			e.Error = resp.Status
		}
		return &APIError{Status: resp.StatusCode, Code: e.Error, Missing: e.Missing}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
