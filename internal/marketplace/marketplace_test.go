package marketplace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeldTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/0xabc/tokens/v7", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "0xcontract", q.Get("collection"))
		assert.Equal(t, "acquiredAt", q.Get("sortBy"))
		assert.Equal(t, "desc", q.Get("sortDirection"))
		assert.Equal(t, "200", q.Get("limit"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tokens":[{"token":{"tokenId":"12","name":"x"}},{"token":{"tokenId":7}}],"continuation":null}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret", time.Second)
	ids, err := c.HeldTokens(context.Background(), "0xABC", "0xContract")
	require.NoError(t, err)
	assert.Equal(t, []string{"12", "7"}, ids)
}

func TestHeldTokensEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ids, err := NewClient(srv.URL, "", time.Second).HeldTokens(context.Background(), "0xabc", "0xc")
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
}

func TestHeldTokensUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", time.Second).HeldTokens(context.Background(), "0xabc", "0xc")
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestHeldTokensMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", time.Second).HeldTokens(context.Background(), "0xabc", "0xc")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUpstream)
}
