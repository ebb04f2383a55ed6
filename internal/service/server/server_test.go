package server

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"nft_messenger/internal/blobstore"
	"nft_messenger/internal/cryptographic/dh"
	"nft_messenger/internal/cryptographic/signature"
	"nft_messenger/internal/marketplace"
	"nft_messenger/internal/model"
	"nft_messenger/internal/protocol/messaging"
	"nft_messenger/internal/repository/directory"
	"nft_messenger/internal/repository/kv"
	"nft_messenger/internal/repository/msgindex"
	"nft_messenger/internal/service/auth"
	"nft_messenger/internal/utils/log"
)

const contract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

type fakeMarket struct {
	ids []string
	err error
}

func (f *fakeMarket) HeldTokens(_ context.Context, owner, collection string) ([]string, error) {
	return f.ids, f.err
}

type failingBlobs struct{}

func (failingBlobs) Put(context.Context, []byte) (string, error) {
	return "", errors.Join(blobstore.ErrUploadFailed, errors.New("connection refused"))
}

func (failingBlobs) Get(context.Context, string) ([]byte, error) {
	return nil, blobstore.ErrFetchFailed
}

type account struct {
	key     *ecdsa.PrivateKey
	address string
	encPriv [32]byte
	encPub  string
}

func newAccount(t *testing.T) account {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	priv, pub, err := dh.NewX25519KeyPair()
	require.NoError(t, err)
	return account{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey).Hex(),
		encPriv: priv,
		encPub:  dh.EncodePublicKey(pub),
	}
}

type fixture struct {
	t      *testing.T
	server *HttpServer
	http   *httptest.Server
	blobs  blobstore.Store
	market *fakeMarket
}

func newFixture(t *testing.T, blobs blobstore.Store, contractAddr *string) *fixture {
	t.Helper()
	dir := t.TempDir()

	keys, err := kv.NewFileStore(dir, directory.Namespace)
	require.NoError(t, err)
	msgs, err := kv.NewFileStore(dir, msgindex.Namespace)
	require.NoError(t, err)
	if blobs == nil {
		blobs, err = blobstore.NewLocalStore(t.TempDir())
		require.NoError(t, err)
	}

	directoryStore := directory.New(keys)
	market := &fakeMarket{}
	srv := NewHttpServer(
		directoryStore,
		msgindex.New(msgs),
		messaging.New(directoryStore, blobs),
		market,
		auth.NewService(auth.NewMemoryNonceStore(), time.Minute, true),
		Options{ContractAddress: contractAddr, Timeout: 5 * time.Second},
	)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		srv.Hub().Close()
		ts.Close()
	})

	return &fixture{t: t, server: srv, http: ts, blobs: blobs, market: market}
}

func (f *fixture) do(method, path string, body any, out any) int {
	f.t.Helper()
	var rd io.Reader
	if body != nil {
		if s, ok := body.(string); ok {
			rd = strings.NewReader(s)
		} else {
			b, err := json.Marshal(body)
			require.NoError(f.t, err)
			rd = bytes.NewReader(b)
		}
	}
	req, err := http.NewRequest(method, f.http.URL+path, rd)
	require.NoError(f.t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(f.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(f.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (f *fixture) challenge(address string) string {
	f.t.Helper()
	var ch model.Challenge
	require.Equal(f.t, http.StatusOK, f.do(http.MethodGet, "/api/challenge/"+address, nil, &ch))
	return ch.Nonce
}

func (f *fixture) publish(a account) {
	f.t.Helper()
	nonce := f.challenge(a.address)
	sig, err := signature.PersonalSign(a.key, signature.WriteMessage(auth.ActionPublishKey, a.address, nonce, a.encPub))
	require.NoError(f.t, err)

	var ok model.OKResponse
	require.Equal(f.t, http.StatusOK, f.do(http.MethodPost, "/api/pubkey", &model.PublishKeyRequest{
		Address: a.address, PubKey: a.encPub, Nonce: nonce, Signature: sig,
	}, &ok))
	require.True(f.t, ok.OK)
}

func (f *fixture) recordIndex(by account, ids []string, recipient string) int {
	f.t.Helper()
	nonce := f.challenge(by.address)
	sig, err := signature.PersonalSign(by.key,
		signature.WriteMessage(auth.ActionRecordIndex, by.address, nonce, auth.IndexPayload(ids, recipient)))
	require.NoError(f.t, err)

	return f.do(http.MethodPost, "/api/index", &model.RecordIndexRequest{
		TokenIDs: ids, Sender: by.address, Recipient: recipient, Nonce: nonce, Signature: sig,
	}, nil)
}

func TestPublishAndLookupKey(t *testing.T) {
	f := newFixture(t, nil, nil)
	alice := newAccount(t)

	var errResp model.ErrorResponse
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/pubkey/"+alice.address, nil, &errResp))
	assert.Equal(t, "not_found", errResp.Error)

	f.publish(alice)

	var got model.PublicKeyResponse
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/pubkey/"+strings.ToLower(alice.address), nil, &got))
	assert.Equal(t, alice.encPub, got.PubKey)
}

func TestPublishKeyRejects(t *testing.T) {
	f := newFixture(t, nil, nil)
	alice, mallory := newAccount(t), newAccount(t)

	var errResp model.ErrorResponse
	status := f.do(http.MethodPost, "/api/pubkey", &model.PublishKeyRequest{Address: alice.address, PubKey: alice.encPub}, &errResp)
	assert.Equal(t, http.StatusUnauthorized, status, "unsigned write")

	nonce := f.challenge(alice.address)
	sig, err := signature.PersonalSign(mallory.key, signature.WriteMessage(auth.ActionPublishKey, alice.address, nonce, mallory.encPub))
	require.NoError(t, err)
	status = f.do(http.MethodPost, "/api/pubkey", &model.PublishKeyRequest{
		Address: alice.address, PubKey: mallory.encPub, Nonce: nonce, Signature: sig,
	}, &errResp)
	assert.Equal(t, http.StatusUnauthorized, status, "someone else's key")

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/pubkey", &model.PublishKeyRequest{Address: "bob", PubKey: alice.encPub}, nil))
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/pubkey", &model.PublishKeyRequest{Address: alice.address, PubKey: "short"}, nil))
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/pubkey", `{"address":"x","pubKey":"y","extra":1}`, nil))
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/pubkey", `{"address":`, nil))

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/pubkey/"+alice.address, nil, nil))
}

func TestConfig(t *testing.T) {
	var resp map[string]any
	f := newFixture(t, nil, nil)
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/config", nil, &resp))
	assert.Contains(t, resp, "contractAddress")
	assert.Nil(t, resp["contractAddress"])

	addr := contract
	f = newFixture(t, nil, &addr)
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/config", nil, &resp))
	assert.Equal(t, contract, resp["contractAddress"])
}

func TestHeldTokens(t *testing.T) {
	alice := newAccount(t)

	f := newFixture(t, nil, nil)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/held/"+alice.address, nil, nil), "no contract configured")

	addr := contract
	f = newFixture(t, nil, &addr)
	f.market.ids = []string{"3", "1"}
	var held model.HeldResponse
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/held/"+alice.address, nil, &held))
	assert.Equal(t, []string{"3", "1"}, held.TokenIDs)

	var errResp model.ErrorResponse
	f.market.err = marketplace.ErrUpstream
	assert.Equal(t, http.StatusBadGateway, f.do(http.MethodGet, "/api/held/"+alice.address, nil, &errResp))
	assert.Equal(t, "upstream_failed", errResp.Error)

	f.market.err = errors.New("dns failure")
	assert.Equal(t, http.StatusInternalServerError, f.do(http.MethodGet, "/api/held/"+alice.address, nil, nil))

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/held/nobody", nil, nil))
}

func TestRecordIndexAndMessageInfo(t *testing.T) {
	f := newFixture(t, nil, nil)
	sender, recipient := newAccount(t), newAccount(t)

	require.Equal(t, http.StatusOK, f.recordIndex(sender, []string{"7", "8"}, recipient.address))

	for _, id := range []string{"7", "8"} {
		var entry map[string]string
		require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/msginfo/"+id, nil, &entry))
		assert.Equal(t, map[string]string{
			"sender":    strings.ToLower(sender.address),
			"recipient": strings.ToLower(recipient.address),
		}, entry)
	}

	var errResp model.ErrorResponse
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/msginfo/9", nil, &errResp))
	assert.Equal(t, "not_found_in_index", errResp.Error)
}

func TestRecordIndexRejects(t *testing.T) {
	f := newFixture(t, nil, nil)
	sender, recipient, mallory := newAccount(t), newAccount(t), newAccount(t)

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/api/index", &model.RecordIndexRequest{
		TokenIDs: []string{"1"}, Sender: sender.address, Recipient: recipient.address,
	}, nil))

	nonce := f.challenge(sender.address)
	sig, err := signature.PersonalSign(mallory.key,
		signature.WriteMessage(auth.ActionRecordIndex, sender.address, nonce, auth.IndexPayload([]string{"1"}, recipient.address)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/api/index", &model.RecordIndexRequest{
		TokenIDs: []string{"1"}, Sender: sender.address, Recipient: recipient.address, Nonce: nonce, Signature: sig,
	}, nil))

	for _, body := range []*model.RecordIndexRequest{
		{TokenIDs: nil, Sender: sender.address, Recipient: recipient.address},
		{TokenIDs: []string{"one"}, Sender: sender.address, Recipient: recipient.address},
		{TokenIDs: []string{"1"}, Sender: "s", Recipient: recipient.address},
	} {
		assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/index", body, nil))
	}

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/msginfo/1", nil, nil))
}

func TestEncrypt(t *testing.T) {
	f := newFixture(t, nil, nil)
	alice, bob := newAccount(t), newAccount(t)
	f.publish(alice)

	var errResp model.ErrorResponse
	status := f.do(http.MethodPost, "/api/encrypt", &model.EncryptRequest{Message: "hi", Recipients: []string{alice.address, bob.address}}, &errResp)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "missing_pubkeys", errResp.Error)
	assert.Equal(t, []string{bob.address}, errResp.Missing)

	var res model.EncryptResult
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/encrypt", &model.EncryptRequest{Message: "hello", Recipients: []string{alice.address}}, &res))
	require.Len(t, res.EncKeys, 1)
	assert.True(t, strings.HasPrefix(res.EncKeys[0], "0x"))

	plaintext, err := messaging.New(nil, f.blobs).Read(context.Background(), res.CID, res.EncKeys[0], alice.encPriv)
	require.NoError(t, err)
	assert.Equal(t, "hello", plaintext)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/encrypt", &model.EncryptRequest{Message: "hi"}, nil))
}

func TestEncryptUploadFailure(t *testing.T) {
	f := newFixture(t, failingBlobs{}, nil)
	alice := newAccount(t)
	f.publish(alice)

	var errResp model.ErrorResponse
	status := f.do(http.MethodPost, "/api/encrypt", &model.EncryptRequest{Message: "hi", Recipients: []string{alice.address}}, &errResp)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "upload_failed", errResp.Error)
}

func TestSubscribeReceivesIndexEvents(t *testing.T) {
	f := newFixture(t, nil, nil)
	sender, recipient := newAccount(t), newAccount(t)

	wsURL := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/api/subscribe/" + recipient.address
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return f.server.Hub().Subscribers(strings.ToLower(recipient.address)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, http.StatusOK, f.recordIndex(sender, []string{"42"}, recipient.address))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event model.IndexEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, []string{"42"}, event.TokenIDs)
	assert.Equal(t, strings.ToLower(sender.address), event.Sender)
	assert.Equal(t, strings.ToLower(recipient.address), event.Recipient)

	status := f.do(http.MethodGet, "/api/subscribe/nobody", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, nil, nil)

	resp, err := http.Get(f.http.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	f.do(http.MethodGet, "/api/config", nil, nil)

	want := `nftmsg_http_requests_total{code="200",method="GET",route="/api/config"} 1`
	assert.Eventually(t, func() bool {
		resp, err := http.Get(f.http.URL + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return strings.Contains(string(body), want)
	}, 2*time.Second, 20*time.Millisecond)
}

func TestAccessLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	prev := log.L()
	log.Set(zap.New(core))
	t.Cleanup(func() { log.Set(prev) })

	f := newFixture(t, nil, nil)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/msginfo/42", nil, nil))

	assert.Eventually(t, func() bool {
		return logs.FilterMessage("http request").
			FilterField(zap.String("path", "/api/msginfo/42")).
			FilterField(zap.Int("status", http.StatusNotFound)).Len() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, logs.FilterMessage("token not in index").Len())
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, nil, nil)
	req, err := http.NewRequest(http.MethodOptions, f.http.URL+"/api/encrypt", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
