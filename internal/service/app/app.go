package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"nft_messenger/internal/blobstore"
	"nft_messenger/internal/model"
	"nft_messenger/internal/protocol/messaging"
	"nft_messenger/internal/service/auth"
	"nft_messenger/internal/utils/log"
)

const (
	Unknown          = "unknown"
	KeyNotFound      = "[Key not found]"
	DecryptionFailed = "[Decryption failed]"
	FetchFailed      = "[Content unavailable]"
)

type (
	Ledger interface {
		MintMessageNFT(ctx context.Context, recipients []string, cid string, encKeys []string) ([]string, error)
		GetMetadata(ctx context.Context, tokenID string, caller common.Address) (cid string, encKey string, err error)
		PublishKey(ctx context.Context, key string) error
		GetPublicKey(ctx context.Context, address string) (string, error)
	}

	// App drives the send and read flows for one local identity.
	App struct {
		api      *API
		ledger   Ledger
		identity *Identity
		reader   *messaging.Protocol
	}
)

func NewApp(api *API, ledger Ledger, identity *Identity, blobs blobstore.Store) *App {
	return &App{
		api:      api,
		ledger:   ledger,
		identity: identity,
		reader:   messaging.New(nil, blobs),
	}
}

func (c *App) Address() string {
	return c.identity.Address().Hex()
}

// PublishKey registers the identity's encryption key with the backend and,
// when onchain is set, with the contract's key registry too.
func (c *App) PublishKey(ctx context.Context, onchain bool) (string, error) {
	pubKey, err := c.identity.EncryptionPublicKey()
	if err != nil {
		return "", err
	}

	if onchain {
		if c.ledger == nil {
			return "", errors.New("on-chain publish needs a ledger connection")
		}
		if err := c.ledger.PublishKey(ctx, pubKey); err != nil {
			return "", fmt.Errorf("publish key on chain: %w", err)
		}
	}

	address := c.Address()
	ch, err := c.api.Challenge(ctx, address)
	if err != nil {
		return "", fmt.Errorf("challenge: %w", err)
	}
	sig, err := c.identity.SignWrite(auth.ActionPublishKey, ch.Nonce, auth.PublishPayload(pubKey))
	if err != nil {
		return "", err
	}

	err = c.api.PublishKey(ctx, &model.PublishKeyRequest{
		Address:   address,
		PubKey:    pubKey,
		Nonce:     ch.Nonce,
		Signature: sig,
	})
	if err != nil {
		return "", fmt.Errorf("publish key: %w", err)
	}
	return pubKey, nil
}

// LookupKey returns the encryption key published for address, falling back
// to the contract's registry when the backend has none.
func (c *App) LookupKey(ctx context.Context, address string) (string, error) {
	key, err := c.api.LookupKey(ctx, address)
	var apiErr *APIError
	if err == nil || !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound || c.ledger == nil {
		return key, err
	}

	key, err = c.ledger.GetPublicKey(ctx, address)
	if err != nil {
		return "", fmt.Errorf("on-chain key lookup: %w", err)
	}
	if key == "" {
		return "", apiErr
	}
	return key, nil
}

// Send encrypts message for recipient, mints it and records the minted
// tokens in the index. The index is only written once the mint has
// confirmed; a failed index write after a good mint leaves the message
// readable with unknown participants.
func (c *App) Send(ctx context.Context, recipient, message string) ([]string, error) {
	if c.ledger == nil {
		return nil, errors.New("sending needs a ledger connection")
	}

	res, err := c.api.Encrypt(ctx, message, []string{recipient})
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}

	tokenIDs, err := c.ledger.MintMessageNFT(ctx, []string{recipient}, res.CID, res.EncKeys)
	if err != nil {
		return nil, fmt.Errorf("mint: %w", err)
	}
	log.Info("message minted", zap.Strings("tokenIds", tokenIDs), zap.String("cid", res.CID))

	if err := c.recordIndex(ctx, tokenIDs, recipient); err != nil {
		log.Error("record index failed", zap.Strings("tokenIds", tokenIDs), zap.Error(err))
		return tokenIDs, fmt.Errorf("minted %s but indexing failed: %w", strings.Join(tokenIDs, ","), err)
	}
	return tokenIDs, nil
}

func (c *App) recordIndex(ctx context.Context, tokenIDs []string, recipient string) error {
	address := c.Address()
	ch, err := c.api.Challenge(ctx, address)
	if err != nil {
		return err
	}
	sig, err := c.identity.SignWrite(auth.ActionRecordIndex, ch.Nonce, auth.IndexPayload(tokenIDs, recipient))
	if err != nil {
		return err
	}
	return c.api.RecordIndex(ctx, &model.RecordIndexRequest{
		TokenIDs:  tokenIDs,
		Sender:    address,
		Recipient: recipient,
		Nonce:     ch.Nonce,
		Signature: sig,
	})
}

// Read reconstructs one message. Failures specific to the message are
// reported in Message.Err and a display text, not as an error.
func (c *App) Read(ctx context.Context, tokenID string) (*model.Message, error) {
	if c.ledger == nil {
		return nil, errors.New("reading needs a ledger connection")
	}

	cid, encKey, err := c.ledger.GetMetadata(ctx, tokenID, c.identity.Address())
	if err != nil {
		return nil, err
	}

	msg := &model.Message{
		TokenID:   tokenID,
		Sender:    Unknown,
		Recipient: Unknown,
		CID:       cid,
		EncKey:    encKey,
	}

	if cid == "" {
		return msg, nil
	}

	info, err := c.api.MessageInfo(ctx, tokenID)
	switch {
	case err == nil:
		msg.Sender, msg.Recipient = info.Sender, info.Recipient
	case errors.Is(err, ErrNotIndexed):
		log.Debug("token not indexed", zap.String("tokenId", tokenID))
	default:
		log.Warn("message info failed", zap.String("tokenId", tokenID), zap.Error(err))
	}

	plaintext, err := c.reader.Read(ctx, cid, encKey, c.identity.EncryptionSecret())
	switch {
	case err == nil:
		msg.Plaintext = plaintext
	case errors.Is(err, messaging.ErrKeyNotFound):
		msg.Plaintext, msg.Err = KeyNotFound, err
	case errors.Is(err, messaging.ErrDecryptionFailed):
		msg.Plaintext, msg.Err = DecryptionFailed, err
	default:
		msg.Plaintext, msg.Err = FetchFailed, err
	}
	return msg, nil
}

// Inbox reads every message token the identity holds, oldest first. Tokens
// without content are skipped.
func (c *App) Inbox(ctx context.Context) ([]*model.Message, error) {
	ids, err := c.api.Held(ctx, c.Address())
	if err != nil {
		return nil, fmt.Errorf("held tokens: %w", err)
	}

	var out []*model.Message
	for _, id := range ids {
		msg, err := c.Read(ctx, id)
		if err != nil {
			log.Warn("read token failed", zap.String("tokenId", id), zap.Error(err))
			continue
		}
		if msg.CID == "" {
			continue
		}
		out = append(out, msg)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return lessTokenID(out[i].TokenID, out[j].TokenID)
	})
	return out, nil
}

func lessTokenID(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

// Peer is the other side of msg from the identity's point of view.
func (c *App) Peer(msg *model.Message) string {
	me := strings.ToLower(c.Address())
	switch {
	case msg.Sender == Unknown && msg.Recipient == Unknown:
		return Unknown
	case strings.EqualFold(msg.Sender, me):
		return msg.Recipient
	default:
		return msg.Sender
	}
}
