package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"nft_messenger/internal/marketplace"
	"nft_messenger/internal/model"
	"nft_messenger/internal/protocol/messaging"
	"nft_messenger/internal/repository/directory"
	"nft_messenger/internal/repository/msgindex"
	"nft_messenger/internal/service/auth"
	"nft_messenger/internal/utils/log"
)

const (
	errInvalidParams  = "invalid params"
	errMissingParams  = "missing params"
	errInvalidAddress = "invalid address"
	errUnauthorized   = "unauthorized"
	errNotFound       = "not_found"
	errNotInIndex     = "not_found_in_index"
	errMissingPubkeys = "missing_pubkeys"
	errUploadFailed   = "upload_failed"
	errUpstreamFailed = "upstream_failed"
)

func (s *HttpServer) withTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.opts.Timeout)
}

func (s *HttpServer) GetChallenge() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := s.withTimeout(r)
		defer cancel()

		ch, err := s.auth.Challenge(ctx, mux.Vars(r)["address"])
		if errors.Is(err, directory.ErrInvalidAddress) {
			writeError(w, http.StatusBadRequest, errInvalidAddress)
			return
		}
		if err != nil {
			log.Error("issue challenge failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, &ch)
	}
}

func (s *HttpServer) PublishKey() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := s.withTimeout(r)
		defer cancel()

		var req model.PublishKeyRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, errInvalidParams)
			return
		}
		if err := directory.Validate(req.Address, req.PubKey); err != nil {
			log.Info("publish key rejected", zap.String("address", req.Address), zap.Error(err))
			writeError(w, http.StatusBadRequest, errInvalidParams)
			return
		}

		err := s.auth.Authorize(ctx, auth.ActionPublishKey, req.Address, req.Nonce, req.Signature, auth.PublishPayload(req.PubKey))
		if err != nil {
			s.authFailed(w, err, req.Address)
			return
		}

		if err := s.directory.Publish(ctx, req.Address, req.PubKey); err != nil {
			log.Error("publish key failed", zap.String("address", req.Address), zap.Error(err))
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		log.Info("public key published", zap.String("address", strings.ToLower(req.Address)))
		writeJSON(w, http.StatusOK, &model.OKResponse{OK: true})
	}
}

func (s *HttpServer) GetPublicKey() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := s.withTimeout(r)
		defer cancel()

		address := mux.Vars(r)["address"]
		key, err := s.directory.Lookup(ctx, address)
		if errors.Is(err, directory.ErrNotFound) || errors.Is(err, directory.ErrInvalidAddress) {
			writeError(w, http.StatusNotFound, errNotFound)
			return
		}
		if err != nil {
			log.Error("lookup key failed", zap.String("address", address), zap.Error(err))
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, &model.PublicKeyResponse{PubKey: key})
	}
}

func (s *HttpServer) GetConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, &model.ConfigResponse{ContractAddress: s.opts.ContractAddress})
	}
}

func (s *HttpServer) GetHeldTokens() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := s.withTimeout(r)
		defer cancel()

		owner := strings.ToLower(mux.Vars(r)["addr"])
		if owner == "" || s.opts.ContractAddress == nil || s.market == nil {
			writeError(w, http.StatusBadRequest, errMissingParams)
			return
		}
		if _, err := directory.Canonical(owner); err != nil {
			writeError(w, http.StatusBadRequest, errInvalidAddress)
			return
		}

		ids, err := s.market.HeldTokens(ctx, owner, *s.opts.ContractAddress)
		if errors.Is(err, marketplace.ErrUpstream) {
			writeError(w, http.StatusBadGateway, errUpstreamFailed)
			return
		}
		if err != nil {
			log.Error("held tokens failed", zap.String("owner", owner), zap.Error(err))
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, &model.HeldResponse{TokenIDs: ids})
	}
}

func (s *HttpServer) RecordIndex() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := s.withTimeout(r)
		defer cancel()

		var req model.RecordIndexRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, errInvalidParams)
			return
		}
		ids, err := msgindex.Validate(req.TokenIDs, req.Sender, req.Recipient)
		if err != nil {
			log.Info("index record rejected", zap.Strings("tokenIds", req.TokenIDs), zap.Error(err))
			writeError(w, http.StatusBadRequest, errInvalidParams)
			return
		}

		err = s.auth.Authorize(ctx, auth.ActionRecordIndex, req.Sender, req.Nonce, req.Signature,
			auth.IndexPayload(req.TokenIDs, req.Recipient))
		if err != nil {
			s.authFailed(w, err, req.Sender)
			return
		}

		if err := s.index.RecordBatch(ctx, req.TokenIDs, req.Sender, req.Recipient); err != nil {
			log.Error("record index failed", zap.Strings("tokenIds", req.TokenIDs), zap.Error(err))
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.metrics.indexed.Add(float64(len(ids)))
		log.Info("tokens indexed", zap.Strings("tokenIds", ids),
			zap.String("sender", req.Sender), zap.String("recipient", req.Recipient))

		s.hub.Publish(&model.IndexEvent{
			TokenIDs:  ids,
			Sender:    strings.ToLower(req.Sender),
			Recipient: strings.ToLower(req.Recipient),
		})
		writeJSON(w, http.StatusOK, &model.OKResponse{OK: true})
	}
}

func (s *HttpServer) GetMessageInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := s.withTimeout(r)
		defer cancel()

		id := mux.Vars(r)["id"]
		entry, err := s.index.Lookup(ctx, id)
		if errors.Is(err, msgindex.ErrNotFound) || errors.Is(err, msgindex.ErrInvalidTokenID) {
			log.Info("token not in index", zap.String("tokenId", id))
			writeError(w, http.StatusNotFound, errNotInIndex)
			return
		}
		if err != nil {
			log.Error("index lookup failed", zap.String("tokenId", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, &model.ConversationIndexEntry{
			Sender:    entry.Sender,
			Recipient: entry.Recipient,
		})
	}
}

func (s *HttpServer) Encrypt() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := s.withTimeout(r)
		defer cancel()

		var req model.EncryptRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, errInvalidParams)
			return
		}

		res, err := s.crypto.Encrypt(ctx, req.Message, req.Recipients)
		var missing *messaging.MissingPublicKeysError
		switch {
		case err == nil:
		case errors.As(err, &missing):
			writeJSON(w, http.StatusBadRequest, &model.ErrorResponse{Error: errMissingPubkeys, Missing: missing.Missing})
			return
		case errors.Is(err, messaging.ErrNoRecipients), errors.Is(err, messaging.ErrEmptyMessage):
			writeError(w, http.StatusBadRequest, errInvalidParams)
			return
		case errors.Is(err, messaging.ErrUploadFailed):
			log.Error("blob upload failed", zap.Error(err))
			writeError(w, http.StatusBadGateway, errUploadFailed)
			return
		default:
			log.Error("encrypt failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		s.metrics.encrypted.Inc()
		writeJSON(w, http.StatusOK, &res)
	}
}

func (s *HttpServer) HandleSubscribe() http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		address, err := directory.Canonical(mux.Vars(r)["address"])
		if err != nil {
			writeError(w, http.StatusBadRequest, errInvalidAddress)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error("websocket upgrade failed", zap.Error(err))
			return
		}

		sub := newSubscriber(s.hub, conn, address)
		if !s.hub.register(sub) {
			conn.Close()
			return
		}
		go sub.writePump()
		go sub.readPump()
	}
}

func (s *HttpServer) authFailed(w http.ResponseWriter, err error, address string) {
	if errors.Is(err, auth.ErrUnauthorized) {
		log.Info("write rejected", zap.String("address", address), zap.Error(err))
		writeError(w, http.StatusUnauthorized, errUnauthorized)
		return
	}
	if errors.Is(err, directory.ErrInvalidAddress) {
		writeError(w, http.StatusBadRequest, errInvalidParams)
		return
	}
	log.Error("authorize failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, err.Error())
}
