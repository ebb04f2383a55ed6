package model

import "time"

type (
	PublishKeyRequest struct {
		Address   string `json:"address"`
		PubKey    string `json:"pubKey"`
		Nonce     string `json:"nonce,omitempty"`
		Signature string `json:"signature,omitempty"`
	}

	PublicKeyResponse struct {
		PubKey string `json:"pubKey"`
	}

	RecordIndexRequest struct {
		TokenIDs  []string `json:"tokenIds"`
		Sender    string   `json:"sender"`
		Recipient string   `json:"recipient"`
		Nonce     string   `json:"nonce,omitempty"`
		Signature string   `json:"signature,omitempty"`
	}

	EncryptRequest struct {
		Message    string   `json:"message"`
		Recipients []string `json:"recipients"`
	}

	ConfigResponse struct {
		ContractAddress *string `json:"contractAddress"`
	}

	HeldResponse struct {
		TokenIDs []string `json:"tokenIds"`
	}

	Challenge struct {
		Address   string    `json:"address"`
		Nonce     string    `json:"nonce"`
		ExpiresAt time.Time `json:"expiresAt"`
	}

	OKResponse struct {
		OK bool `json:"ok"`
	}

	ErrorResponse struct {
		Error   string   `json:"error"`
		Missing []string `json:"missing,omitempty"`
	}
)
