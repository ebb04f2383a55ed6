package model

type (
	// ConversationIndexEntry records who sent a minted message token to whom.
	ConversationIndexEntry struct {
		TokenID   string `json:"tokenId,omitempty" bson:"token_id"`
		Sender    string `json:"sender" bson:"sender"`
		Recipient string `json:"recipient" bson:"recipient"`
	}

	// EncryptedPayload is the blob stored under a content address.
	EncryptedPayload struct {
		IV         string `json:"iv"`
		Ciphertext string `json:"ciphertext"`
	}

	// EncryptResult is what the sender commits to the ledger.
	EncryptResult struct {
		CID     string   `json:"cid"`
		EncKeys []string `json:"encKeys"`
	}

	// IndexEvent is pushed to websocket subscribers after a batch is indexed.
	IndexEvent struct {
		TokenIDs  []string `json:"tokenIds"`
		Sender    string   `json:"sender"`
		Recipient string   `json:"recipient"`
	}

	// Message is a reconstructed conversation item on the reading side.
	Message struct {
		TokenID   string
		Sender    string
		Recipient string
		CID       string
		EncKey    string
		Plaintext string
		Err       error
	}
)
