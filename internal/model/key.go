package model

type (
	// PublicKeyRecord is one directory entry. Address is always lowercase hex.
	PublicKeyRecord struct {
		Address   string `json:"address" bson:"address"`
		PublicKey string `json:"pubKey" bson:"pub_key"`
	}

	// WrappedKeyEnvelope is the JSON object produced by the
	// x25519-xsalsa20-poly1305 scheme. All byte fields are base64.
	WrappedKeyEnvelope struct {
		Version        string `json:"version"`
		Nonce          string `json:"nonce"`
		EphemPublicKey string `json:"ephemPublicKey"`
		Ciphertext     string `json:"ciphertext"`
	}
)
