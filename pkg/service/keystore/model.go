package keystore

type GenerateIssuerKeyRequest struct {
	Controller string
}

type GetKeyRequest struct {
	ID string
}

// GetKeyResponse carries private key material and must never leave the service boundary.
type GetKeyResponse struct {
	ID             string
	Controller     string
	KeyType        string
	PublicKey      []byte
	PrivateKey     []byte
	FallbackSecret []byte
	CreatedAt      string
}

type GetKeyDetailsRequest struct {
	ID string
}

type GetKeyDetailsResponse struct {
	ID              string `json:"id"`
	Controller      string `json:"controller"`
	KeyType         string `json:"type"`
	PublicKeyBase58 string `json:"publicKeyBase58"`
	CreatedAt       string `json:"createdAt"`
}
