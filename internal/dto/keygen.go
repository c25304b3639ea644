package dto

// KeygenCurveInput carries one curve's public client share and the server's
// secret share, both hex. The client's own secret share never appears here.
type KeygenCurveInput struct {
	CurveType         string `json:"curve_type" binding:"required"`
	ClientPublicShare string `json:"client_public_share" binding:"required"`
	ServerSecretShare string `json:"server_secret_share" binding:"required"`
}

// KeygenRequest provisions one or two wallets in a single call.
type KeygenRequest struct {
	AuthID     string             `json:"auth_id" binding:"required"`
	AuthType   string             `json:"auth_type" binding:"required"`
	CustomerID string             `json:"customer_id"`
	Curves     []KeygenCurveInput `json:"curves" binding:"required"`
}

// KeygenWallet describes one provisioned wallet.
type KeygenWallet struct {
	WalletID  string `json:"wallet_id"`
	CurveType string `json:"curve_type"`
	PublicKey string `json:"public_key"`
}

// KeygenResponse is the outcome of a keygen call.
type KeygenResponse struct {
	SessionID string         `json:"session_id"`
	Wallets   []KeygenWallet `json:"wallets"`
}

// CheckUserRequest asks which curves a user already holds wallets for.
type CheckUserRequest struct {
	AuthID   string `json:"auth_id" binding:"required"`
	AuthType string `json:"auth_type" binding:"required"`
}
