package authenticator

import "github.com/go-webauthn/webauthn/webauthn"

// Holder adapts a wallet address and its stored credentials to the
// webauthn.User interface. The wallet address doubles as the user handle;
// no other account data exists in this system.
type Holder struct {
	wallet      string
	credentials []webauthn.Credential
}

// NewHolder creates a credential holder for the given wallet address
func NewHolder(walletAddress string, credentials []webauthn.Credential) *Holder {
	return &Holder{
		wallet:      walletAddress,
		credentials: credentials,
	}
}

func (h *Holder) WebAuthnID() []byte {
	return []byte(h.wallet)
}

func (h *Holder) WebAuthnName() string {
	return h.wallet
}

func (h *Holder) WebAuthnDisplayName() string {
	return h.wallet
}

func (h *Holder) WebAuthnIcon() string {
	return ""
}

func (h *Holder) WebAuthnCredentials() []webauthn.Credential {
	return h.credentials
}
