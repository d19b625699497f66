package authflowrepo

import "time"

// AuthFlowState is what the OIDC callback needs from the request that started the flow
type AuthFlowState struct {
	CodeVerifier string
	Nonce        string
	ReturnURL    string
	CreatedAt    time.Time
}

type Repo interface {
	Upsert(state string, authState *AuthFlowState) error
	// Take returns and removes the state so a callback cannot be replayed
	Take(state string) (*AuthFlowState, error)
	// DeleteBefore drops abandoned flows started before cutoff
	DeleteBefore(cutoff time.Time) int
}
