package config

type OIDCConfig interface {
	GetOIDCIssuer() string
	GetOIDCClientID() string
	GetOIDCClientSecret() string
	GetOIDCEnabled() bool
}

// OIDC points the dashboard at the firm's hosted identity provider
type OIDC struct{}

var _ OIDCConfig = OIDC{}

func (OIDC) GetOIDCIssuer() string {
	return GetEnv("OIDC_ISSUER", "")
}

func (OIDC) GetOIDCClientID() string {
	return GetEnv("OIDC_CLIENT_ID", "")
}

func (OIDC) GetOIDCClientSecret() string {
	return GetEnv("OIDC_CLIENT_SECRET", "")
}

// GetOIDCEnabled is true once both an issuer and a client are configured
func (o OIDC) GetOIDCEnabled() bool {
	return o.GetOIDCIssuer() != "" && o.GetOIDCClientID() != ""
}
