/*
Package auth provides identity-token helpers for Vault JWT authentication.

The access token a notebook session carries is an OIDC JWT issued by the
identity provider. Vault verifies it cryptographically during login; this
package only inspects its claims to schedule refreshes.

# Expiry

	expiry := auth.TokenExpiry(accessToken, time.Now())

The expiry is the exp claim when present, otherwise iat plus one hour,
otherwise one hour from now. Tokens that cannot be decoded fall back to the
last rule.

# Token files

	token, err := auth.ReadTokenFile("/vault/secrets/vault-token")
*/
package auth
