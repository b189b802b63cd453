package httpapi

import (
	"encoding/hex"
	"errors"
	"strings"

	"gopkg.in/macaroon.v2"
)

// operation is the single first-party caveat condition this adapter checks:
// "operation = read" lets a caller fetch and subscribe to invoices,
// "operation = admin" additionally lets it create and remove them.
const operationCaveatPrefix = "operation = "

// Operation scopes, least to most privileged.
const (
	OpRead  = "read"
	OpAdmin = "admin"
)

// ErrUnauthorized is returned by Authorize when the bearer token is
// missing, malformed, or doesn't carry the required operation scope.
var ErrUnauthorized = errors.New("httpapi: unauthorized")

// MacaroonAuth mints and verifies bearer-token macaroons scoped to a single
// operation caveat, the same first-party-caveat mechanism dcrlnd's RPC
// surface uses to authorize lncli callers instead of a plain API key.
type MacaroonAuth struct {
	rootKey []byte
}

// NewMacaroonAuth builds a MacaroonAuth backed by rootKey, which must be
// kept secret by the operator (normally generated once and stored
// alongside the daemon's config).
func NewMacaroonAuth(rootKey []byte) *MacaroonAuth {
	return &MacaroonAuth{rootKey: rootKey}
}

// Mint produces a new macaroon scoped to operation ("read" or "admin"),
// hex-encoded for use as a bearer token. cmd/xmrgatewayctl's "bakemacaroon"
// command calls this once per operator-facing credential.
func (a *MacaroonAuth) Mint(operation string) (string, error) {
	m, err := macaroon.New(a.rootKey, []byte(operation), "xmrgatewayd", macaroon.LatestVersion)
	if err != nil {
		return "", err
	}
	if err := m.AddFirstPartyCaveat([]byte(operationCaveatPrefix + operation)); err != nil {
		return "", err
	}
	encoded, err := m.MarshalBinary()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(encoded), nil
}

// Authorize decodes a hex-encoded bearer token and verifies that it carries
// at least the required operation scope. Admin tokens satisfy a "read"
// requirement; read tokens never satisfy an "admin" requirement.
func (a *MacaroonAuth) Authorize(token string, required string) error {
	raw, err := hex.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return ErrUnauthorized
	}

	var m macaroon.Macaroon
	if err := m.UnmarshalBinary(raw); err != nil {
		return ErrUnauthorized
	}

	granted := ""
	check := func(caveat string) error {
		if !strings.HasPrefix(caveat, operationCaveatPrefix) {
			return errors.New("httpapi: unrecognized caveat")
		}
		granted = strings.TrimPrefix(caveat, operationCaveatPrefix)
		return nil
	}

	if err := m.Verify(a.rootKey, check, nil); err != nil {
		return ErrUnauthorized
	}

	if granted == OpAdmin {
		return nil
	}
	if granted == required {
		return nil
	}
	return ErrUnauthorized
}
