// Package auth verifies inbound webhooks and authenticates as the GitHub App.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/melih/github-snap-builder/internal/core/domain"
	"github.com/melih/github-snap-builder/internal/core/ports"
)

// GitHub rejects app tokens that live longer than ten minutes. The issue time
// is backdated to absorb clock drift.
const (
	jwtLifetime = 9 * time.Minute
	jwtBackdate = 60 * time.Second
)

// defaultSignature stands in for a missing header, so an unsigned request
// fails the same way a badly signed one does.
const defaultSignature = "sha1="

var algorithms = map[string]func() hash.Hash{
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha512": sha512.New,
}

// Authenticator gates webhook deliveries and mints installation credentials.
type Authenticator struct {
	secret []byte
	appID  int64
	key    *rsa.PrivateKey
	api    ports.GitHubAPI
	now    func() time.Time
}

func NewAuthenticator(secret string, appID int64, key *rsa.PrivateKey, api ports.GitHubAPI) *Authenticator {
	return &Authenticator{
		secret: []byte(secret),
		appID:  appID,
		key:    key,
		api:    api,
		now:    time.Now,
	}
}

// VerifySignature checks header ("{algorithm}={hex digest}") against the
// HMAC of body. Only a byte-exact body with the right secret and algorithm
// passes.
func (a *Authenticator) VerifySignature(body []byte, header string) error {
	if header == "" {
		header = defaultSignature
	}
	algorithm, digest, ok := strings.Cut(header, "=")
	if !ok {
		return &domain.SignatureMismatchError{Reason: "malformed signature header"}
	}
	newHash, ok := algorithms[strings.ToLower(algorithm)]
	if !ok {
		return &domain.SignatureMismatchError{Reason: "unsupported algorithm " + algorithm}
	}
	theirs, err := hex.DecodeString(digest)
	if err != nil || len(theirs) == 0 {
		return &domain.SignatureMismatchError{Reason: "invalid digest"}
	}

	mac := hmac.New(newHash, a.secret)
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), theirs) {
		return &domain.SignatureMismatchError{Reason: "digest does not match"}
	}
	return nil
}

// AppJWT signs a short-lived RS256 token identifying the app.
func (a *Authenticator) AppJWT() (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-jwtBackdate)),
		ExpiresAt: jwt.NewNumericDate(now.Add(jwtLifetime)),
		Issuer:    strconv.FormatInt(a.appID, 10),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign app token: %w", err)
	}
	return signed, nil
}

// InstallationToken exchanges a fresh app JWT for an installation token.
func (a *Authenticator) InstallationToken(ctx context.Context, installationID int64) (string, error) {
	appJWT, err := a.AppJWT()
	if err != nil {
		return "", err
	}
	token, err := a.api.CreateInstallationToken(ctx, appJWT, installationID)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", fmt.Errorf("empty installation token for %d", installationID)
	}
	return token, nil
}

// Authenticate runs every step for one delivery and returns a status client
// scoped to the installation.
func (a *Authenticator) Authenticate(ctx context.Context, body []byte, header string, installationID int64) (ports.StatusAPI, error) {
	if err := a.VerifySignature(body, header); err != nil {
		return nil, err
	}
	return a.Installation(ctx, installationID)
}

// Installation returns a status client for an already verified delivery.
func (a *Authenticator) Installation(ctx context.Context, installationID int64) (ports.StatusAPI, error) {
	token, err := a.InstallationToken(ctx, installationID)
	if err != nil {
		return nil, err
	}
	return a.api.StatusClient(token), nil
}
