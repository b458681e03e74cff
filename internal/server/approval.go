package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/virtarena/arena-server-go/internal/config"
)

// ErrApprovalRejected is returned when a join grant fails verification.
var ErrApprovalRejected = errors.New("connection approval rejected")

// Approver is the connection-approval hook: it runs once per incoming
// connection, before any session state exists.
type Approver interface {
	// Approve validates the presented grant and returns the player name
	// the grant was issued for.
	Approve(token string) (string, error)
}

// joinGrantClaims is the expected shape of a signed join grant.
type joinGrantClaims struct {
	jwt.RegisteredClaims
	PlayerName string `json:"player_name"`
}

// grantApprover verifies HMAC-signed join grants issued by the
// matchmaking service.
type grantApprover struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

// openApprover accepts every connection; used when no grant secret is
// configured (development).
type openApprover struct{}

func (openApprover) Approve(token string) (string, error) {
	name := strings.TrimSpace(token)
	if name == "" {
		name = "player"
	}
	return name, nil
}

// NewApprover builds the approval hook from configuration.
func NewApprover(cfg config.AuthConfig) Approver {
	if cfg.JoinGrantSecret == "" {
		return openApprover{}
	}
	return &grantApprover{
		secret:   []byte(cfg.JoinGrantSecret),
		issuer:   cfg.JoinGrantIssuer,
		audience: cfg.JoinGrantAudience,
		now:      time.Now,
	}
}

func (a *grantApprover) Approve(token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: missing join grant", ErrApprovalRejected)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}

	var claims joinGrantClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrApprovalRejected, err)
	}

	name := strings.TrimSpace(claims.PlayerName)
	if name == "" {
		return "", fmt.Errorf("%w: grant carries no player name", ErrApprovalRejected)
	}
	return name, nil
}
