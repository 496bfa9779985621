package endpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mr-tron/base58"

	"github.com/universa-net/ledgernode/handshake"
	"github.com/universa-net/ledgernode/internal/logger"
)

// AdminRotation guards the administrative changeKeyFor operation
// (spec §4.7) behind a bearer-JWT check: the request must carry a
// token signed with BearerSecret, not yet expired, before the hook
// will clear a session's key.
type AdminRotation struct {
	Handshake    *handshake.Handshake
	BearerSecret string
	TokenTTL     time.Duration
	Logger       logger.Logger
}

// NewAdminRotation constructs an AdminRotation hook bound to hs.
func NewAdminRotation(hs *handshake.Handshake, bearerSecret string, tokenTTL time.Duration, log logger.Logger) *AdminRotation {
	return &AdminRotation{Handshake: hs, BearerSecret: bearerSecret, TokenTTL: tokenTTL, Logger: logger.WithComponent(log, "admin")}
}

type rotateRequest struct {
	ClientKey string `json:"client_key"` // base58-encoded raw public key bytes
}

// Handler returns the POST /admin/rotate http.Handler: verify the
// bearer token, decode the target client key, and invoke
// handshake.ChangeKeyFor.
func (a *AdminRotation) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := a.authorize(r); err != nil {
			a.logWarn("admin rotation rejected", logger.Error(err))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req rotateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "malformed request", http.StatusBadRequest)
			return
		}

		clientKey, err := base58.Decode(req.ClientKey)
		if err != nil {
			http.Error(w, "malformed client_key", http.StatusBadRequest)
			return
		}

		a.Handshake.ChangeKeyFor(clientKey)
		w.WriteHeader(http.StatusNoContent)
	})
}

// authorize checks the Authorization: Bearer <token> header against
// BearerSecret; the exp claim is enforced by the jwt library's own
// parser, so an expired token fails here with no extra bookkeeping.
func (a *AdminRotation) authorize(r *http.Request) error {
	header := r.Header.Get("Authorization")
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenString == "" {
		return errors.New("missing bearer token")
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != "HS256" {
			return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
		}
		return []byte(a.BearerSecret), nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("invalid token")
	}
	return nil
}

func (a *AdminRotation) logWarn(msg string, fields ...logger.Field) {
	if a.Logger != nil {
		a.Logger.Warn(msg, fields...)
	}
}
