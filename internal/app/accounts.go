package app

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/brianly1003/flocksync/internal/authn"
	"github.com/brianly1003/flocksync/internal/config"
	"github.com/rs/zerolog/log"
)

// newAccounts builds the account service. Without a configured secret a
// random one is generated, so tokens do not survive a restart.
func newAccounts(users authn.UserStore, cfg config.AuthConfig) (*authn.Service, error) {
	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		generated, err := randomSecret()
		if err != nil {
			return nil, err
		}
		secret = generated
		log.Warn().Msg("auth.jwt_secret not set, using a random secret; tokens will not survive a restart")
	}
	return authn.NewService(users, authn.Options{
		Secret:   secret,
		Issuer:   cfg.Issuer,
		TokenTTL: time.Duration(cfg.TokenTTLMinutes) * time.Minute,
		Cost:     cfg.BcryptCost,
	})
}

func randomSecret() ([]byte, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generate jwt secret: %w", err)
	}
	return []byte(hex.EncodeToString(b)), nil
}
