package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// ValidateAPIKey reports whether providedKey matches configKey. An empty
// configured key matches nothing, so a server misconfigured without a key
// refuses everything rather than accepting everything.
func ValidateAPIKey(providedKey, configKey string) bool {
	if configKey == "" || providedKey == "" {
		return false
	}
	if len(providedKey) != len(configKey) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(providedKey), []byte(configKey)) == 1
}

// ExtractAPIKey pulls the key out of an "Authorization: Bearer <key>" header.
func ExtractAPIKey(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("missing Authorization header")
	}

	key, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", errors.New("invalid Authorization header format")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("missing API key")
	}
	return key, nil
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, err := ExtractAPIKey(r)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		if !ValidateAPIKey(key, s.cfg.APIKey) {
			s.writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
