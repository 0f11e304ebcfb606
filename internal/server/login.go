package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rickgao/socket-relay/internal/auth"
)

// Accounts decides which credentials may log in.
type Accounts interface {
	Check(creds auth.Credentials) bool
}

// AllowAll accepts any well-formed credentials. Development only.
type AllowAll struct{}

func (AllowAll) Check(auth.Credentials) bool { return true }

// StaticAccounts maps email to password.
type StaticAccounts map[string]string

func (a StaticAccounts) Check(creds auth.Credentials) bool {
	password, ok := a[creds.Email]
	return ok && password == creds.Password
}

// TokenIssuer issues socket tokens.
type TokenIssuer interface {
	Generate(user string) (string, error)
}

// LoginHandler serves POST /login. A body that is not JSON credentials is a
// 400; anything that parses gets a 200 with status Success or Invalid.
func LoginHandler(accounts Accounts, tokens TokenIssuer, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusNoContent)
			return
		case http.MethodPost:
		default:
			w.Header().Set("Allow", "POST, OPTIONS")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var creds auth.Credentials
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&creds); err != nil {
			http.Error(w, "invalid login body", http.StatusBadRequest)
			return
		}

		resp := auth.LoginResponse{Status: auth.StatusInvalid}
		if err := creds.Validate(); err != nil {
			logger.Debug("login rejected", "credentials", creds, "error", err)
		} else if !accounts.Check(creds) {
			logger.Info("login rejected", "credentials", creds)
		} else {
			token, err := tokens.Generate(creds.Email)
			if err != nil {
				logger.Error("failed to generate token", "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			resp = auth.LoginResponse{Status: auth.StatusSuccess, Token: token}
			logger.Info("login accepted", "credentials", creds)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})
}
