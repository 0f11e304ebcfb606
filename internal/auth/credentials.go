package auth

import (
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Credentials is the email/password pair sent to the login endpoint.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"max=1024"`
}

// Validate checks that the credentials are well formed. An empty password
// is allowed; development servers accept any password.
func (c Credentials) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid credentials: %w", err)
	}
	return nil
}

// LogValue keeps the password out of logs.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("email", c.Email),
		slog.Bool("password_set", c.Password != ""),
	)
}
