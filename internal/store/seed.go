package store

import (
	"context"
	"errors"

	"github.com/dropDatabas3/authgate/internal/domain/repository"
	"github.com/dropDatabas3/authgate/internal/security/password"
)

// SeedUser es un usuario de desarrollo con password en claro.
type SeedUser struct {
	Username         string
	Password         string
	Roles            []string
	TwoFactorEnabled bool
	TwoFactorSecret  string
}

// DefaultSeed son los usuarios de desarrollo que levanta el driver memory.
var DefaultSeed = []SeedUser{
	{Username: "admin", Password: "admin123", Roles: []string{"admin"}},
	{Username: "user", Password: "user123", Roles: []string{"user"}, TwoFactorEnabled: true, TwoFactorSecret: "JBSWY3DPEHPK3PXP"},
	{Username: "test", Password: "test123", Roles: []string{"user"}},
}

// Seed crea los usuarios que falten. Los existentes no se tocan.
// Retorna cuántos se crearon.
func Seed(ctx context.Context, users repository.UserRepository, params password.Params, seed []SeedUser) (int, error) {
	var created int
	for _, su := range seed {
		if _, err := users.GetByUsername(ctx, su.Username); err == nil {
			continue
		} else if !errors.Is(err, repository.ErrNotFound) {
			return created, err
		}
		hash, err := password.Hash(params, su.Password)
		if err != nil {
			return created, err
		}
		in := repository.CreateUserInput{
			Username:         su.Username,
			PasswordHash:     hash,
			Roles:            su.Roles,
			TwoFactorEnabled: su.TwoFactorEnabled,
		}
		if su.TwoFactorSecret != "" {
			sec := su.TwoFactorSecret
			in.TwoFactorSecret = &sec
		}
		if _, err := users.Create(ctx, in); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				continue
			}
			return created, err
		}
		created++
	}
	return created, nil
}
