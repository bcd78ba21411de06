package store

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/authgate/internal/domain/repository"
	"github.com/dropDatabas3/authgate/internal/security/secretbox"
)

// Sealed envuelve un Store para que el secreto TOTP viaje cifrado a la base.
// Los valores heredados en claro (seed, datos previos) se leen tal cual.
func Sealed(s Store, box *secretbox.Box) Store {
	return &sealedStore{Store: s, users: &sealedUsers{next: s.Users(), box: box}}
}

type sealedStore struct {
	Store
	users *sealedUsers
}

func (s *sealedStore) Users() repository.UserRepository { return s.users }

type sealedUsers struct {
	next repository.UserRepository
	box  *secretbox.Box
}

var _ repository.UserRepository = (*sealedUsers)(nil)

func (r *sealedUsers) open(u *repository.User, err error) (*repository.User, error) {
	if err != nil || u == nil || !u.HasSecret() || !secretbox.IsSealed(*u.TwoFactorSecret) {
		return u, err
	}
	plain, err := r.box.Decrypt(*u.TwoFactorSecret)
	if err != nil {
		return nil, fmt.Errorf("decrypt two factor secret for user %d: %w", u.ID, err)
	}
	u.TwoFactorSecret = &plain
	return u, nil
}

func (r *sealedUsers) GetByUsername(ctx context.Context, username string) (*repository.User, error) {
	return r.open(r.next.GetByUsername(ctx, username))
}

func (r *sealedUsers) GetByID(ctx context.Context, id int64) (*repository.User, error) {
	return r.open(r.next.GetByID(ctx, id))
}

func (r *sealedUsers) SetTwoFactorSecret(ctx context.Context, id int64, secret string) error {
	enc, err := r.box.Encrypt(secret)
	if err != nil {
		return err
	}
	return r.next.SetTwoFactorSecret(ctx, id, enc)
}

func (r *sealedUsers) EnableTwoFactor(ctx context.Context, id int64) error {
	return r.next.EnableTwoFactor(ctx, id)
}

func (r *sealedUsers) Create(ctx context.Context, in repository.CreateUserInput) (*repository.User, error) {
	if in.TwoFactorSecret != nil && *in.TwoFactorSecret != "" {
		enc, err := r.box.Encrypt(*in.TwoFactorSecret)
		if err != nil {
			return nil, err
		}
		in.TwoFactorSecret = &enc
	}
	return r.open(r.next.Create(ctx, in))
}
