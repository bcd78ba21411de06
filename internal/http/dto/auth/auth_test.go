package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dropDatabas3/authgate/internal/domain/autherr"
)

type validator interface{ Validate() error }

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		in   validator
		ok   bool
	}{
		{"login ok", LoginRequest{Username: "admin", Password: "admin123"}, true},
		{"login empty username", LoginRequest{Password: "x"}, false},
		{"login empty password", LoginRequest{Username: "admin"}, false},
		{"login username 255", LoginRequest{Username: strings.Repeat("a", 255), Password: "x"}, true},
		{"login username 256", LoginRequest{Username: strings.Repeat("a", 256), Password: "x"}, false},
		{"verify ok", VerifyTwoFactorRequest{TwoFactorToken: "t", TOTPCode: "012345"}, true},
		{"verify short code", VerifyTwoFactorRequest{TwoFactorToken: "t", TOTPCode: "12345"}, false},
		{"verify letters", VerifyTwoFactorRequest{TwoFactorToken: "t", TOTPCode: "12a456"}, false},
		{"verify no token", VerifyTwoFactorRequest{TOTPCode: "123456"}, false},
		{"setup without code", SetupTwoFactorRequest{}, true},
		{"setup with code", SetupTwoFactorRequest{TOTPCode: "123456"}, true},
		{"setup bad code", SetupTwoFactorRequest{TOTPCode: "1234567"}, false},
		{"refresh ok", RefreshRequest{RefreshToken: "r"}, true},
		{"refresh empty", RefreshRequest{}, false},
		{"logout empty", LogoutRequest{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.in.Validate()
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, autherr.BadInput, autherr.KindOf(err))
		})
	}
}
