package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"":                           "/",
		"/":                          "/",
		"/auth/login":                "/auth/login",
		"/users/42":                  "/users/:param",
		"/auth/refresh?x=1":          "/auth/refresh",
		"/k/0123456789abcdef0123":    "/k/:param",
		"/t/550e8400-e29b-41d4-a716": "/t/:param",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePath(in), in)
	}
}

func TestRegister_Idempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, err := Register(reg)
	require.NoError(t, err)
	require.NotNil(t, h)

	_, err = Register(reg, NewPoolCollector(nil))
	require.NoError(t, err)
}

func TestRecordAuth(t *testing.T) {
	before := testutil.ToFloat64(AuthOperations.WithLabelValues("login", "ok"))
	RecordAuth("login", "ok")
	assert.Equal(t, before+1, testutil.ToFloat64(AuthOperations.WithLabelValues("login", "ok")))
}
