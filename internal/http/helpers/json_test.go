package helpers

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type codeReq struct {
	TOTPCode string `json:"totpCode"`
}

func chunked(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/auth/2fa/setup", io.NopCloser(strings.NewReader(body)))
	req.ContentLength = -1
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestReadOptionalJSON(t *testing.T) {
	cases := []struct {
		name string
		req  *http.Request
		ok   bool
		want string
	}{
		{"no body", httptest.NewRequest(http.MethodPost, "/", nil), true, ""},
		{"empty chunked", chunked(""), true, ""},
		{"whitespace", chunked("  \n"), true, ""},
		{"with code", chunked(`{"totpCode":"123456"}`), true, "123456"},
		{"broken", chunked(`{"totpCode":`), false, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var v codeReq
			rr := httptest.NewRecorder()
			assert.Equal(t, tc.ok, ReadOptionalJSON(rr, tc.req, &v))
			assert.Equal(t, tc.want, v.TOTPCode)
			if !tc.ok {
				assert.Equal(t, http.StatusBadRequest, rr.Code)
			}
		})
	}
}

func TestReadJSON_EmptyBodyIsRejected(t *testing.T) {
	var v codeReq
	rr := httptest.NewRecorder()
	assert.False(t, ReadJSON(rr, chunked(""), &v))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "empty body")
}

func TestReadJSON_RejectsOtherContentTypes(t *testing.T) {
	req := chunked(`{"totpCode":"123456"}`)
	req.Header.Set("Content-Type", "text/plain")
	rr := httptest.NewRecorder()
	assert.False(t, ReadJSON(rr, req, &codeReq{}))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
