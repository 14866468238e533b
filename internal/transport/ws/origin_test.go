package ws

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestOriginPolicy(t *testing.T) {
	p := newOriginPolicy([]string{"http://localhost:3000", " HTTPS://Office.Example ", "not a url", ""}, zaptest.NewLogger(t))

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"https://office.example", true},
		{"https://OFFICE.example", true},
		{"http://localhost:3001", false},
		{"http://evil.example", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, p.check(r))
		})
	}
}

func TestOriginPolicyWildcard(t *testing.T) {
	p := newOriginPolicy([]string{"*"}, zaptest.NewLogger(t))
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "http://anywhere.example")
	assert.True(t, p.check(r))
}

func TestCloseReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "none"},
		{"server close", ErrConnClosed, "closed by server"},
		{"shutdown", context.Canceled, "server shutdown"},
		{"read limit", websocket.ErrReadLimit, "message too large"},
		{"client close", &websocket.CloseError{Code: websocket.CloseNormalClosure}, "client closed"},
		{"going away", &websocket.CloseError{Code: websocket.CloseGoingAway}, "client closed"},
		{"abnormal", &websocket.CloseError{Code: websocket.CloseAbnormalClosure}, "connection dropped"},
		{"eof", io.ErrUnexpectedEOF, "connection dropped"},
		{"other", errors.New("boom"), "read error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, closeReason(tt.err))
		})
	}
}
