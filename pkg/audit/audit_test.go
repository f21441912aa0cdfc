package audit

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClientIP_PrefersXForwardedFor(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	req.RemoteAddr = "10.0.0.1:4000"
	assert.Equal(t, "203.0.113.5", ClientIP(req))
}

func TestClientIP_FallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "198.51.100.9:1234"
	assert.Equal(t, "198.51.100.9", ClientIP(req))
}

func TestStrPtr_EmptyStringIsNil(t *testing.T) {
	assert.Nil(t, strPtr(""))
	assert.NotNil(t, strPtr("x"))
}

func TestWriter_LogDropsWhenBufferFull(t *testing.T) {
	w := &Writer{entries: make(chan Entry, 1), logger: discardLogger()}
	w.Log(Entry{Action: "user.created"})
	// Buffer is now full; this second Log must not block.
	done := make(chan struct{})
	go func() {
		w.Log(Entry{Action: "user.updated"})
		close(done)
	}()
	<-done
}
