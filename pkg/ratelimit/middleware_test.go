package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_LimitSend(t *testing.T) {
	m := NewMiddleware(&Config{
		SendCapacity:    2,
		SendPerMinute:   2,
		VerifyCapacity:  10,
		VerifyPerMinute: 10,
		BucketTTL:       time.Minute,
	})
	handler := m.LimitSend(okHandler())

	do := func() int {
		req := httptest.NewRequest(http.MethodPost, "/mfa/send-code", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do())
	assert.Equal(t, http.StatusOK, do())

	// Burst exhausted
	assert.Equal(t, http.StatusTooManyRequests, do())
}

func TestMiddleware_SeparateKeysPerIP(t *testing.T) {
	m := NewMiddleware(&Config{
		SendCapacity:    1,
		SendPerMinute:   1,
		VerifyCapacity:  1,
		VerifyPerMinute: 1,
		BucketTTL:       time.Minute,
	})
	handler := m.LimitSend(okHandler())

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/mfa/send-code", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1:5000"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:5001"))
	assert.Equal(t, http.StatusOK, do("10.0.0.2:5000"))
}

func TestMiddleware_ResetClearsThrottle(t *testing.T) {
	m := NewMiddleware(&Config{
		SendCapacity:    1,
		SendPerMinute:   1,
		VerifyCapacity:  1,
		VerifyPerMinute: 1,
		BucketTTL:       time.Minute,
	})
	handler := m.LimitVerify(okHandler())

	do := func() int {
		req := httptest.NewRequest(http.MethodPost, "/mfa/verify-code", nil)
		req.RemoteAddr = "10.0.0.9:5000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do())
	assert.Equal(t, http.StatusTooManyRequests, do())

	m.Reset("ip:10.0.0.9")

	assert.Equal(t, http.StatusOK, do())
}
