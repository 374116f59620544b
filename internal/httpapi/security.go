package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"kasirkredit/backend/internal/domain"
)

const csrfWindow = time.Hour

// csrfToken binds a token to one session and one hour window, so a token
// leaked from one collector cannot authorize another collector's payments.
func (a *API) csrfToken(actor domain.Actor, window int64) string {
	mac := hmac.New(sha256.New, a.csrfSecret)
	mac.Write([]byte(actor.StoreID))
	mac.Write([]byte{0})
	mac.Write([]byte(actor.Username))
	mac.Write([]byte{0})
	mac.Write([]byte(strconv.FormatInt(window, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *API) issueCSRFToken(actor domain.Actor) string {
	return a.csrfToken(actor, time.Now().UTC().Truncate(csrfWindow).Unix())
}

// validCSRFToken accepts tokens from the current and the previous window.
func (a *API) validCSRFToken(actor domain.Actor, token string) bool {
	if token == "" {
		return false
	}
	current := time.Now().UTC().Truncate(csrfWindow).Unix()
	previous := current - int64(csrfWindow/time.Second)
	return hmac.Equal([]byte(token), []byte(a.csrfToken(actor, current))) ||
		hmac.Equal([]byte(token), []byte(a.csrfToken(actor, previous)))
}

// requireCSRF guards ledger writes. It runs after requireAuth.
func (a *API) requireCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		if !a.validCSRFToken(actorFrom(r), strings.TrimSpace(r.Header.Get("X-CSRF-Token"))) {
			writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// attemptLimiter counts attempts per key in a sliding window.
type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	now     func() time.Time
	entries map[string][]time.Time
}

func newAttemptLimiter(limit int, window time.Duration) *attemptLimiter {
	return &attemptLimiter{
		max:     max(1, limit),
		window:  window,
		now:     time.Now,
		entries: make(map[string][]time.Time),
	}
}

// Allow records an attempt for key. When the window is full it returns false
// and how long until the oldest attempt expires.
func (l *attemptLimiter) Allow(key string) (bool, time.Duration) {
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	var recent []time.Time
	for _, at := range l.entries[key] {
		if at.After(cutoff) {
			recent = append(recent, at)
		}
	}
	if len(recent) >= l.max {
		l.entries[key] = recent
		return false, recent[0].Add(l.window).Sub(now)
	}
	l.entries[key] = append(recent, now)
	return true, 0
}

func writeTooManyAttempts(w http.ResponseWriter, wait time.Duration, msg string) {
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
	writeError(w, http.StatusTooManyRequests, errors.New(msg))
}

// voidAttemptKey limits manager PIN guesses per account, whatever address
// they come from.
func voidAttemptKey(actor domain.Actor) string {
	return "void:" + actor.StoreID + "/" + actor.Username
}

func clientKey(r *http.Request) string {
	remote := strings.TrimSpace(r.RemoteAddr)
	if addrPort, err := netip.ParseAddrPort(remote); err == nil {
		return addrPort.Addr().String()
	}
	if addr, err := netip.ParseAddr(remote); err == nil {
		return addr.String()
	}
	if remote == "" {
		return "unknown"
	}
	return remote
}
