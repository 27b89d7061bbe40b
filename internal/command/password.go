package command

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

// PasswordGate guards the password-gated commands named in spec.md §4.8
// (quit, dbclean, doublets, dbinfo-fix). Grounded on the teacher's
// internal/auth.Auth: the plaintext password is bcrypt-hashed once and
// never retained, and comparisons go through
// bcrypt.CompareHashAndPassword (constant-time w.r.t. the secret) — this
// resolves spec.md §9's Open Question on password comparison. The
// teacher's per-IP sliding-window rate limiter is re-grounded here on
// golang.org/x/time/rate's token bucket, generalizing the hand-rolled
// timestamp-pruning approach to the library the rest of the pack favors
// for this concern.
type PasswordGate struct {
	hash []byte

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// failedAttemptBurst and refillPerMinute bound how many password
// attempts (right or wrong) a single client IP may make before every
// further attempt is rejected outright without even touching bcrypt.
const (
	failedAttemptBurst = 5
	refillPerMinute    = 1.0 / 15.0 // one more attempt every 15s
)

// NewPasswordGate hashes password once at config load time.
func NewPasswordGate(password string) (*PasswordGate, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &PasswordGate{
		hash:     hash,
		limiters: make(map[string]*rate.Limiter),
	}, nil
}

func (g *PasswordGate) limiterFor(ip string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.limiters[ip]
	if !ok {
		l = rate.NewLimiter(rate.Limit(refillPerMinute), failedAttemptBurst)
		g.limiters[ip] = l
	}
	return l
}

// Check reports whether candidate matches the configured password. The
// caller's IP is rate-limited against repeated wrong guesses
// independently of whether this call succeeds or fails.
func (g *PasswordGate) Check(ip, candidate string) bool {
	limiter := g.limiterFor(ip)
	if !limiter.Allow() {
		return false
	}
	return bcrypt.CompareHashAndPassword(g.hash, []byte(candidate)) == nil
}
