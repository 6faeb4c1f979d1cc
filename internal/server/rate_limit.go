package server

import (
	"sync"
	"time"

	"github.com/zeusync/replica/internal/core/observability/log"
)

// rateLimiter counts inbound frames per client in fixed windows.
type rateLimiter struct {
	logger    log.Log
	rateLimit int           // Messages per window
	window    time.Duration // Time window
	clients   sync.Map      // client ID -> *clientRateLimit
}

type clientRateLimit struct {
	count   int
	dropped int
	window  time.Time
	mu      sync.Mutex
}

// newRateLimiter returns nil when rateLimit is not positive; a nil limiter
// allows everything.
func newRateLimiter(rateLimit int, window time.Duration, logger log.Log) *rateLimiter {
	if rateLimit <= 0 {
		return nil
	}
	return &rateLimiter{
		logger:    logger,
		rateLimit: rateLimit,
		window:    window,
	}
}

// allow reports whether the client may send one more frame at now.
func (m *rateLimiter) allow(clientID string, now time.Time) bool {
	if m == nil {
		return true
	}
	clientLimit := m.getClientRateLimit(clientID, now)

	clientLimit.mu.Lock()
	defer clientLimit.mu.Unlock()

	// Reset window if expired
	if now.Sub(clientLimit.window) >= m.window {
		if clientLimit.dropped > 0 {
			m.logger.Warn("Rate limit exceeded",
				log.String("client_id", clientID),
				log.Int("dropped", clientLimit.dropped),
				log.Int("limit", m.rateLimit),
			)
		}
		clientLimit.count = 0
		clientLimit.dropped = 0
		clientLimit.window = now
	}

	if clientLimit.count >= m.rateLimit {
		clientLimit.dropped++
		return false
	}
	clientLimit.count++
	return true
}

// forget drops the state kept for a disconnected client.
func (m *rateLimiter) forget(clientID string) {
	if m != nil {
		m.clients.Delete(clientID)
	}
}

func (m *rateLimiter) getClientRateLimit(clientID string, now time.Time) *clientRateLimit {
	if limit, exists := m.clients.Load(clientID); exists {
		return limit.(*clientRateLimit)
	}
	limit, _ := m.clients.LoadOrStore(clientID, &clientRateLimit{window: now})
	return limit.(*clientRateLimit)
}
