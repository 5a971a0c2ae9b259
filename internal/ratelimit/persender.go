package ratelimit

import (
	"sync"
	"time"
)

// idleEvictAfter is how long a sender's bucket may sit unused before
// the cleanup pass drops it.
const idleEvictAfter = 30 * time.Minute

// PerSenderLimiter maintains an independent token bucket per sender id.
// Buckets for idle senders are evicted periodically to bound memory.
type PerSenderLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*Limiter
	maxTokens  float64
	refillRate float64

	// OnDrop, if set, is called with the sender id whenever an event
	// is rejected.
	OnDrop func(sender string)

	stop chan struct{}
	done chan struct{}
}

// NewPerSender creates a per-sender limiter where each sender gets a
// bucket with the given burst capacity and refill rate in tokens per
// second. The caller must call Close to stop the cleanup goroutine.
func NewPerSender(maxTokens, refillRate float64) *PerSenderLimiter {
	p := &PerSenderLimiter{
		limiters:   make(map[string]*Limiter),
		maxTokens:  maxTokens,
		refillRate: refillRate,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go p.cleanupLoop()
	return p
}

// Allow reports whether an event from the given sender is allowed,
// consuming a token from that sender's bucket if so.
func (p *PerSenderLimiter) Allow(sender string) bool {
	p.mu.Lock()
	l, ok := p.limiters[sender]
	if !ok {
		l = New(p.maxTokens, p.refillRate)
		p.limiters[sender] = l
	}
	p.mu.Unlock()

	if l.Allow() {
		return true
	}
	if p.OnDrop != nil {
		p.OnDrop(sender)
	}
	return false
}

// Len returns the number of tracked senders.
func (p *PerSenderLimiter) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.limiters)
}

// Close stops the cleanup goroutine and waits for it to exit.
func (p *PerSenderLimiter) Close() {
	close(p.stop)
	<-p.done
}

func (p *PerSenderLimiter) cleanupLoop() {
	defer close(p.done)

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.evictIdle(time.Now())
		case <-p.stop:
			return
		}
	}
}

func (p *PerSenderLimiter) evictIdle(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for sender, l := range p.limiters {
		if l.idleSince(now) > idleEvictAfter {
			delete(p.limiters, sender)
		}
	}
}
