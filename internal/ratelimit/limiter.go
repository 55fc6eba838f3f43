package ratelimit

import (
	"hash/fnv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const shardCount = 32

// Config controls admission. Quota submissions are admitted per Window per
// hospital; idle hospital entries are dropped after IdleTTL to bound memory.
type Config struct {
	Quota   int
	Window  time.Duration
	IdleTTL time.Duration
}

func DefaultConfig() Config {
	return Config{Quota: 10, Window: time.Minute, IdleTTL: 15 * time.Minute}
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// HospitalLimiter admits or denies submissions per hospital. State is sharded
// by hospital id so concurrent bursts from unrelated hospitals do not contend
// on one lock.
type HospitalLimiter struct {
	cfg    Config
	shards [shardCount]*shard
}

func NewHospitalLimiter(cfg Config) *HospitalLimiter {
	if cfg.Quota <= 0 {
		cfg.Quota = DefaultConfig().Quota
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultConfig().IdleTTL
	}

	l := &HospitalLimiter{cfg: cfg}
	for i := range l.shards {
		l.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return l
}

func (l *HospitalLimiter) shardFor(hospitalId string) *shard {
	h := fnv.New32a()
	h.Write([]byte(hospitalId))
	return l.shards[h.Sum32()%shardCount]
}

// Allow reports whether the hospital may submit at time now. Counting is
// atomic under the shard lock; a denied submission must trigger no further
// pipeline work.
func (l *HospitalLimiter) Allow(hospitalId string, now time.Time) bool {
	s := l.shardFor(hospitalId)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[hospitalId]
	if !ok {
		// Burst equals the quota so a hospital can use its full window
		// allowance immediately; refill spreads over the window.
		e = &entry{limiter: rate.NewLimiter(rate.Every(l.cfg.Window/time.Duration(l.cfg.Quota)), l.cfg.Quota)}
		s.entries[hospitalId] = e
	}
	e.lastSeen = now

	return e.limiter.AllowN(now, 1)
}

// EvictIdle drops hospital entries not seen since now-IdleTTL and returns how
// many were removed.
func (l *HospitalLimiter) EvictIdle(now time.Time) int {
	cutoff := now.Add(-l.cfg.IdleTTL)
	evicted := 0
	for _, s := range l.shards {
		s.mu.Lock()
		for id, e := range s.entries {
			if e.lastSeen.Before(cutoff) {
				delete(s.entries, id)
				evicted++
			}
		}
		s.mu.Unlock()
	}
	return evicted
}

// StartEviction runs EvictIdle on a timer until stop is closed.
func (l *HospitalLimiter) StartEviction(stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(l.cfg.IdleTTL)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.EvictIdle(time.Now())
			case <-stop:
				return
			}
		}
	}()
}
