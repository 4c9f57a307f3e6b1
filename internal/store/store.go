// Package store keeps outstanding verification codes in memory. It is the
// single source of truth for whether a code is still valid. The store is
// intentionally transient: a restart invalidates in-flight codes and callers
// simply request a new one.
package store

import (
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/osonish/smsverify/internal/phone"
)

// ErrAlreadyPending is returned by Put while the cooldown window for a phone
// is still open. It is the spam-prevention gate checked before any gateway
// call is made.
var ErrAlreadyPending = errors.New("verification code already pending")

// Outcome is the result of validating a submitted code.
type Outcome int

const (
	OutcomeConfirmed Outcome = iota
	OutcomeMismatch
	OutcomeNotFound
	OutcomeExpired
	OutcomeAttemptsExceeded
)

// Record is one outstanding code. At most one live record exists per phone.
type Record struct {
	Phone    phone.Number
	Code     string
	IssuedAt time.Time
	Attempts int
}

const shardCount = 32

type shard struct {
	mu      sync.Mutex
	records map[phone.Number]*Record
}

// Store is a sharded in-memory code store. Shard mutexes are held only for
// the duration of a map read-modify-write, never across network calls, which
// keeps per-phone operations linearizable without global contention.
type Store struct {
	shards      [shardCount]shard
	ttl         time.Duration
	cooldown    time.Duration
	maxAttempts int

	stopOnce sync.Once
	stop     chan struct{}
}

// New creates a Store. ttl bounds code validity, cooldown is the minimum
// time between successive issuances for the same phone, and maxAttempts
// bounds wrong submissions per code.
func New(ttl, cooldown time.Duration, maxAttempts int) *Store {
	s := &Store{
		ttl:         ttl,
		cooldown:    cooldown,
		maxAttempts: maxAttempts,
		stop:        make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i].records = make(map[phone.Number]*Record)
	}
	return s
}

func (s *Store) shardFor(p phone.Number) *shard {
	h := fnv.New32a()
	h.Write([]byte(p))
	return &s.shards[h.Sum32()%shardCount]
}

// CheckCooldown reports whether a new Put for the phone would be admitted,
// without modifying anything. Used as a pre-send check so a request that is
// going to be refused never costs a gateway call.
func (s *Store) CheckCooldown(p phone.Number) error {
	sh := s.shardFor(p)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[p]
	if !ok {
		return nil
	}
	age := time.Since(rec.IssuedAt)
	if age < s.cooldown && age <= s.ttl {
		return ErrAlreadyPending
	}
	return nil
}

// Put stores a fresh code for the phone. It refuses with ErrAlreadyPending
// while a non-expired record younger than the cooldown exists; after the
// cooldown a new code replaces the old one.
func (s *Store) Put(p phone.Number, code string) error {
	sh := s.shardFor(p)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if rec, ok := sh.records[p]; ok {
		age := time.Since(rec.IssuedAt)
		if age < s.cooldown && age <= s.ttl {
			return ErrAlreadyPending
		}
	}

	sh.records[p] = &Record{
		Phone:    p,
		Code:     code,
		IssuedAt: time.Now(),
	}
	return nil
}

// Validate checks a submitted code. Expired and attempts-exhausted records
// are deleted on discovery (lazy cleanup), as is a confirmed record. On
// mismatch the attempt counter is incremented and the remaining count
// returned; remaining is zero for every other outcome.
func (s *Store) Validate(p phone.Number, submitted string) (Outcome, int) {
	sh := s.shardFor(p)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[p]
	if !ok {
		return OutcomeNotFound, 0
	}
	if time.Since(rec.IssuedAt) > s.ttl {
		delete(sh.records, p)
		return OutcomeExpired, 0
	}
	if rec.Attempts >= s.maxAttempts {
		delete(sh.records, p)
		return OutcomeAttemptsExceeded, 0
	}

	rec.Attempts++
	if rec.Code == submitted {
		delete(sh.records, p)
		return OutcomeConfirmed, 0
	}
	return OutcomeMismatch, s.maxAttempts - rec.Attempts
}

// Len returns the number of outstanding records across all shards.
func (s *Store) Len() int {
	total := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		total += len(sh.records)
		sh.mu.Unlock()
	}
	return total
}

// StartSweep runs a periodic sweep that removes expired records. Lazy
// deletion in Validate already guarantees correctness; the sweep only bounds
// memory held by codes that are never confirmed. Stop terminates it.
func (s *Store) StartSweep(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop terminates the background sweep, if one was started.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Store) sweep() {
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for p, rec := range sh.records {
			if time.Since(rec.IssuedAt) > s.ttl {
				delete(sh.records, p)
			}
		}
		sh.mu.Unlock()
	}
}
