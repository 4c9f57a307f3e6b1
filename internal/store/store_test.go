package store_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osonish/smsverify/internal/phone"
	"github.com/osonish/smsverify/internal/store"
)

const testPhone = phone.Number("998901234567")

func TestPutAndConfirm(t *testing.T) {
	t.Parallel()
	s := store.New(10*time.Minute, time.Minute, 3)

	require.NoError(t, s.Put(testPhone, "123456"))

	outcome, remaining := s.Validate(testPhone, "123456")
	assert.Equal(t, store.OutcomeConfirmed, outcome)
	assert.Zero(t, remaining)

	// Confirmation consumes the record.
	outcome, _ = s.Validate(testPhone, "123456")
	assert.Equal(t, store.OutcomeNotFound, outcome)
}

func TestPutCooldown(t *testing.T) {
	t.Parallel()
	s := store.New(10*time.Minute, time.Minute, 3)

	require.NoError(t, s.Put(testPhone, "111111"))
	assert.ErrorIs(t, s.Put(testPhone, "222222"), store.ErrAlreadyPending)
	assert.ErrorIs(t, s.CheckCooldown(testPhone), store.ErrAlreadyPending)

	// The first code stays valid; the refused Put must not overwrite it.
	outcome, _ := s.Validate(testPhone, "111111")
	assert.Equal(t, store.OutcomeConfirmed, outcome)
}

func TestPutAfterCooldownReplacesCode(t *testing.T) {
	t.Parallel()
	s := store.New(10*time.Minute, 30*time.Millisecond, 3)

	require.NoError(t, s.Put(testPhone, "111111"))
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, s.CheckCooldown(testPhone))
	require.NoError(t, s.Put(testPhone, "222222"))

	outcome, _ := s.Validate(testPhone, "111111")
	assert.Equal(t, store.OutcomeMismatch, outcome)
	outcome, _ = s.Validate(testPhone, "222222")
	assert.Equal(t, store.OutcomeConfirmed, outcome)
}

func TestValidateExpired(t *testing.T) {
	t.Parallel()
	s := store.New(30*time.Millisecond, 10*time.Millisecond, 3)

	require.NoError(t, s.Put(testPhone, "123456"))
	time.Sleep(50 * time.Millisecond)

	// Even the correct code is rejected after expiry, and the record is gone.
	outcome, _ := s.Validate(testPhone, "123456")
	assert.Equal(t, store.OutcomeExpired, outcome)
	assert.Zero(t, s.Len())
}

func TestValidateAttemptCounting(t *testing.T) {
	t.Parallel()
	s := store.New(10*time.Minute, time.Minute, 3)

	require.NoError(t, s.Put(testPhone, "123456"))

	// Three wrong submissions count down 2, 1, 0.
	for _, want := range []int{2, 1, 0} {
		outcome, remaining := s.Validate(testPhone, "000000")
		assert.Equal(t, store.OutcomeMismatch, outcome)
		assert.Equal(t, want, remaining)
	}

	// Fourth submission is refused even with the correct code.
	outcome, _ := s.Validate(testPhone, "123456")
	assert.Equal(t, store.OutcomeAttemptsExceeded, outcome)

	// The record is deleted, so a fifth lookup finds nothing.
	outcome, _ = s.Validate(testPhone, "123456")
	assert.Equal(t, store.OutcomeNotFound, outcome)
}

func TestValidateUnknownPhone(t *testing.T) {
	t.Parallel()
	s := store.New(10*time.Minute, time.Minute, 3)

	outcome, remaining := s.Validate("998900000000", "123456")
	assert.Equal(t, store.OutcomeNotFound, outcome)
	assert.Zero(t, remaining)
}

func TestConcurrentDistinctPhones(t *testing.T) {
	t.Parallel()
	s := store.New(10*time.Minute, time.Minute, 3)

	const n = 1000
	var wg sync.WaitGroup
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := phone.Number(fmt.Sprintf("998%09d", i))
			errs[i] = s.Put(p, fmt.Sprintf("%06d", 100000+i))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoErrorf(t, err, "phone %d", i)
	}
	assert.Equal(t, n, s.Len())

	// Every phone confirms with its own code, no cross-phone interference.
	for i := 0; i < n; i++ {
		p := phone.Number(fmt.Sprintf("998%09d", i))
		outcome, _ := s.Validate(p, fmt.Sprintf("%06d", 100000+i))
		require.Equalf(t, store.OutcomeConfirmed, outcome, "phone %d", i)
	}
}

func TestConcurrentValidateSamePhone(t *testing.T) {
	t.Parallel()
	s := store.New(10*time.Minute, time.Minute, 3)
	require.NoError(t, s.Put(testPhone, "123456"))

	// Many concurrent wrong submissions must not lose attempt increments:
	// exactly 3 mismatches are recorded before the record locks out.
	const n = 20
	var wg sync.WaitGroup
	outcomes := make([]store.Outcome, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], _ = s.Validate(testPhone, "999999")
		}(i)
	}
	wg.Wait()

	mismatches := 0
	for _, o := range outcomes {
		if o == store.OutcomeMismatch {
			mismatches++
		}
	}
	assert.Equal(t, 3, mismatches)
}

func TestSweepRemovesExpired(t *testing.T) {
	t.Parallel()
	s := store.New(20*time.Millisecond, 5*time.Millisecond, 3)
	defer s.Stop()

	require.NoError(t, s.Put(testPhone, "123456"))
	s.StartSweep(10 * time.Millisecond)

	assert.Eventually(t, func() bool { return s.Len() == 0 },
		500*time.Millisecond, 10*time.Millisecond)
}
