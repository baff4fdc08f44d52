// Password hashing.
//
// WHY BCRYPT?
// bcrypt is a password hashing function specifically designed to be slow.
// That slowness is a security feature: it makes brute-force attacks expensive.
//
// bcrypt automatically:
//   - Generates a random salt (so two users with the same password get different hashes)
//   - Embeds the salt in the output hash (no separate salt column needed)
//   - Controls the work factor via "cost" (higher = slower = harder to crack)
//
// Hash format (the full output of bcrypt.GenerateFromPassword):
//
//	$2a$10$<22-char salt><31-char hash>
//	 ^   ^
//	 |   cost (10 rounds → 2^10 = 1024 iterations)
//	 version
//
// BOUNDED CONCURRENCY:
// A burst of sign-ups or logins would otherwise put one bcrypt computation
// per request on the CPU at the same time, starving every other request.
// PasswordService admits at most N hash operations at once through a
// weighted semaphore; the rest wait (or give up when their request context
// is cancelled).

package auth

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// DefaultCost is the bcrypt work factor used for new hashes.
// The board has always hashed with cost 10; raising it only affects
// passwords hashed after the change.
const DefaultCost = 10

// maxPasswordBytes is bcrypt's input limit.
const maxPasswordBytes = 72

// ErrPasswordMismatch is returned by Verify when the password is wrong.
var ErrPasswordMismatch = errors.New("auth: invalid password")

// ErrPasswordTooLong is returned by Hash for inputs bcrypt would truncate.
var ErrPasswordTooLong = errors.New("auth: password must be 72 bytes or fewer")

// PasswordService provides bcrypt hashing and verification behind a bounded
// worker limit.
type PasswordService struct {
	cost int
	sem  *semaphore.Weighted
}

// NewPasswordService creates a PasswordService.
//
// cost below bcrypt.MinCost falls back to DefaultCost. concurrency <= 0
// means one slot per CPU.
func NewPasswordService(cost, concurrency int) *PasswordService {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	return &PasswordService{
		cost: cost,
		sem:  semaphore.NewWeighted(int64(concurrency)),
	}
}

// NewPasswordServiceForTest creates a PasswordService with the given cost,
// which may be bcrypt's minimum (4). Use it in tests in other packages to
// avoid the hashing overhead of the production cost.
//
// Do NOT use in production.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return &PasswordService{
		cost: cost,
		sem:  semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
	}
}

// Cost reports the work factor used for new hashes.
func (p *PasswordService) Cost() int {
	return p.cost
}

// Hash hashes the given plaintext password with bcrypt.
//
// The output is a self-contained string like:
//
//	$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy
//
// Store this string directly in the database. It includes the salt and
// cost. bcrypt.CompareHashAndPassword knows how to decode it.
func (p *PasswordService) Hash(ctx context.Context, plaintext string) (string, error) {
	if len(plaintext) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("auth: waiting for hash slot: %w", err)
	}
	defer p.sem.Release(1)

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify checks whether a plaintext password matches a stored bcrypt hash.
//
// Returns nil on match and ErrPasswordMismatch on a wrong password. Any
// other error means the hash itself is unusable (corrupt row) or the
// context ended while waiting for a slot.
//
// TIMING SAFETY:
// bcrypt.CompareHashAndPassword uses a constant-time comparison internally,
// so response time does not reveal how much of the password was right.
func (p *PasswordService) Verify(ctx context.Context, hash, plaintext string) error {
	if len(plaintext) > maxPasswordBytes {
		// Could never have been hashed, so it cannot match.
		return ErrPasswordMismatch
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("auth: waiting for hash slot: %w", err)
	}
	defer p.sem.Release(1)

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
