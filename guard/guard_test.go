// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package guard_test

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openvouch/vouchd/database"
	"github.com/openvouch/vouchd/guard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSlug = "acme/widgets"

// disabled turns a rate-limit tier off for tests that isolate another tier
var disabled = guard.Limit{Max: 0, Window: time.Minute}

func newGuardTestEnv(
	t *testing.T,
	config guard.Config,
) (*guard.Guard, *database.Database) {
	t.Helper()
	db, err := database.New(&database.Config{
		DataDir: t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close() //nolint:errcheck
	})
	return guard.NewGuard(nil, db, config), db
}

func tcpAddr(ip string, port int) *net.TCPAddr {
	return &net.TCPAddr{IP: net.ParseIP(ip), Port: port}
}

func TestRequesterIdentity(t *testing.T) {
	tests := []struct {
		name string
		a    guard.Requester
		b    guard.Requester
		same bool
	}{
		{
			name: "same token same identity",
			a:    guard.Requester{Token: "client-1"},
			b:    guard.Requester{Token: "client-1"},
			same: true,
		},
		{
			name: "token wins over address",
			a: guard.Requester{
				Token: "client-1",
				Addr:  tcpAddr("192.0.2.10", 1000),
			},
			b: guard.Requester{
				Token: "client-1",
				Addr:  tcpAddr("198.51.100.7", 2000),
			},
			same: true,
		},
		{
			name: "IPv4 ignores port",
			a:    guard.Requester{Addr: tcpAddr("192.0.2.10", 1000)},
			b:    guard.Requester{Addr: tcpAddr("192.0.2.10", 9999)},
			same: true,
		},
		{
			name: "different IPv4 hosts differ",
			a:    guard.Requester{Addr: tcpAddr("192.0.2.10", 1000)},
			b:    guard.Requester{Addr: tcpAddr("192.0.2.11", 1000)},
			same: false,
		},
		{
			name: "IPv6 same /64 collapses",
			a:    guard.Requester{Addr: tcpAddr("2001:db8:85a3::1", 1)},
			b: guard.Requester{
				Addr: tcpAddr("2001:db8:85a3::8a2e:370:7334", 2),
			},
			same: true,
		},
		{
			name: "IPv6 different /64 differ",
			a:    guard.Requester{Addr: tcpAddr("2001:db8:85a3::1", 1)},
			b:    guard.Requester{Addr: tcpAddr("2001:db8:85a4::1", 1)},
			same: false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			idA := tc.a.Identity()
			idB := tc.b.Identity()
			require.NotEmpty(t, idA)
			require.NotEmpty(t, idB)
			if tc.same {
				assert.Equal(t, idA, idB)
			} else {
				assert.NotEqual(t, idA, idB)
			}
		})
	}
}

func TestRequesterIdentityNeverStoresRawAddress(t *testing.T) {
	r := guard.Requester{Addr: tcpAddr("203.0.113.7", 4321)}
	id := r.Identity()
	assert.Len(t, id, 32)
	assert.NotContains(t, id, "203.0.113.7")
}

func TestRequesterIdentityAnonymous(t *testing.T) {
	assert.Empty(t, guard.Requester{}.Identity())
	unixSock := guard.Requester{
		Addr: &net.UnixAddr{Name: "/tmp/vouchd.sock", Net: "unix"},
	}
	assert.Empty(t, unixSock.Identity())
}

func TestAcquireReleaseCycle(t *testing.T) {
	g, db := newGuardTestEnv(t, guard.Config{})
	requester := guard.Requester{Trusted: true}

	lease, err := g.Acquire(t.Context(), testSlug, requester)
	require.NoError(t, err)
	assert.Equal(t, testSlug, lease.RepoSlug())
	assert.True(t, lease.ExpiresAt().After(time.Now()))

	lock, err := db.GetLock(testSlug, nil)
	require.NoError(t, err)
	require.NotNil(t, lock)

	require.NoError(t, lease.Release(t.Context()))
	lock, err = db.GetLock(testSlug, nil)
	require.NoError(t, err)
	assert.Nil(t, lock)

	// Double release is a no-op
	require.NoError(t, lease.Release(t.Context()))

	lease, err = g.Acquire(t.Context(), testSlug, requester)
	require.NoError(t, err)
	require.NoError(t, lease.Release(t.Context()))
}

func TestAcquireConflict(t *testing.T) {
	g, _ := newGuardTestEnv(t, guard.Config{})
	requester := guard.Requester{Trusted: true}

	lease, err := g.Acquire(t.Context(), testSlug, requester)
	require.NoError(t, err)

	_, err = g.Acquire(t.Context(), testSlug, requester)
	require.ErrorIs(t, err, guard.ErrLockHeld)

	// Other repositories are unaffected
	other, err := g.Acquire(t.Context(), "acme/other", requester)
	require.NoError(t, err)
	require.NoError(t, other.Release(t.Context()))

	require.NoError(t, lease.Release(t.Context()))
	lease, err = g.Acquire(t.Context(), testSlug, requester)
	require.NoError(t, err)
	require.NoError(t, lease.Release(t.Context()))
}

func TestAcquireAfterTTLExpiry(t *testing.T) {
	g, db := newGuardTestEnv(t, guard.Config{
		LockTTL: 100 * time.Millisecond,
	})
	requester := guard.Requester{Trusted: true}

	stale, err := g.Acquire(t.Context(), testSlug, requester)
	require.NoError(t, err)

	time.Sleep(250 * time.Millisecond)

	fresh, err := g.Acquire(t.Context(), testSlug, requester)
	require.NoError(t, err, "expired lock must not block a new acquire")

	// The stale lease's release must not break the new holder's lock
	require.NoError(t, stale.Release(t.Context()))
	lock, err := db.GetLock(testSlug, nil)
	require.NoError(t, err)
	require.NotNil(t, lock, "stale release removed the new holder's lock")

	require.NoError(t, fresh.Release(t.Context()))
	lock, err = db.GetLock(testSlug, nil)
	require.NoError(t, err)
	assert.Nil(t, lock)
}

func TestConcurrentAcquireExactlyOnce(t *testing.T) {
	g, _ := newGuardTestEnv(t, guard.Config{})
	requester := guard.Requester{Trusted: true}

	const attempts = 8
	var wins, conflicts atomic.Int32
	leases := make(chan *guard.Lease, attempts)
	var wg sync.WaitGroup
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := g.Acquire(t.Context(), testSlug, requester)
			switch {
			case err == nil:
				wins.Add(1)
				leases <- lease
			case errors.Is(err, guard.ErrLockHeld):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected acquire error: %s", err)
			}
		}()
	}
	wg.Wait()
	close(leases)

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(attempts-1), conflicts.Load())
	for lease := range leases {
		require.NoError(t, lease.Release(t.Context()))
	}
}

func TestRateLimitPerRequester(t *testing.T) {
	g, _ := newGuardTestEnv(t, guard.Config{
		RequesterLimit:     guard.Limit{Max: 2, Window: 300 * time.Millisecond},
		RequesterRepoLimit: disabled,
		RepoLimit:          disabled,
	})
	requester := guard.Requester{Token: "client-1"}

	for range 2 {
		lease, err := g.Acquire(t.Context(), testSlug, requester)
		require.NoError(t, err)
		require.NoError(t, lease.Release(t.Context()))
	}

	_, err := g.Acquire(t.Context(), testSlug, requester)
	var rateErr guard.RateLimitedError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, guard.ScopeRequester, rateErr.Scope())
	assert.Greater(t, rateErr.RetryAfter(), time.Duration(0))
	assert.LessOrEqual(t, rateErr.RetryAfter(), 300*time.Millisecond)

	// A different requester has its own budget
	lease, err := g.Acquire(
		t.Context(),
		testSlug,
		guard.Requester{Token: "client-2"},
	)
	require.NoError(t, err)
	require.NoError(t, lease.Release(t.Context()))

	// The window rolls over and the original requester recovers
	time.Sleep(400 * time.Millisecond)
	lease, err = g.Acquire(t.Context(), testSlug, requester)
	require.NoError(t, err)
	require.NoError(t, lease.Release(t.Context()))
}

func TestRateLimitPerRequesterRepo(t *testing.T) {
	g, _ := newGuardTestEnv(t, guard.Config{
		RequesterLimit:     guard.Limit{Max: 100, Window: time.Minute},
		RequesterRepoLimit: guard.Limit{Max: 1, Window: time.Minute},
		RepoLimit:          disabled,
	})
	requester := guard.Requester{Token: "client-1"}

	lease, err := g.Acquire(t.Context(), testSlug, requester)
	require.NoError(t, err)
	require.NoError(t, lease.Release(t.Context()))

	_, err = g.Acquire(t.Context(), testSlug, requester)
	var rateErr guard.RateLimitedError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, guard.ScopeRequesterRepo, rateErr.Scope())

	// The same requester still has budget on another repository
	lease, err = g.Acquire(t.Context(), "acme/other", requester)
	require.NoError(t, err)
	require.NoError(t, lease.Release(t.Context()))
}

func TestRateLimitPerRepo(t *testing.T) {
	g, _ := newGuardTestEnv(t, guard.Config{
		RequesterLimit:     disabled,
		RequesterRepoLimit: disabled,
		RepoLimit:          guard.Limit{Max: 1, Window: time.Minute},
	})

	lease, err := g.Acquire(
		t.Context(),
		testSlug,
		guard.Requester{Token: "client-1"},
	)
	require.NoError(t, err)
	require.NoError(t, lease.Release(t.Context()))

	// The repository's budget is shared across requesters
	_, err = g.Acquire(
		t.Context(),
		testSlug,
		guard.Requester{Token: "client-2"},
	)
	var rateErr guard.RateLimitedError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, guard.ScopeRepo, rateErr.Scope())
}

func TestTrustedBypassesRateLimitsButNotLock(t *testing.T) {
	g, _ := newGuardTestEnv(t, guard.Config{
		RequesterLimit:     disabled,
		RequesterRepoLimit: disabled,
		RepoLimit:          guard.Limit{Max: 1, Window: time.Minute},
	})
	trusted := guard.Requester{Token: "scheduler", Trusted: true}

	for range 3 {
		lease, err := g.Acquire(t.Context(), testSlug, trusted)
		require.NoError(t, err)
		require.NoError(t, lease.Release(t.Context()))
	}

	lease, err := g.Acquire(t.Context(), testSlug, trusted)
	require.NoError(t, err)
	_, err = g.Acquire(t.Context(), testSlug, trusted)
	assert.ErrorIs(t, err, guard.ErrLockHeld, "trust does not bypass the lock")
	require.NoError(t, lease.Release(t.Context()))
}

func TestRefusedAttemptsLeaveNoCounterState(t *testing.T) {
	g, _ := newGuardTestEnv(t, guard.Config{
		RequesterLimit:     disabled,
		RequesterRepoLimit: disabled,
		RepoLimit:          guard.Limit{Max: 2, Window: time.Minute},
	})
	holder, err := g.Acquire(
		t.Context(),
		testSlug,
		guard.Requester{Trusted: true},
	)
	require.NoError(t, err)

	// Conflicted attempts roll their counter increments back, so they
	// never migrate into rate-limit refusals
	requester := guard.Requester{Token: "client-1"}
	for range 3 {
		_, err := g.Acquire(t.Context(), testSlug, requester)
		require.ErrorIs(t, err, guard.ErrLockHeld)
	}

	require.NoError(t, holder.Release(t.Context()))
	lease, err := g.Acquire(t.Context(), testSlug, requester)
	require.NoError(t, err)
	require.NoError(t, lease.Release(t.Context()))
}

func TestAnonymousRequesterExemptFromRequesterScopes(t *testing.T) {
	g, _ := newGuardTestEnv(t, guard.Config{
		RequesterLimit:     guard.Limit{Max: 1, Window: time.Minute},
		RequesterRepoLimit: guard.Limit{Max: 1, Window: time.Minute},
		RepoLimit:          disabled,
	})

	// No token and no usable address: only the repo scope could apply
	anonymous := guard.Requester{}
	for range 3 {
		lease, err := g.Acquire(t.Context(), testSlug, anonymous)
		require.NoError(t, err)
		require.NoError(t, lease.Release(t.Context()))
	}
}
