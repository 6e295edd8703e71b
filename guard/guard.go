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

// Package guard serializes per-repository indexing and throttles
// requesters. A repository's lock is advisory with a TTL, so a crashed
// holder frees it by expiry, and three independent fixed-window counters
// (per requester, per requester+repository, per repository) throttle
// untrusted callers. All state lives in the blob store; nothing is held
// in process memory, so any number of workers over one store agree.
package guard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/openvouch/vouchd/database"
)

// Rate-limit scopes, as reported by RateLimitedError and used to key the
// stored counters
const (
	ScopeRequester     = "requester"
	ScopeRequesterRepo = "requester_repo"
	ScopeRepo          = "repo"
)

// DefaultLockTTL covers one fetch-and-reconcile cycle with room to spare
// while still recovering quickly from a crashed holder
const DefaultLockTTL = 60 * time.Second

// Default per-scope limits
var (
	DefaultRequesterLimit     = Limit{Max: 10, Window: 10 * time.Minute}
	DefaultRequesterRepoLimit = Limit{Max: 3, Window: 10 * time.Minute}
	DefaultRepoLimit          = Limit{Max: 6, Window: 10 * time.Minute}
)

// identityHashLen is how many bytes of the SHA-256 digest survive into
// the hex identity
const identityHashLen = 16

// Requester identifies who asked for an indexing run. Trusted requesters
// (the scheduler, local CLI) skip the rate limits but still take the
// repository lock.
type Requester struct {
	Addr    net.Addr
	Token   string
	Trusted bool
}

// Identity returns the requester's rate-limit key: a truncated SHA-256
// over the opaque client token when present, else over a key derived from
// the network address. Raw addresses are never stored. Requesters with
// neither a token nor a usable address (unix sockets, in-process callers)
// get an empty identity and are exempt from the requester-scoped limits.
func (r Requester) Identity() string {
	if r.Token != "" {
		return hashIdentity("token", r.Token)
	}
	if key := addrKey(r.Addr); key != "" {
		return hashIdentity("addr", key)
	}
	return ""
}

// addrKey reduces a network address to a rate-limit key: the bare IP for
// IPv4, the /64 prefix for IPv6 so rotating within one subnet still
// counts as a single source
func addrKey(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host := addr.String()
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return ""
	}
	if ip4 := ip.To4(); ip4 != nil {
		return ip4.String()
	}
	return ip.Mask(net.CIDRMask(64, 128)).String() + "/64"
}

func hashIdentity(kind, value string) string {
	sum := sha256.Sum256([]byte(kind + ":" + value))
	return hex.EncodeToString(sum[:identityHashLen])
}

// Limit is one fixed-window threshold. A Max of zero disables the limit.
type Limit struct {
	Window time.Duration
	Max    uint32
}

// Config controls lock expiry and the three rate-limit tiers. Zero values
// take the defaults; set a limit with Max zero and a non-zero Window to
// disable that tier outright.
type Config struct {
	LockTTL            time.Duration
	RequesterLimit     Limit
	RequesterRepoLimit Limit
	RepoLimit          Limit
}

func (c Config) withDefaults() Config {
	if c.LockTTL <= 0 {
		c.LockTTL = DefaultLockTTL
	}
	if c.RequesterLimit == (Limit{}) {
		c.RequesterLimit = DefaultRequesterLimit
	}
	if c.RequesterRepoLimit == (Limit{}) {
		c.RequesterRepoLimit = DefaultRequesterRepoLimit
	}
	if c.RepoLimit == (Limit{}) {
		c.RepoLimit = DefaultRepoLimit
	}
	return c
}

// Guard hands out per-repository indexing leases
type Guard struct {
	logger *slog.Logger
	db     *database.Database
	config Config
	mu     sync.Mutex
}

// NewGuard creates a Guard over the given database
func NewGuard(
	logger *slog.Logger,
	db *database.Database,
	config Config,
) *Guard {
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Guard{
		logger: logger,
		db:     db,
		config: config.withDefaults(),
	}
}

// Acquire takes the repository's indexing lease. Rate limits are checked
// before the lock, so an attempt that is both throttled and blocked
// reports RateLimitedError. Counter increments and the lock write share
// one transaction: a refused attempt, whatever the reason, mutates
// nothing. Holding the Guard's mutex across the transaction makes
// concurrent local attempts strictly ordered, so exactly one of them
// wins the lock.
func (g *Guard) Acquire(
	ctx context.Context,
	repoSlug string,
	requester Requester,
) (*Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now()
	owner := uuid.Must(uuid.NewV7()).String()
	expiresAt := now.Add(g.config.LockTTL)
	txn := database.NewBlobOnlyTxn(g.db, true)
	err := txn.Do(func(txn *database.Txn) error {
		if !requester.Trusted {
			if err := g.passWindows(repoSlug, requester, now, txn); err != nil {
				return err
			}
		}
		lock, err := g.db.GetLock(repoSlug, txn)
		if err != nil {
			return err
		}
		if lock != nil && !lock.Expired(now) {
			return ErrLockHeld
		}
		// An expired record gets overwritten here, which is also its
		// cleanup
		return g.db.SetLock(repoSlug, database.LockRecord{
			Owner:     owner,
			ExpiresAt: expiresAt,
		}, txn)
	})
	if err != nil {
		return nil, err
	}
	g.logger.Debug(
		"acquired repository lock",
		"component", "guard",
		"repo_slug", repoSlug,
		"owner", owner,
		"expires_at", expiresAt,
	)
	return &Lease{
		guard:     g,
		repoSlug:  repoSlug,
		owner:     owner,
		expiresAt: expiresAt,
	}, nil
}

func (g *Guard) passWindows(
	repoSlug string,
	requester Requester,
	now time.Time,
	txn *database.Txn,
) error {
	identity := requester.Identity()
	if identity != "" {
		if err := g.passWindow(
			ScopeRequester,
			identity,
			g.config.RequesterLimit,
			now,
			txn,
		); err != nil {
			return err
		}
		if err := g.passWindow(
			ScopeRequesterRepo,
			identity+"/"+repoSlug,
			g.config.RequesterRepoLimit,
			now,
			txn,
		); err != nil {
			return err
		}
	}
	return g.passWindow(ScopeRepo, repoSlug, g.config.RepoLimit, now, txn)
}

// passWindow counts the attempt against one fixed window. A bucket whose
// window has elapsed resets before the increment. The write lands in the
// caller's transaction, so a breach in a later window (or a held lock)
// rolls earlier increments back.
func (g *Guard) passWindow(
	scope string,
	key string,
	limit Limit,
	now time.Time,
	txn *database.Txn,
) error {
	if limit.Max == 0 {
		return nil
	}
	bucket, err := g.db.GetRateBucket(scope, key, txn)
	if err != nil {
		return err
	}
	nowMs := now.UnixMilli()
	windowMs := limit.Window.Milliseconds()
	if bucket == nil || nowMs-bucket.WindowStart >= windowMs {
		bucket = &database.RateBucket{WindowStart: nowMs}
	}
	if bucket.Count >= uint64(limit.Max) {
		retryAfter := time.Duration(
			bucket.WindowStart+windowMs-nowMs,
		) * time.Millisecond
		return NewRateLimitedError(scope, retryAfter)
	}
	bucket.Count++
	return g.db.SetRateBucket(scope, key, *bucket, txn)
}

// Lease is a held repository lock
type Lease struct {
	guard     *Guard
	repoSlug  string
	owner     string
	expiresAt time.Time
	released  atomic.Bool
}

// RepoSlug returns the repository the lease covers
func (l *Lease) RepoSlug() string {
	return l.repoSlug
}

// ExpiresAt returns when the lease lapses on its own
func (l *Lease) ExpiresAt() time.Time {
	return l.expiresAt
}

// Release frees the repository's lock. Releasing twice, or after the TTL
// already let another holder take over, is a no-op rather than an error.
// Callers defer this so failed runs never leave the repository locked for
// the full TTL.
func (l *Lease) Release(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !l.released.CompareAndSwap(false, true) {
		return nil
	}
	g := l.guard
	g.mu.Lock()
	defer g.mu.Unlock()
	txn := database.NewBlobOnlyTxn(g.db, true)
	err := txn.Do(func(txn *database.Txn) error {
		lock, err := g.db.GetLock(l.repoSlug, txn)
		if err != nil {
			return err
		}
		if lock == nil || lock.Owner != l.owner {
			// The lock expired and moved on; nothing of ours to remove
			return nil
		}
		return g.db.DeleteLock(l.repoSlug, txn)
	})
	if err != nil {
		return err
	}
	g.logger.Debug(
		"released repository lock",
		"component", "guard",
		"repo_slug", l.repoSlug,
		"owner", l.owner,
	)
	return nil
}
