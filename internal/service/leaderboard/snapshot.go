package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/aimd54/lms-gamification/internal/apperrors"
	"github.com/aimd54/lms-gamification/internal/cache"
	"github.com/aimd54/lms-gamification/pkg/logger"
)

const (
	keyPrefix  = "leaderboard"
	versionKey = keyPrefix + ":version"
)

// Snapshot is a fully ranked leaderboard population for one scope unit and period window.
type Snapshot struct {
	Scope       Scope     `json:"scope"`
	UnitID      uint      `json:"unit_id"`
	Period      Period    `json:"period"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	ComputedAt  time.Time `json:"computed_at"`
	Entries     []Entry   `json:"entries"`
}

type snapshotKey struct {
	Scope       Scope
	UnitID      uint
	Period      Period
	WindowStart time.Time
}

func (k snapshotKey) String() string {
	return fmt.Sprintf("%s:%d:%s:%d", k.Scope, k.UnitID, k.Period, k.WindowStart.Unix())
}

// slot identifies the in-memory slot of k. Each slot holds only the latest window,
// so a new window replaces the previous one.
func (k snapshotKey) slot() string {
	return fmt.Sprintf("%s:%d:%s", k.Scope, k.UnitID, k.Period)
}

type memoryEntry struct {
	snap    *Snapshot
	version int64
}

// snapshotStore keeps snapshots in Redis under a versioned fresh key with a TTL and
// an unversioned last-good key that lives until the window closes. The last good
// snapshot is also kept in memory so it survives a Redis outage. Without Redis the
// memory copy doubles as the TTL cache.
type snapshotStore struct {
	cache cache.Cache
	log   *logger.Logger

	mu     sync.RWMutex
	memory map[string]memoryEntry
	local  int64
}

func newSnapshotStore(c cache.Cache, log *logger.Logger) *snapshotStore {
	return &snapshotStore{
		cache:  c,
		log:    log,
		memory: make(map[string]memoryEntry),
	}
}

// remembered returns the in-memory snapshot for k's window and the version it was saved under.
func (st *snapshotStore) remembered(k snapshotKey) (*Snapshot, int64, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	e, ok := st.memory[k.slot()]
	if !ok || !e.snap.WindowStart.Equal(k.WindowStart) {
		return nil, 0, false
	}
	return e.snap, e.version, true
}

// version returns the current invalidation generation.
func (st *snapshotStore) version(ctx context.Context) (string, bool) {
	if st.cache == nil {
		st.mu.RLock()
		defer st.mu.RUnlock()
		return strconv.FormatInt(st.local, 10), true
	}
	v, err := st.cache.Get(ctx, versionKey)
	if err != nil {
		st.log.Warn().Err(err).Msg("Failed to read leaderboard cache version")
		return "", false
	}
	if v == "" {
		v = "0"
	}
	return v, true
}

func freshKey(version string, k snapshotKey) string {
	return fmt.Sprintf("%s:v%s:%s", keyPrefix, version, k)
}

func lastGoodKey(k snapshotKey) string {
	return fmt.Sprintf("%s:last:%s", keyPrefix, k)
}

// fresh returns a snapshot computed within the TTL of the current version, or nil.
func (st *snapshotStore) fresh(ctx context.Context, k snapshotKey, ttl time.Duration, now time.Time) *Snapshot {
	if st.cache == nil {
		snap, version, ok := st.remembered(k)
		if !ok || ttl <= 0 || now.Sub(snap.ComputedAt) >= ttl {
			return nil
		}
		st.mu.RLock()
		current := st.local
		st.mu.RUnlock()
		if version != current {
			return nil
		}
		return snap
	}
	version, ok := st.version(ctx)
	if !ok {
		return nil
	}
	return st.load(ctx, freshKey(version, k))
}

// lastGood returns the most recent successfully computed snapshot for k, or nil.
func (st *snapshotStore) lastGood(ctx context.Context, k snapshotKey) *Snapshot {
	if st.cache != nil {
		if snap := st.load(ctx, lastGoodKey(k)); snap != nil {
			return snap
		}
	}
	snap, _, _ := st.remembered(k)
	return snap
}

// save stores snap as fresh for ttl and as last good until the window closes.
func (st *snapshotStore) save(ctx context.Context, k snapshotKey, snap *Snapshot, ttl, untilWindowEnd time.Duration) {
	st.mu.Lock()
	if e, ok := st.memory[k.slot()]; !ok || !e.snap.WindowStart.After(snap.WindowStart) {
		st.memory[k.slot()] = memoryEntry{snap: snap, version: st.local}
	}
	st.mu.Unlock()

	if st.cache == nil {
		return
	}

	data, err := json.Marshal(snap)
	if err != nil {
		st.log.Error().Err(err).Str("key", k.String()).Msg("Failed to encode leaderboard snapshot")
		return
	}

	if version, ok := st.version(ctx); ok && ttl > 0 {
		if err := st.cache.Set(ctx, freshKey(version, k), data, ttl); err != nil {
			st.log.Warn().Err(err).Str("key", k.String()).Msg("Failed to cache leaderboard snapshot")
		}
	}

	if untilWindowEnd < 0 {
		untilWindowEnd = 0
	}
	if err := st.cache.Set(ctx, lastGoodKey(k), data, untilWindowEnd+ttl); err != nil {
		st.log.Warn().Err(err).Str("key", k.String()).Msg("Failed to store last good leaderboard snapshot")
	}
}

func (st *snapshotStore) load(ctx context.Context, key string) *Snapshot {
	raw, err := st.cache.Get(ctx, key)
	if err != nil {
		st.log.Warn().Err(err).Str("key", key).Msg("Failed to read leaderboard snapshot")
		return nil
	}
	if raw == "" {
		return nil
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		st.log.Warn().Err(err).Str("key", key).Msg("Discarding undecodable leaderboard snapshot")
		return nil
	}
	return &snap
}

// invalidate bumps the version so every fresh key is bypassed.
func (st *snapshotStore) invalidate(ctx context.Context) error {
	if st.cache == nil {
		st.mu.Lock()
		st.local++
		st.mu.Unlock()
		return nil
	}
	if _, err := st.cache.Incr(ctx, versionKey); err != nil {
		return apperrors.Storage("invalidate leaderboard cache", err)
	}
	return nil
}
