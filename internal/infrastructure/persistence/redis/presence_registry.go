package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/collegeconnect/collegeconnect-hub/internal/domain/presence"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/shared"
	"github.com/collegeconnect/collegeconnect-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PRESENCE REGISTRY
// ══════════════════════════════════════════════════════════════════════════════

// PresenceRegistry tracks online presence per connection.
//
// Architecture:
//   - "presence:conn:{user_id}" is a sorted set of the user's connections,
//     scored by expiry (unix ms); a heartbeat pushes the score forward
//   - "presence:online" is a sorted set of online users, scored by the
//     expiry of their longest-lived connection
//   - "presence:last_seen" is a hash of user_id -> last activity (unix ms)
//   - "typing:{room_id}" is a sorted set of typing users, scored by expiry
//
// Expired members are pruned lazily on every read and write, so the
// registry needs no background sweeper.
type PresenceRegistry struct {
	cache         *Cache
	clock         timeutil.Clock
	connectionTTL time.Duration
	typingTTL     time.Duration
}

// Key names for presence tracking.
const (
	keyPresenceConnPrefix = PrefixPresence + "conn:"
	keyPresenceOnline     = PrefixPresence + "online"
	keyPresenceLastSeen   = PrefixPresence + "last_seen"
)

// ConnectionsKey returns the key of a user's connection set.
func ConnectionsKey(userID string) string {
	return keyPresenceConnPrefix + userID
}

// TypingKey returns the key of a room's typing set.
func TypingKey(roomID string) string {
	return PrefixTyping + roomID
}

// NewPresenceRegistry creates a PresenceRegistry.
func NewPresenceRegistry(cache *Cache, clock timeutil.Clock, connectionTTL, typingTTL time.Duration) *PresenceRegistry {
	if clock == nil {
		clock = timeutil.NewSystemClock(time.UTC)
	}
	return &PresenceRegistry{
		cache:         cache,
		clock:         clock,
		connectionTTL: connectionTTL,
		typingTTL:     typingTTL,
	}
}

var _ presence.Registry = (*PresenceRegistry)(nil)

func millis(t time.Time) float64 {
	return float64(t.UnixMilli())
}

// exclusive formats a score as an exclusive range bound.
func exclusive(score float64) string {
	return "(" + strconv.FormatFloat(score, 'f', 0, 64)
}

// ══════════════════════════════════════════════════════════════════════════════
// CONNECTIONS
// ══════════════════════════════════════════════════════════════════════════════

// Register adds a connection and reports whether the user just came online.
func (r *PresenceRegistry) Register(ctx context.Context, c presence.Connection) (bool, error) {
	if err := c.Validate(); err != nil {
		return false, err
	}

	added, live, err := r.touch(ctx, c)
	if err != nil {
		return false, fmt.Errorf("failed to register connection: %w", err)
	}

	return added && live == 1, nil
}

// Heartbeat extends a connection. An unknown connection is registered again.
func (r *PresenceRegistry) Heartbeat(ctx context.Context, c presence.Connection) error {
	if err := c.Validate(); err != nil {
		return err
	}

	if _, _, err := r.touch(ctx, c); err != nil {
		return fmt.Errorf("failed to extend connection: %w", err)
	}
	return nil
}

// touch upserts the connection and returns whether it was new and how many
// live connections the user has afterwards.
func (r *PresenceRegistry) touch(ctx context.Context, c presence.Connection) (bool, int64, error) {
	now := r.clock.Now()
	expiry := now.Add(r.connectionTTL)
	connKey := ConnectionsKey(c.UserID)

	var addCmd, cardCmd *redis.IntCmd
	var maxCmd *redis.ZSliceCmd
	_, err := r.cache.Client().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, connKey, "-inf", strconv.FormatFloat(millis(now), 'f', 0, 64))
		addCmd = pipe.ZAdd(ctx, connKey, redis.Z{Score: millis(expiry), Member: c.ConnectionID})
		pipe.PExpire(ctx, connKey, r.connectionTTL)
		cardCmd = pipe.ZCard(ctx, connKey)
		maxCmd = pipe.ZRevRangeWithScores(ctx, connKey, 0, 0)
		pipe.HSet(ctx, keyPresenceLastSeen, c.UserID, now.UnixMilli())
		return nil
	})
	if err != nil {
		return false, 0, err
	}

	if err := r.markOnline(ctx, c.UserID, maxCmd.Val()); err != nil {
		return false, 0, err
	}

	return addCmd.Val() == 1, cardCmd.Val(), nil
}

// markOnline scores the user in the online set by their latest connection expiry.
func (r *PresenceRegistry) markOnline(ctx context.Context, userID string, latest []redis.Z) error {
	if len(latest) == 0 {
		return r.cache.Client().ZRem(ctx, keyPresenceOnline, userID).Err()
	}
	return r.cache.Client().ZAdd(ctx, keyPresenceOnline, redis.Z{Score: latest[0].Score, Member: userID}).Err()
}

// Deregister removes a connection and reports whether the user went offline.
func (r *PresenceRegistry) Deregister(ctx context.Context, c presence.Connection) (bool, error) {
	if err := c.Validate(); err != nil {
		return false, err
	}

	now := r.clock.Now()
	connKey := ConnectionsKey(c.UserID)

	var remCmd, cardCmd *redis.IntCmd
	var maxCmd *redis.ZSliceCmd
	_, err := r.cache.Client().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		remCmd = pipe.ZRem(ctx, connKey, c.ConnectionID)
		pipe.ZRemRangeByScore(ctx, connKey, "-inf", strconv.FormatFloat(millis(now), 'f', 0, 64))
		cardCmd = pipe.ZCard(ctx, connKey)
		maxCmd = pipe.ZRevRangeWithScores(ctx, connKey, 0, 0)
		pipe.HSet(ctx, keyPresenceLastSeen, c.UserID, now.UnixMilli())
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to deregister connection: %w", err)
	}

	if err := r.markOnline(ctx, c.UserID, maxCmd.Val()); err != nil {
		return false, fmt.Errorf("failed to update online set: %w", err)
	}

	return remCmd.Val() == 1 && cardCmd.Val() == 0, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// Status returns the presence of one user.
func (r *PresenceRegistry) Status(ctx context.Context, userID string) (presence.Status, error) {
	now := r.clock.Now()
	connKey := ConnectionsKey(userID)

	var cardCmd *redis.IntCmd
	var seenCmd *redis.StringCmd
	_, err := r.cache.Client().Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, connKey, "-inf", strconv.FormatFloat(millis(now), 'f', 0, 64))
		cardCmd = pipe.ZCard(ctx, connKey)
		seenCmd = pipe.HGet(ctx, keyPresenceLastSeen, userID)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return presence.Status{}, fmt.Errorf("failed to get presence: %w", err)
	}

	status := presence.Status{
		UserID:      userID,
		Connections: int(cardCmd.Val()),
	}
	status.Online = status.Connections > 0

	if ms, err := seenCmd.Int64(); err == nil {
		seen := time.UnixMilli(ms).UTC()
		status.LastSeen = &seen
	}

	return status, nil
}

// Online returns IDs of online users, sorted.
func (r *PresenceRegistry) Online(ctx context.Context) ([]string, error) {
	now := millis(r.clock.Now())
	client := r.cache.Client()

	if err := client.ZRemRangeByScore(ctx, keyPresenceOnline, "-inf", strconv.FormatFloat(now, 'f', 0, 64)).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune online set: %w", err)
	}

	ids, err := client.ZRangeByScore(ctx, keyPresenceOnline, &redis.ZRangeBy{
		Min: exclusive(now),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list online users: %w", err)
	}

	sort.Strings(ids)
	return ids, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TYPING INDICATORS
// ══════════════════════════════════════════════════════════════════════════════

// SetTyping marks the user as typing in the room for the typing TTL.
func (r *PresenceRegistry) SetTyping(ctx context.Context, roomID, userID string) error {
	if err := presence.ValidateRoom(roomID); err != nil {
		return err
	}
	if _, err := shared.NewUserID(userID); err != nil {
		return err
	}

	now := r.clock.Now()
	key := TypingKey(roomID)

	_, err := r.cache.Client().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: millis(now.Add(r.typingTTL)), Member: userID})
		pipe.PExpire(ctx, key, r.typingTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set typing: %w", err)
	}
	return nil
}

// Typing returns IDs of users typing in the room, sorted.
func (r *PresenceRegistry) Typing(ctx context.Context, roomID string) ([]string, error) {
	if err := presence.ValidateRoom(roomID); err != nil {
		return nil, err
	}

	now := millis(r.clock.Now())
	key := TypingKey(roomID)

	ids, err := r.cache.Client().ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: exclusive(now),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list typing users: %w", err)
	}

	sort.Strings(ids)
	return ids, nil
}
