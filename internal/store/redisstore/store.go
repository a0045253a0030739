// Package redisstore keeps the short-lived one-time tickets that let a
// browser authenticate a websocket upgrade (no Authorization header is
// available on the upgrade request).
package redisstore

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const ticketPrefix = "ws_ticket:"

type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

func (s *Store) Close() error { return s.rdb.Close() }

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// IssueTicket mints a single-use ticket bound to the user id.
func (s *Store) IssueTicket(ctx context.Context, userID uint64, ttl time.Duration) (string, error) {
	ticket := uuid.NewString()
	key := ticketPrefix + ticket
	if err := s.rdb.Set(ctx, key, strconv.FormatUint(userID, 10), ttl).Err(); err != nil {
		return "", err
	}
	return ticket, nil
}

// Consume resolves and atomically invalidates a ticket. A second use of
// the same ticket fails with redis.Nil.
func (s *Store) Consume(ctx context.Context, ticket string) (uint64, error) {
	val, err := s.rdb.GetDel(ctx, ticketPrefix+ticket).Result()
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(val, 10, 64)
}
