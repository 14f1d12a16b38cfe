package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mapleroute/quotebot-backend/internal/domain"
	"github.com/mapleroute/quotebot-backend/internal/platform/logger"
)

// SessionState tags where a requester's quote conversation currently is.
type SessionState string

const (
	StateCollecting   SessionState = "collecting"
	StateParsed       SessionState = "parsed"
	StateCorrecting   SessionState = "correcting"
	StateChoosingMode SessionState = "choosing_mode"
)

// SessionTTL is the fixed expiry on every session field, refreshed on each
// write so an active conversation never expires mid-turn.
const SessionTTL = 600 * time.Second

// SessionStore persists the per-requester conversation state. Absence of a
// state record means "no active quote flow".
type SessionStore interface {
	State(ctx context.Context, userID string) (SessionState, error)
	SetState(ctx context.Context, userID string, state SessionState) error

	Data(ctx context.Context, userID string) (*domain.ParsedInput, error)
	SetData(ctx context.Context, userID string, data *domain.ParsedInput) error

	Buffer(ctx context.Context, userID string) (string, error)
	AppendBuffer(ctx context.Context, userID, text string) (string, error)
	SetBuffer(ctx context.Context, userID, text string) error

	Target(ctx context.Context, userID string) (string, error)
	SetTarget(ctx context.Context, userID, target string) error

	Clear(ctx context.Context, userID string) error
}

type redisSessionStore struct {
	log *logger.Logger
	rdb *goredis.Client
}

func NewRedisSessionStore(log *logger.Logger, rdb *goredis.Client) SessionStore {
	return &redisSessionStore{
		log: log.With("service", "SessionStore"),
		rdb: rdb,
	}
}

var sessionFields = []string{"state", "data", "buffer", "target"}

func sessionKey(userID, field string) string {
	return fmt.Sprintf("quote:%s:%s", userID, field)
}

func (s *redisSessionStore) get(ctx context.Context, userID, field string) (string, error) {
	v, err := s.rdb.Get(ctx, sessionKey(userID, field)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("session get %s: %w", field, err)
	}
	return v, nil
}

func (s *redisSessionStore) set(ctx context.Context, userID, field, value string) error {
	if err := s.rdb.Set(ctx, sessionKey(userID, field), value, SessionTTL).Err(); err != nil {
		return fmt.Errorf("session set %s: %w", field, err)
	}
	return nil
}

func (s *redisSessionStore) State(ctx context.Context, userID string) (SessionState, error) {
	v, err := s.get(ctx, userID, "state")
	return SessionState(v), err
}

func (s *redisSessionStore) SetState(ctx context.Context, userID string, state SessionState) error {
	return s.set(ctx, userID, "state", string(state))
}

func (s *redisSessionStore) Data(ctx context.Context, userID string) (*domain.ParsedInput, error) {
	raw, err := s.get(ctx, userID, "data")
	if err != nil || raw == "" {
		return nil, err
	}
	var data domain.ParsedInput
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("session data decode: %w", err)
	}
	return &data, nil
}

func (s *redisSessionStore) SetData(ctx context.Context, userID string, data *domain.ParsedInput) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("session data encode: %w", err)
	}
	return s.set(ctx, userID, "data", string(raw))
}

func (s *redisSessionStore) Buffer(ctx context.Context, userID string) (string, error) {
	return s.get(ctx, userID, "buffer")
}

func (s *redisSessionStore) AppendBuffer(ctx context.Context, userID, text string) (string, error) {
	buf, err := s.get(ctx, userID, "buffer")
	if err != nil {
		return "", err
	}
	if buf != "" {
		buf = buf + "\n" + text
	} else {
		buf = text
	}
	return buf, s.set(ctx, userID, "buffer", buf)
}

func (s *redisSessionStore) SetBuffer(ctx context.Context, userID, text string) error {
	return s.set(ctx, userID, "buffer", text)
}

func (s *redisSessionStore) Target(ctx context.Context, userID string) (string, error) {
	return s.get(ctx, userID, "target")
}

func (s *redisSessionStore) SetTarget(ctx context.Context, userID, target string) error {
	return s.set(ctx, userID, "target", target)
}

func (s *redisSessionStore) Clear(ctx context.Context, userID string) error {
	keys := make([]string, 0, len(sessionFields))
	for _, f := range sessionFields {
		keys = append(keys, sessionKey(userID, f))
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("session clear: %w", err)
	}
	return nil
}

// NewRedisClient dials the shared Redis used for session state.
func NewRedisClient(addr, password string, db int) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}
