// Package redis implements runstore.Store on Redis with go-redis v9.
//
// Layout, with the default "assistmesh" prefix:
//
//	assistmesh:run:<id>          hash   user_id, agent_name, created_at
//	assistmesh:run:<id>:turns    list   JSON encoded turns in arrival order
//	assistmesh:user:<uid>:runs   zset   run ids scored by creation time
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hupe1980/assistmesh/core"
	"github.com/hupe1980/assistmesh/runstore"
)

// Options configures the store.
type Options struct {
	Addr     string
	Password string
	DB       int

	// Client reuses an existing client instead of dialing Addr.
	Client goredis.UniversalClient

	// Prefix namespaces every key (default "assistmesh").
	Prefix string
}

// Store is a Redis backed runstore.Store.
type Store struct {
	client goredis.UniversalClient
	prefix string
	owned  bool
}

// New creates the store. go-redis dials lazily, so New performs no I/O.
func New(optFns ...func(o *Options)) *Store {
	opts := Options{
		Addr:   "localhost:6379",
		Prefix: "assistmesh",
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Client != nil {
		return &Store{client: opts.Client, prefix: opts.Prefix}
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	return &Store{client: client, prefix: opts.Prefix, owned: true}
}

func (s *Store) runKey(runID string) string   { return fmt.Sprintf("%s:run:%s", s.prefix, runID) }
func (s *Store) turnsKey(runID string) string { return fmt.Sprintf("%s:run:%s:turns", s.prefix, runID) }
func (s *Store) userKey(userID string) string { return fmt.Sprintf("%s:user:%s:runs", s.prefix, userID) }

// ensureRunScript creates the run hash and its user index entry in one step.
// KEYS: run hash, user zset. ARGV: id, user_id, agent_name, created_at.
var ensureRunScript = goredis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("HSET", KEYS[1], "id", ARGV[1], "user_id", ARGV[2], "agent_name", ARGV[3], "created_at", ARGV[4])
redis.call("ZADD", KEYS[2], ARGV[4], ARGV[1])
return 1
`)

// ensureRun records the run once. Only the first writer sets its fields and
// adds it to the user index.
func (s *Store) ensureRun(ctx context.Context, run core.Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	return ensureRunScript.Run(ctx, s.client,
		[]string{s.runKey(run.ID), s.userKey(run.UserID)},
		run.ID, run.UserID, run.AgentName, run.CreatedAt.UnixMicro(),
	).Err()
}

// CreateRun implements runstore.Store.
func (s *Store) CreateRun(ctx context.Context, run core.Run) error {
	if err := s.ensureRun(ctx, run); err != nil {
		return runstore.Unavailable("create run", err)
	}
	return nil
}

// GetRun implements runstore.Store.
func (s *Store) GetRun(ctx context.Context, runID string) (core.Run, error) {
	fields, err := s.client.HGetAll(ctx, s.runKey(runID)).Result()
	if err != nil {
		return core.Run{}, runstore.Unavailable("get run", err)
	}
	if len(fields) == 0 {
		return core.Run{}, runstore.ErrRunNotFound
	}

	run := core.Run{ID: runID, UserID: fields["user_id"], AgentName: fields["agent_name"]}
	if micros, err := strconv.ParseInt(fields["created_at"], 10, 64); err == nil {
		run.CreatedAt = time.UnixMicro(micros).UTC()
	}

	return run, nil
}

// AppendTurn implements runstore.Store. RPUSH is atomic, so concurrent
// appends keep arrival order.
func (s *Store) AppendTurn(ctx context.Context, runID string, turn core.Turn) error {
	if err := s.ensureRun(ctx, core.Run{ID: runID}); err != nil {
		return runstore.Unavailable("append", err)
	}

	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("runstore append: encode turn: %w", err)
	}

	if err := s.client.RPush(ctx, s.turnsKey(runID), payload).Err(); err != nil {
		return runstore.Unavailable("append", err)
	}

	return nil
}

// History implements runstore.Store.
func (s *Store) History(ctx context.Context, runID string) ([]core.Turn, error) {
	raw, err := s.client.LRange(ctx, s.turnsKey(runID), 0, -1).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, runstore.Unavailable("history", err)
	}

	turns := make([]core.Turn, 0, len(raw))
	for _, r := range raw {
		var t core.Turn
		if err := json.Unmarshal([]byte(r), &t); err != nil {
			return nil, fmt.Errorf("runstore history: decode turn: %w", err)
		}
		turns = append(turns, t)
	}

	return turns, nil
}

// ListRunIDs implements runstore.Store.
func (s *Store) ListRunIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.client.ZRange(ctx, s.userKey(userID), 0, -1).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, runstore.Unavailable("list runs", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// Close implements runstore.Store. Clients passed in through Options stay open.
func (s *Store) Close() error {
	if s.owned {
		return s.client.Close()
	}
	return nil
}
