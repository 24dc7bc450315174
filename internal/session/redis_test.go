package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/m3rciful/receiptbot/internal/flows"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

const testPrefix = "receiptbot:test:session:"

type RedisStoreTestSuite struct {
	suite.Suite
	client *redis.Client
	store  *Redis
	ctx    context.Context
}

func TestRedisStoreSuite(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not reachable at %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = client.Close() })

	suite.Run(t, &RedisStoreTestSuite{client: client})
}

func (s *RedisStoreTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewRedis(s.client, testPrefix, time.Minute)

	iter := s.client.Scan(s.ctx, 0, testPrefix+"*", 0).Iterator()
	for iter.Next(s.ctx) {
		s.Require().NoError(s.client.Del(s.ctx, iter.Val()).Err())
	}
	s.Require().NoError(iter.Err())
}

func (s *RedisStoreTestSuite) TestSaveGetClear() {
	in := &Session{
		UserID:     42,
		ActiveFlow: "sber-receipt",
		Cursor:     2,
		Answers: []flows.Answer{
			{Field: "name", Text: "Alice"},
			{Field: "amount", Text: "238 000 ₽"},
		},
	}
	s.Require().NoError(s.store.Save(s.ctx, in))

	got, err := s.store.Get(s.ctx, 42)
	s.Require().NoError(err)
	s.Equal(in.ActiveFlow, got.ActiveFlow)
	s.Equal(in.Cursor, got.Cursor)
	s.Equal(in.Answers, got.Answers)

	ttl, err := s.client.TTL(s.ctx, testPrefix+"42").Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))

	s.Require().NoError(s.store.Clear(s.ctx, 42))
	_, err = s.store.Get(s.ctx, 42)
	s.ErrorIs(err, ErrNotFound)
}

func (s *RedisStoreTestSuite) TestCorruptDocument() {
	s.Require().NoError(s.client.Set(s.ctx, testPrefix+"5", "{not json", time.Minute).Err())
	_, err := s.store.Get(s.ctx, 5)
	s.Error(err)
	s.NotErrorIs(err, ErrNotFound)
}
