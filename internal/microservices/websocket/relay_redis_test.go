package websocket

import (
	"context"
	"errors"
	"testing"
	"time"

	wire "meetrix/pkg/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

// RedisRelaySuite simulates two api-server instances sharing one Redis
type RedisRelaySuite struct {
	suite.Suite
	redis  *miniredis.Miniredis
	hubA   *Hub // where the business event happens
	hubB   *Hub // where the user is connected
	relayA *RedisRelay
	relayB *RedisRelay
	stop   context.CancelFunc
	done   chan error
}

func (s *RedisRelaySuite) newClient() *redis.Client {
	c := redis.NewClient(&redis.Options{Addr: s.redis.Addr(), MaxRetries: -1})
	s.T().Cleanup(func() { _ = c.Close() })
	return c
}

func (s *RedisRelaySuite) SetupTest() {
	s.redis = miniredis.RunT(s.T())
	s.hubA, s.hubB = NewHub(nil), NewHub(nil)
	s.relayA = NewRedisRelay(s.newClient(), s.hubA, nil)
	s.relayB = NewRedisRelay(s.newClient(), s.hubB, nil)

	var ctx context.Context
	ctx, s.stop = context.WithCancel(context.Background())
	s.done = make(chan error, 1)
	go func() { s.done <- s.relayB.Run(ctx) }()

	s.Require().Eventually(func() bool {
		return s.redis.PubSubNumPat() > 0
	}, time.Second, 10*time.Millisecond)
}

func (s *RedisRelaySuite) TearDownTest() {
	s.stop()
	select {
	case <-s.done:
	case <-time.After(time.Second):
		s.Fail("relay did not stop")
	}
}

func (s *RedisRelaySuite) TestDeliversAcrossInstances() {
	alice := newQueueClient("alice", 4)
	s.hubB.Register(alice)

	s.relayA.Publish("alice", wire.EventNotificationCount, wire.CountPayload{UnreadCount: 2})

	frame := receiveFrame(s.T(), alice)
	s.Equal(wire.NotificationsIdentifier(), frame.Identifier)
	s.JSONEq(`{"type":"notification_count","unread_count":2}`, string(frame.Message))
}

func (s *RedisRelaySuite) TestOtherUsersSeeNothing() {
	alice := newQueueClient("alice", 1)
	bob := newQueueClient("bob", 1)
	s.hubB.Register(alice)
	s.hubB.Register(bob)

	s.relayA.Publish("bob", wire.EventAllNotificationsRead, wire.AllReadPayload{})

	receiveFrame(s.T(), bob)
	s.Never(func() bool { return len(alice.send) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func (s *RedisRelaySuite) TestFallsBackToLocalHubWhenRedisIsDown() {
	alice := newQueueClient("alice", 1)
	s.hubA.Register(alice)
	s.relayA.timeout = 200 * time.Millisecond

	s.redis.Close()
	s.relayA.Publish("alice", wire.EventAllNotificationsRead, wire.AllReadPayload{})

	frame := receiveFrame(s.T(), alice)
	s.JSONEq(`{"type":"all_notifications_read","count":0}`, string(frame.Message))
}

func (s *RedisRelaySuite) TestRunReturnsOnCancel() {
	s.stop()
	select {
	case err := <-s.done:
		s.True(errors.Is(err, context.Canceled) || err == nil, "unexpected error %v", err)
		s.done <- err // let TearDownTest observe it too
	case <-time.After(time.Second):
		s.Fail("relay did not stop")
	}
}

func TestRedisRelaySuite(t *testing.T) {
	suite.Run(t, new(RedisRelaySuite))
}
