package checkin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"presage/attendance/internal/model"
)

// Mint-side session cache. Minting happens every few seconds per active
// session, so session rows are kept in Redis under a short TTL. Cache
// failures degrade to a store read and never fail the request.

func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

func (s *Service) cacheSession(ctx context.Context, session model.Session) {
	if s.redis == nil {
		return
	}
	data, err := json.Marshal(session)
	if err != nil {
		return
	}
	_ = s.redis.Set(ctx, sessionKey(session.ID), data, s.cacheTTL).Err()
}

func (s *Service) loadCachedSession(ctx context.Context, sessionID string) (model.Session, bool) {
	if s.redis == nil {
		return model.Session{}, false
	}
	value, err := s.redis.Get(ctx, sessionKey(sessionID)).Result()
	if err == redis.Nil {
		return model.Session{}, false
	}
	if err != nil {
		return model.Session{}, false
	}
	var session model.Session
	if err := json.Unmarshal([]byte(value), &session); err != nil {
		return model.Session{}, false
	}
	return session, true
}

func (s *Service) dropCachedSession(ctx context.Context, sessionID string) {
	if s.redis == nil {
		return
	}
	_ = s.redis.Del(ctx, sessionKey(sessionID)).Err()
}
