package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"clarichat/internal/models"
	"clarichat/internal/redis"
)

const listCacheTTL = 30 * time.Second

func listCacheKey(userID int64) string {
	return fmt.Sprintf("chat:list:%d", userID)
}

func (s *Service) loadCachedList(ctx context.Context, userID int64) ([]models.ConversationSummary, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, listCacheKey(userID))
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			log.Printf("list cache get failed: %v", err)
		}
		return nil, false
	}
	var summaries []models.ConversationSummary
	if err := json.Unmarshal([]byte(raw), &summaries); err != nil {
		log.Printf("list cache decode failed: %v", err)
		return nil, false
	}
	return summaries, true
}

func (s *Service) storeCachedList(ctx context.Context, userID int64, summaries []models.ConversationSummary) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(summaries)
	if err != nil {
		log.Printf("list cache marshal failed: %v", err)
		return
	}
	if err := s.cache.Set(ctx, listCacheKey(userID), data, listCacheTTL); err != nil {
		log.Printf("list cache set failed: %v", err)
	}
}

func (s *Service) invalidateListCache(ctx context.Context, userID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, listCacheKey(userID)); err != nil && !errors.Is(err, redis.ErrCacheMiss) {
		log.Printf("list cache invalidate failed: %v", err)
	}
}
