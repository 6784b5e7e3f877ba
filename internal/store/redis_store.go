package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vigilo/vigilo-backend/internal/config"
	"github.com/vigilo/vigilo-backend/internal/model"
)

// RedisAttemptStore holds the reload-durable slice of an active attempt:
// the exam id and the running malpractice count. Everything else lives in
// the in-memory controller and is rebuilt from the exam payload on
// reload. Violation increments are additionally pushed to the persist
// queue so the audit trail survives even if the attempt never finishes.
type RedisAttemptStore struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewRedisAttemptStore creates a Redis-backed attempt store.
func NewRedisAttemptStore(rdb *redis.Client, log zerolog.Logger) *RedisAttemptStore {
	return &RedisAttemptStore{
		rdb: rdb,
		log: log.With().Str("component", "attempt_store").Logger(),
	}
}

// SaveActiveExam records which exam the student is currently attempting.
// No TTL: the key lives until the attempt settles or is cancelled.
func (s *RedisAttemptStore) SaveActiveExam(ctx context.Context, studentID int, examID string) error {
	key := config.CacheKey.StudentExamIDKey(studentID)
	if err := s.rdb.Set(ctx, key, examID, 0).Err(); err != nil {
		return fmt.Errorf("save active exam: %w", err)
	}
	return nil
}

// LoadActiveExam returns the exam id of the student's active attempt, or
// "" when none is recorded.
func (s *RedisAttemptStore) LoadActiveExam(ctx context.Context, studentID int) (string, error) {
	key := config.CacheKey.StudentExamIDKey(studentID)
	val, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load active exam: %w", err)
	}
	return val, nil
}

// SaveViolationCount overwrites the durable counter and enqueues one
// violation event for the persistence worker. A queue push failure is
// logged but does not fail the save; the counter itself is what the
// reload path depends on.
func (s *RedisAttemptStore) SaveViolationCount(ctx context.Context, studentID int, examID string, count int) error {
	key := config.CacheKey.StudentMalpracticeCountKey(studentID)
	if err := s.rdb.Set(ctx, key, count, 0).Err(); err != nil {
		return fmt.Errorf("save violation count: %w", err)
	}

	event := model.ViolationEvent{
		StudentID: studentID,
		ExamID:    examID,
		Count:     count,
		Timestamp: time.Now().Unix(),
	}
	data, _ := json.Marshal(event)
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, data).Err(); err != nil {
		s.log.Error().Err(err).
			Int("student_id", studentID).
			Str("exam_id", examID).
			Msg("Failed to enqueue violation event")
	}
	return nil
}

// LoadViolationCount returns the durable counter, 0 when absent. A page
// reload restores from here so closing the tab never resets the count.
func (s *RedisAttemptStore) LoadViolationCount(ctx context.Context, studentID int) (int, error) {
	key := config.CacheKey.StudentMalpracticeCountKey(studentID)
	val, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load violation count: %w", err)
	}
	count, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid violation count in cache: %w", err)
	}
	return count, nil
}

// Clear removes both durable keys once the attempt settles.
func (s *RedisAttemptStore) Clear(ctx context.Context, studentID int) error {
	keys := []string{
		config.CacheKey.StudentExamIDKey(studentID),
		config.CacheKey.StudentMalpracticeCountKey(studentID),
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("clear attempt state: %w", err)
	}
	return nil
}
