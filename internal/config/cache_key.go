package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionKey returns the cache key for a student's login session
func (r *CacheKeyStruct) StudentSessionKey(studentID int) string {
	return fmt.Sprintf("login:%d", studentID)
}

// StudentExamIDKey returns the reload-durable key holding the exam a
// student is currently attempting. Fixed name per the portal contract.
func (r *CacheKeyStruct) StudentExamIDKey(studentID int) string {
	return fmt.Sprintf("student:%d:examId", studentID)
}

// StudentMalpracticeCountKey returns the reload-durable key holding the
// running violation count for a student's active attempt.
func (r *CacheKeyStruct) StudentMalpracticeCountKey(studentID int) string {
	return fmt.Sprintf("student:%d:malpracticeCount", studentID)
}

// ExamPayloadKey returns the cache key for an exam's student-facing payload
func (r *CacheKeyStruct) ExamPayloadKey(examID string) string {
	return fmt.Sprintf("exam:%s:payload", examID)
}

// ExamAnswerKey returns the cache key for an exam's answer key
func (r *CacheKeyStruct) ExamAnswerKey(examID string) string {
	return fmt.Sprintf("exam:%s:key", examID)
}

var CacheKey = NewCacheKeyStruct()
