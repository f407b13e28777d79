package config

import "fmt"

type CacheKeyStruct struct{}

// UserSessionKey returns the cache key for a user's login session.
func (r *CacheKeyStruct) UserSessionKey(userID int) string {
	return fmt.Sprintf("login:%d", userID)
}

// AttemptSnapshotKey returns the cache key for an attempt's hot progress snapshot.
func (r *CacheKeyStruct) AttemptSnapshotKey(userID int, examID string) string {
	return fmt.Sprintf("user:%d:exam:%s:snapshot", userID, examID)
}

// ExamPayloadKey returns the cache key for a published exam's student payload.
func (r *CacheKeyStruct) ExamPayloadKey(examID string) string {
	return fmt.Sprintf("exam:%s:payload", examID)
}

var CacheKey = &CacheKeyStruct{}
