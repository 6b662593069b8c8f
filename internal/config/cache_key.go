package config

import (
	"fmt"

	"github.com/google/uuid"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SnapshotKey returns the autosave key for one user's attempt at an exam.
func (r *CacheKeyStruct) SnapshotKey(examID uuid.UUID, userID int) string {
	return fmt.Sprintf("exam_%s_%d", examID, userID)
}

// ExamDefinitionKey returns the cache key for a full exam definition
func (r *CacheKeyStruct) ExamDefinitionKey(examID uuid.UUID) string {
	return fmt.Sprintf("exam:%s:definition", examID)
}

// ExamStatsKey returns the cache key for an exam's aggregated stats
func (r *CacheKeyStruct) ExamStatsKey(examID uuid.UUID) string {
	return fmt.Sprintf("exam:%s:stats", examID)
}

var CacheKey = NewCacheKeyStruct()
