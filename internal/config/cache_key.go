package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// JobMonitorChannel returns the Redis PubSub channel name for a job's live monitor
func (r *CacheKeyStruct) JobMonitorChannel(jobID string) string {
	return fmt.Sprintf("job:%s:monitor", jobID)
}

// SessionPlagiarismCheckedKey returns the key marking that a session's coding
// answers were already queued for plagiarism checks
func (r *CacheKeyStruct) SessionPlagiarismCheckedKey(sessionID string) string {
	return fmt.Sprintf("session:%s:plagiarism_queued", sessionID)
}

var CacheKey = NewCacheKeyStruct()
