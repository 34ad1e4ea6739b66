package queue

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobType identifies what a queued job does.
type JobType string

const (
	JobInitialScan JobType = "initial-scan"
	JobInitialSync JobType = "initial-sync"
	JobReconcile   JobType = "reconcile-connection"
	JobMatch       JobType = "match-job"
	JobGenerate    JobType = "generate-job"
	JobRegenerate  JobType = "regenerate-job"
)

// noConnection marks job ids for jobs not tied to a connection.
const noConnection = "no-connection"

// Job is one unit of queued work. Payload carries job-type-specific
// parameters and must survive a JSON round trip through redis.
type Job struct {
	ID           string                 `json:"id"`
	Type         JobType                `json:"type"`
	ConnectionID *uuid.UUID             `json:"connectionId,omitempty"`
	UserID       uuid.UUID              `json:"userId"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
	EnqueuedAt   time.Time              `json:"enqueuedAt"`
	Attempts     int                    `json:"attempts"`
}

// NewJobID builds the canonical job id:
// {type}-{connectionId|no-connection}-{unixMillis}.
func NewJobID(jobType JobType, connectionID *uuid.UUID) string {
	conn := noConnection
	if connectionID != nil {
		conn = connectionID.String()
	}
	return fmt.Sprintf("%s-%s-%d", jobType, conn, time.Now().UnixMilli())
}

// ParseJobID recovers the type, connection id and enqueue time from a
// job id. Parsed right to left since both the type and a uuid contain
// hyphens.
func ParseJobID(id string) (JobType, *uuid.UUID, time.Time, error) {
	lastDash := strings.LastIndex(id, "-")
	if lastDash < 0 {
		return "", nil, time.Time{}, fmt.Errorf("malformed job id %q", id)
	}
	millis, err := strconv.ParseInt(id[lastDash+1:], 10, 64)
	if err != nil {
		return "", nil, time.Time{}, fmt.Errorf("malformed job id %q: bad timestamp", id)
	}
	started := time.UnixMilli(millis)

	rest := id[:lastDash]
	if strings.HasSuffix(rest, "-"+noConnection) {
		jobType := JobType(strings.TrimSuffix(rest, "-"+noConnection))
		if jobType == "" {
			return "", nil, time.Time{}, fmt.Errorf("malformed job id %q: empty type", id)
		}
		return jobType, nil, started, nil
	}

	// A uuid is the last 36 characters of what remains.
	if len(rest) < 38 {
		return "", nil, time.Time{}, fmt.Errorf("malformed job id %q", id)
	}
	connPart := rest[len(rest)-36:]
	connID, err := uuid.Parse(connPart)
	if err != nil {
		return "", nil, time.Time{}, fmt.Errorf("malformed job id %q: bad connection id", id)
	}
	jobType := JobType(strings.TrimSuffix(rest[:len(rest)-36], "-"))
	if jobType == "" {
		return "", nil, time.Time{}, fmt.Errorf("malformed job id %q: empty type", id)
	}
	return jobType, &connID, started, nil
}
