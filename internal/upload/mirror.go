package upload

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"scribeit/internal/logger"
	"scribeit/internal/redis"
)

const (
	redisAbandonChannel = "upload:abandon"
	redisJobPrefix      = "upload:job:"
	redisJobTTL         = 30 * time.Minute
	redisOpTimeout      = 2 * time.Second
)

type abandonMessage struct {
	Owner string `json:"owner"`
	JobID string `json:"job_id"`
}

type mirroredSnapshot struct {
	Snapshot
	Owner string `json:"owner"`
}

// stateMirror copies job snapshots into redis so any instance can answer
// status reads, and relays abandon requests to the instance running the job.
type stateMirror struct {
	client *redis.Client
}

func newStateMirror(client *redis.Client) *stateMirror {
	return &stateMirror{client: client}
}

func (m *stateMirror) enabled() bool {
	return m != nil && m.client.Enabled()
}

func (m *stateMirror) store(snap Snapshot) {
	if !m.enabled() || snap.JobID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := m.client.SetJSON(ctx, redisJobPrefix+snap.JobID, mirroredSnapshot{Snapshot: snap, Owner: snap.Owner}, redisJobTTL); err != nil {
		logger.Warn(ctx, "upload mirror store failed", logger.Fields{"job_id": snap.JobID, "error": err.Error()})
	}
}

func (m *stateMirror) load(jobID string) (Snapshot, bool) {
	if !m.enabled() || jobID == "" {
		return Snapshot{}, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	var ms mirroredSnapshot
	if err := m.client.GetJSON(ctx, redisJobPrefix+jobID, &ms); err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			logger.Warn(ctx, "upload mirror load failed", logger.Fields{"job_id": jobID, "error": err.Error()})
		}
		return Snapshot{}, false
	}
	snap := ms.Snapshot
	snap.Owner = ms.Owner
	return snap, true
}

func (m *stateMirror) remove(jobID string) {
	if !m.enabled() || jobID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := m.client.Del(ctx, redisJobPrefix+jobID); err != nil && !errors.Is(err, redis.ErrCacheMiss) {
		logger.Warn(ctx, "upload mirror remove failed", logger.Fields{"job_id": jobID, "error": err.Error()})
	}
}

// publishAbandon broadcasts an abandon request for a job owned elsewhere.
func (m *stateMirror) publishAbandon(msg abandonMessage) {
	if !m.enabled() {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		logger.Warn(context.Background(), "upload abandon marshal failed", logger.Fields{"error": err.Error()})
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := m.client.Publish(ctx, redisAbandonChannel, payload); err != nil {
		logger.Warn(ctx, "upload abandon publish failed", logger.Fields{"job_id": msg.JobID, "error": err.Error()})
	}
}

// startListener hands abandon requests from other instances to handler.
func (m *stateMirror) startListener(ctx context.Context, handler func(abandonMessage)) error {
	if !m.enabled() || handler == nil {
		return nil
	}
	return m.client.Subscribe(ctx, redisAbandonChannel, func(payload string) {
		var msg abandonMessage
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			logger.Warn(ctx, "upload abandon decode failed", logger.Fields{"error": err.Error()})
			return
		}
		handler(msg)
	})
}
