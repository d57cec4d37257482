// internal/journal/journal.go
//
// Package journal pushes room lifecycle records onto a Redis list for an
// external consumer (dashboards, analytics). The service is fully functional
// without Redis: a nil *Journal silently drops records.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultQueueName is the Redis list room lifecycle records are pushed to.
var DefaultQueueName = "parlor_room_events"

// Record is one room lifecycle entry.
type Record struct {
	Event      string `json:"event"` // "room_created" | "room_removed"
	RoomID     string `json:"room_id"`
	Name       string `json:"name,omitempty"`
	HostUserID string `json:"host_user_id,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

type Journal struct {
	rdb   *redis.Client
	queue string
	log   *logrus.Logger
}

// Connect dials Redis using REDIS_ADDR / REDIS_DB and verifies the connection
// with a ping.
func Connect(log *logrus.Logger) (*Journal, error) {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   getEnvInt("REDIS_DB", 0),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	return &Journal{
		rdb:   rdb,
		queue: getEnv("JOURNAL_QUEUE_NAME", DefaultQueueName),
		log:   log,
	}, nil
}

// RoomCreated records a new room.
func (j *Journal) RoomCreated(ctx context.Context, roomID, name, hostUserID string) {
	j.publish(ctx, Record{
		Event:      "room_created",
		RoomID:     roomID,
		Name:       name,
		HostUserID: hostUserID,
		Timestamp:  time.Now().Unix(),
	})
}

// RoomRemoved records a room deletion.
func (j *Journal) RoomRemoved(ctx context.Context, roomID string) {
	j.publish(ctx, Record{
		Event:     "room_removed",
		RoomID:    roomID,
		Timestamp: time.Now().Unix(),
	})
}

func (j *Journal) publish(ctx context.Context, rec Record) {
	if j == nil {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		j.log.Warnf("journal: failed to marshal record: %v", err)
		return
	}
	if err := j.rdb.RPush(ctx, j.queue, data).Err(); err != nil {
		j.log.Warnf("journal: failed to RPush to '%s': %v", j.queue, err)
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	var v int
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return def
	}
	return v
}
