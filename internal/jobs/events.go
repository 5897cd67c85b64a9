package jobs

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventSink は進捗・完了・失敗のイベント通知先です。
// 配信はベストエフォートで、イベントの欠落はジョブの正しさに影響しません
// （状態はいつでもポーリングで取得できます）。
type EventSink interface {
	Progress(jobID string, percent int)
	Completed(jobID string, filename string)
	Failed(jobID string, message string)
}

// NopSink は何もしない EventSink です。
type NopSink struct{}

func (NopSink) Progress(string, int)     {}
func (NopSink) Completed(string, string) {}
func (NopSink) Failed(string, string)    {}

// jobEvent は Pub/Sub に流すイベントのペイロードです。
type jobEvent struct {
	JobID    string `json:"jobId"`
	Type     string `json:"type"` // progress / completed / failed
	Percent  int    `json:"percent,omitempty"`
	Filename string `json:"filename,omitempty"`
	Error    string `json:"error,omitempty"`
}

// RedisEventSink はジョブイベントを Redis Pub/Sub チャンネルへ配信します。
type RedisEventSink struct {
	rdb     *redis.Client
	channel string
	logger  *log.Logger
}

// NewRedisEventSink は RedisEventSink を作成します。
func NewRedisEventSink(rdb *redis.Client, channel string, logger *log.Logger) *RedisEventSink {
	if channel == "" {
		channel = "media:events"
	}
	return &RedisEventSink{rdb: rdb, channel: channel, logger: logger}
}

func (s *RedisEventSink) Progress(jobID string, percent int) {
	s.publish(jobEvent{JobID: jobID, Type: "progress", Percent: percent})
}

func (s *RedisEventSink) Completed(jobID string, filename string) {
	s.publish(jobEvent{JobID: jobID, Type: "completed", Percent: 100, Filename: filename})
}

func (s *RedisEventSink) Failed(jobID string, message string) {
	s.publish(jobEvent{JobID: jobID, Type: "failed", Error: message})
}

func (s *RedisEventSink) publish(event jobEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.rdb.Publish(ctx, s.channel, payload).Err(); err != nil && s.logger != nil {
		s.logger.Printf("failed to publish job event job=%s type=%s: %v", event.JobID, event.Type, err)
	}
}
