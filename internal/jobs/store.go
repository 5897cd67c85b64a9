package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const jobKeyPrefix = "job:"

// Store はジョブ状態の永続化層です。ジョブテーブルは唯一の共有可変構造のため、
// 実装は1ジョブ内の書き込みと読み取りが競合しないことを保証します。
// 存在しないジョブの Get は (nil, nil) を返します。
// MarkRunning は uploaded -> running を獲得できた場合のみ true を返します。
type Store interface {
	Get(ctx context.Context, jobID string) (*Record, error)
	Upsert(ctx context.Context, record *Record) error
	MarkRunning(ctx context.Context, jobID string) (bool, error)
	UpdateProgress(ctx context.Context, jobID string, stage string, percent int) error
	MarkCompleted(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID string, code, message string) error
	RequestCancel(ctx context.Context, jobID string) error
	CancelRequested(ctx context.Context, jobID string) (bool, error)
}

// RedisStore はジョブ状態を Redis に保存します。
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore は RedisStore を作成します。
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		rdb: rdb,
		ttl: ttl,
	}
}

// Get はジョブ情報を取得します。
func (s *RedisStore) Get(ctx context.Context, jobID string) (*Record, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	data, err := s.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Upsert はジョブ情報を保存します（存在しない場合は作成）。
func (s *RedisStore) Upsert(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.ExpiresAt.IsZero() && s.ttl > 0 {
		record.ExpiresAt = record.CreatedAt.Add(s.ttl)
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, jobKey(record.JobID), payload, s.ttl).Err()
}

// MarkRunning は uploaded -> running の獲得を試みます。
// 同一ジョブを複数のワーカーが同時に実行しないよう、
// 獲得できたのはちょうど1回の呼び出しだけです。
func (s *RedisStore) MarkRunning(ctx context.Context, jobID string) (bool, error) {
	return s.updatePartial(ctx, jobID, func(record *Record) bool {
		return record.MarkRunning()
	})
}

// UpdateProgress は進捗を更新します。
func (s *RedisStore) UpdateProgress(ctx context.Context, jobID string, stage string, percent int) error {
	_, err := s.updatePartial(ctx, jobID, func(record *Record) bool {
		return record.ApplyProgress(stage, percent)
	})
	return err
}

// MarkCompleted はジョブ完了を記録します。
func (s *RedisStore) MarkCompleted(ctx context.Context, jobID string) error {
	_, err := s.updatePartial(ctx, jobID, func(record *Record) bool {
		return record.MarkCompleted()
	})
	return err
}

// MarkFailed はジョブ失敗を記録します。
func (s *RedisStore) MarkFailed(ctx context.Context, jobID string, code, message string) error {
	_, err := s.updatePartial(ctx, jobID, func(record *Record) bool {
		return record.MarkFailed(code, message)
	})
	return err
}

// RequestCancel はキャンセル要求フラグを立てます。
func (s *RedisStore) RequestCancel(ctx context.Context, jobID string) error {
	_, err := s.updatePartial(ctx, jobID, func(record *Record) bool {
		return record.RequestCancel()
	})
	return err
}

// CancelRequested はキャンセル要求の有無を返します。
// ワーカーがチェックポイントごとにポーリングします。
func (s *RedisStore) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	record, err := s.Get(ctx, jobID)
	if err != nil {
		return false, err
	}
	if record == nil {
		return false, nil
	}
	return record.CancelRequested, nil
}

// updatePartial はキーを WATCH した楽観ロックで読み込み・適用・書き戻しを行います。
// 他の書き手と競合した場合は最新のレコードで再試行するため、
// 進捗更新がキャンセル要求フラグを上書きするような巻き戻しは起きません。
// mutate が false を返した場合は書き込まず、(false, nil) を返します。
func (s *RedisStore) updatePartial(ctx context.Context, jobID string, mutate func(*Record) bool) (bool, error) {
	key := jobKey(jobID)
	for {
		var applied bool
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if err == redis.Nil {
					return fmt.Errorf("job not found: %s", jobID)
				}
				return err
			}
			var record Record
			if err := json.Unmarshal(data, &record); err != nil {
				return err
			}
			if !mutate(&record) {
				return nil
			}
			record.UpdatedAt = time.Now().UTC()
			payload, err := json.Marshal(&record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, s.ttl)
				return nil
			})
			if err != nil {
				return err
			}
			applied = true
			return nil
		}, key)
		if err == redis.TxFailedErr {
			continue
		}
		return applied, err
	}
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}
