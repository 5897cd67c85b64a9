package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore はジョブ状態をプロセス内メモリに保持する Store 実装です。
// Redis を用意しないローカル開発とテストで使用します。
// レコードはプロセス再起動まで保持され、期限切れのものだけ見えなくなります。
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore は MemoryStore を作成します。
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get はジョブ情報のコピーを返します。期限切れ・未登録の場合は (nil, nil) です。
func (s *MemoryStore) Get(ctx context.Context, jobID string) (*Record, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[jobID]
	if !ok || s.expired(record) {
		return nil, nil
	}
	copied := *record
	return &copied, nil
}

// Upsert はジョブ情報を保存します（存在しない場合は作成）。
func (s *MemoryStore) Upsert(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	now := s.now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.ExpiresAt.IsZero() && s.ttl > 0 {
		record.ExpiresAt = record.CreatedAt.Add(s.ttl)
	}

	copied := *record
	s.mu.Lock()
	s.records[record.JobID] = &copied
	s.mu.Unlock()
	return nil
}

// MarkRunning は uploaded -> running の獲得を試みます。
// 獲得できた場合のみ true を返します。
func (s *MemoryStore) MarkRunning(ctx context.Context, jobID string) (bool, error) {
	return s.updatePartial(jobID, func(record *Record) bool {
		return record.MarkRunning()
	})
}

// UpdateProgress は進捗を更新します。
func (s *MemoryStore) UpdateProgress(ctx context.Context, jobID string, stage string, percent int) error {
	_, err := s.updatePartial(jobID, func(record *Record) bool {
		return record.ApplyProgress(stage, percent)
	})
	return err
}

// MarkCompleted はジョブ完了を記録します。
func (s *MemoryStore) MarkCompleted(ctx context.Context, jobID string) error {
	_, err := s.updatePartial(jobID, func(record *Record) bool {
		return record.MarkCompleted()
	})
	return err
}

// MarkFailed はジョブ失敗を記録します。
func (s *MemoryStore) MarkFailed(ctx context.Context, jobID string, code, message string) error {
	_, err := s.updatePartial(jobID, func(record *Record) bool {
		return record.MarkFailed(code, message)
	})
	return err
}

// RequestCancel はキャンセル要求フラグを立てます。
func (s *MemoryStore) RequestCancel(ctx context.Context, jobID string) error {
	_, err := s.updatePartial(jobID, func(record *Record) bool {
		return record.RequestCancel()
	})
	return err
}

// CancelRequested はキャンセル要求の有無を返します。
func (s *MemoryStore) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	record, err := s.Get(ctx, jobID)
	if err != nil {
		return false, err
	}
	if record == nil {
		return false, nil
	}
	return record.CancelRequested, nil
}

func (s *MemoryStore) updatePartial(jobID string, mutate func(*Record) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[jobID]
	if !ok || s.expired(record) {
		return false, fmt.Errorf("job not found: %s", jobID)
	}
	if !mutate(record) {
		return false, nil
	}
	record.UpdatedAt = s.now().UTC()
	return true, nil
}

func (s *MemoryStore) expired(record *Record) bool {
	return !record.ExpiresAt.IsZero() && s.now().After(record.ExpiresAt)
}
