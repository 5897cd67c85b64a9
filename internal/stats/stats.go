// Package stats は変換実績の簡易統計を提供します。
// 統計はJSONファイルに永続化されます。厳密な集計ではなく、
// 利用状況の目安として扱ってください。
package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const maxRecentActivity = 50

// Activity は直近の変換1件の記録です。
type Activity struct {
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Details   string `json:"details"`
}

// Snapshot は統計の現在値です。
type Snapshot struct {
	TotalConversions int            `json:"total_conversions"`
	TotalSizeSavedMB float64        `json:"total_size_saved_mb"`
	Formats          map[string]int `json:"formats"`
	RecentActivity   []Activity     `json:"recent_activity"`
}

// Service はJSONファイルに裏付けられた統計サービスです。
// すべての操作はミューテックスで直列化されます。
type Service struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewService は統計サービスを初期化します。
// ファイルが無ければ空の統計で作成します。
func NewService(path string) (*Service, error) {
	s := &Service{
		path: path,
		now:  time.Now,
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.save(emptySnapshot()); err != nil {
			return nil, fmt.Errorf("failed to initialize stats file: %w", err)
		}
	}
	return s, nil
}

// RecordConversion はジョブ1件の完了を記録します。
// 圧縮で小さくならなかった場合、削減サイズは0として扱います。
func (s *Service) RecordConversion(inputFormat, outputFormat string, inputSize, outputSize int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.load()
	snap.TotalConversions++

	if saved := inputSize - outputSize; saved > 0 {
		snap.TotalSizeSavedMB += float64(saved) / (1024 * 1024)
	}

	key := inputFormat + "->" + outputFormat
	snap.Formats[key]++

	snap.RecentActivity = append([]Activity{{
		Timestamp: s.now().Format(time.RFC3339),
		Type:      "conversion",
		Details:   key,
	}}, snap.RecentActivity...)
	if len(snap.RecentActivity) > maxRecentActivity {
		snap.RecentActivity = snap.RecentActivity[:maxRecentActivity]
	}

	// 保存失敗は統計を失うだけなので、呼び出し元へは伝播させない
	_ = s.save(snap)
}

// Stats は統計の現在値を返します。
func (s *Service) Stats() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Service) load() Snapshot {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return emptySnapshot()
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		// 壊れたファイルは空の統計として読み直す
		return emptySnapshot()
	}
	if snap.Formats == nil {
		snap.Formats = make(map[string]int)
	}
	if snap.RecentActivity == nil {
		snap.RecentActivity = []Activity{}
	}
	return snap
}

func (s *Service) save(snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "    ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(s.path, data, 0o644)
}

func emptySnapshot() Snapshot {
	return Snapshot{
		Formats:        make(map[string]int),
		RecentActivity: []Activity{},
	}
}
