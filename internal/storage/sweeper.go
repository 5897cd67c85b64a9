package storage

import (
	"log"
	"os"
	"path/filepath"
	"time"
)

// Sweeper は保持期限を過ぎたアップロード・出力ファイルを定期的に削除します。
// ジョブレコードのTTLとは独立して動くため、レコードより先にファイルが
// 消えることがあります。ダウンロード側はファイルの不在を前提に扱ってください。
type Sweeper struct {
	dirs     []string
	maxAge   time.Duration
	interval time.Duration
	logger   *log.Logger
	stop     chan struct{}
	done     chan struct{}
}

// NewSweeper は Sweeper を作成します。
func NewSweeper(dirs []string, maxAge, interval time.Duration, logger *log.Logger) *Sweeper {
	if logger == nil {
		logger = log.Default()
	}
	return &Sweeper{
		dirs:     dirs,
		maxAge:   maxAge,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start は掃除ループをバックグラウンドで開始します。
func (s *Sweeper) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.SweepOnce(time.Now())
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop は掃除ループを停止し、終了を待ちます。
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

// SweepOnce は1回分の掃除を実行し、削除したファイル数を返します。
func (s *Sweeper) SweepOnce(now time.Time) int {
	removed := 0
	cutoff := now.Add(-s.maxAge)
	for _, dir := range s.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			s.logger.Printf("sweep: failed to read directory %s: %v", dir, err)
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if info.ModTime().After(cutoff) {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			if err := os.Remove(path); err != nil {
				s.logger.Printf("sweep: failed to remove %s: %v", path, err)
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		s.logger.Printf("sweep: removed %d expired files", removed)
	}
	return removed
}
