package stats

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stats.json")
	s, err := NewService(path)
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	return s, path
}

func TestNewServiceCreatesFile(t *testing.T) {
	_, path := newTestService(t)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stats file not created: %v", err)
	}
}

func TestRecordConversion(t *testing.T) {
	s, _ := newTestService(t)

	s.RecordConversion("wav", "mp3", 10*1024*1024, 2*1024*1024)
	s.RecordConversion("wav", "mp3", 5*1024*1024, 1*1024*1024)
	s.RecordConversion("png", "jpg", 100, 50)

	snap := s.Stats()
	if snap.TotalConversions != 3 {
		t.Fatalf("TotalConversions = %d, want 3", snap.TotalConversions)
	}
	if snap.Formats["wav->mp3"] != 2 {
		t.Fatalf("wav->mp3 count = %d, want 2", snap.Formats["wav->mp3"])
	}
	if snap.Formats["png->jpg"] != 1 {
		t.Fatalf("png->jpg count = %d, want 1", snap.Formats["png->jpg"])
	}
	// 8MB + 4MB と端数分
	if snap.TotalSizeSavedMB < 12 {
		t.Fatalf("TotalSizeSavedMB = %v, want >= 12", snap.TotalSizeSavedMB)
	}
	if len(snap.RecentActivity) != 3 {
		t.Fatalf("RecentActivity length = %d, want 3", len(snap.RecentActivity))
	}
	// 新しいものが先頭に来る
	if snap.RecentActivity[0].Details != "png->jpg" {
		t.Fatalf("newest activity = %q, want png->jpg", snap.RecentActivity[0].Details)
	}
}

func TestRecordConversionIgnoresNegativeSavings(t *testing.T) {
	s, _ := newTestService(t)

	// 変換で大きくなった場合は削減量に数えない
	s.RecordConversion("mp3", "wav", 100, 10*1024*1024)
	snap := s.Stats()
	if snap.TotalSizeSavedMB != 0 {
		t.Fatalf("TotalSizeSavedMB = %v, want 0", snap.TotalSizeSavedMB)
	}
	if snap.TotalConversions != 1 {
		t.Fatalf("TotalConversions = %d, want 1", snap.TotalConversions)
	}
}

func TestRecentActivityCapped(t *testing.T) {
	s, _ := newTestService(t)
	for i := 0; i < 60; i++ {
		s.RecordConversion("wav", "mp3", 100, 50)
	}
	snap := s.Stats()
	if len(snap.RecentActivity) != maxRecentActivity {
		t.Fatalf("RecentActivity length = %d, want %d", len(snap.RecentActivity), maxRecentActivity)
	}
}

func TestStatsPersistAcrossInstances(t *testing.T) {
	s, path := newTestService(t)
	s.RecordConversion("mp4", "gif", 1000, 200)

	reopened, err := NewService(path)
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	snap := reopened.Stats()
	if snap.TotalConversions != 1 || snap.Formats["mp4->gif"] != 1 {
		t.Fatalf("persisted stats not visible: %#v", snap)
	}
}

func TestCorruptedFileResetsToEmpty(t *testing.T) {
	s, path := newTestService(t)
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("failed to corrupt file: %v", err)
	}

	snap := s.Stats()
	if snap.TotalConversions != 0 || len(snap.RecentActivity) != 0 {
		t.Fatalf("corrupted file should read as empty: %#v", snap)
	}

	// 壊れた状態からでも記録は再開できる
	s.RecordConversion("wav", "mp3", 100, 50)
	if got := s.Stats().TotalConversions; got != 1 {
		t.Fatalf("TotalConversions = %d, want 1", got)
	}
}

func TestActivityTimestampFormat(t *testing.T) {
	s, _ := newTestService(t)
	fixed := time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	s.RecordConversion("wav", "mp3", 100, 50)
	snap := s.Stats()
	if snap.RecentActivity[0].Timestamp != "2026-02-14T12:00:00Z" {
		t.Fatalf("timestamp = %q", snap.RecentActivity[0].Timestamp)
	}
}
