package jobs

import "testing"

func newTestRecord() *Record {
	return &Record{
		JobID:  "job-1",
		Status: StatusUploaded,
	}
}

func TestMarkRunningOnlyFromUploaded(t *testing.T) {
	r := newTestRecord()
	if !r.MarkRunning() {
		t.Fatal("uploaded -> running should succeed")
	}
	if r.Status != StatusRunning {
		t.Fatalf("status = %s, want running", r.Status)
	}
	if r.MarkRunning() {
		t.Fatal("running -> running should be rejected")
	}

	r.MarkCompleted()
	if r.MarkRunning() {
		t.Fatal("completed -> running should be rejected")
	}
}

func TestApplyProgressMonotonic(t *testing.T) {
	r := newTestRecord()

	// uploaded のうちは進捗を受け付けない
	if r.ApplyProgress("process", 10) {
		t.Fatal("progress before running should be rejected")
	}

	r.MarkRunning()
	if !r.ApplyProgress("process", 30) {
		t.Fatal("progress update should succeed")
	}
	if r.Progress.Percent != 30 || r.Progress.Stage != "process" {
		t.Fatalf("unexpected progress: %#v", r.Progress)
	}

	// 逆行は捨てる
	if r.ApplyProgress("process", 20) {
		t.Fatal("regressing progress should be rejected")
	}
	if r.Progress.Percent != 30 {
		t.Fatalf("progress changed on rejected update: %d", r.Progress.Percent)
	}

	// 同値は通す（ステージ名だけの更新）
	if !r.ApplyProgress("write", 30) {
		t.Fatal("equal progress should be accepted")
	}
}

func TestApplyProgressClamped(t *testing.T) {
	r := newTestRecord()
	r.MarkRunning()

	r.ApplyProgress("process", -5)
	if r.Progress.Percent != 0 {
		t.Fatalf("negative percent should clamp to 0, got %d", r.Progress.Percent)
	}
	r.ApplyProgress("process", 150)
	if r.Progress.Percent != 100 {
		t.Fatalf("oversized percent should clamp to 100, got %d", r.Progress.Percent)
	}
}

func TestMarkCompletedIdempotent(t *testing.T) {
	r := newTestRecord()
	r.MarkRunning()
	r.ApplyProgress("process", 60)

	if !r.MarkCompleted() {
		t.Fatal("first completion should succeed")
	}
	if r.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", r.Status)
	}
	if r.Progress.Percent != 100 {
		t.Fatalf("completed record must show 100, got %d", r.Progress.Percent)
	}

	// 重複完了は無視される
	if r.MarkCompleted() {
		t.Fatal("second completion should be a no-op")
	}
}

func TestMarkFailedIdempotentAndTerminal(t *testing.T) {
	r := newTestRecord()
	r.MarkRunning()

	if !r.MarkFailed("ENCODE_FAILED", "boom") {
		t.Fatal("first failure should succeed")
	}
	if r.Error == nil || r.Error.Code != "ENCODE_FAILED" {
		t.Fatalf("unexpected error info: %#v", r.Error)
	}

	// 終端後の遷移は全て拒否される
	if r.MarkCompleted() {
		t.Fatal("failed -> completed should be rejected")
	}
	if r.MarkFailed("CANCELLED", "late") {
		t.Fatal("failed -> failed should be a no-op")
	}
	if r.Error.Code != "ENCODE_FAILED" {
		t.Fatalf("error info overwritten: %#v", r.Error)
	}
	if r.ApplyProgress("process", 99) {
		t.Fatal("progress after terminal state should be rejected")
	}
}

func TestCompletionClearsError(t *testing.T) {
	r := newTestRecord()
	r.MarkRunning()
	r.Error = &ErrorInfo{Code: "ENCODE_FAILED", Message: "stale"}

	r.MarkCompleted()
	if r.Error != nil {
		t.Fatalf("completed record should not carry error: %#v", r.Error)
	}
}

func TestRequestCancelSetOnce(t *testing.T) {
	r := newTestRecord()
	r.MarkRunning()

	if !r.RequestCancel() {
		t.Fatal("first cancel request should succeed")
	}
	if !r.CancelRequested {
		t.Fatal("cancel flag not set")
	}
	if r.RequestCancel() {
		t.Fatal("second cancel request should be a no-op")
	}

	// 終端状態では要求を受け付けない
	done := newTestRecord()
	done.MarkRunning()
	done.MarkCompleted()
	if done.RequestCancel() {
		t.Fatal("cancel on terminal record should be rejected")
	}
}
