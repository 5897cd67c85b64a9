// Package jobs は変換・圧縮ジョブの状態管理と非同期実行を提供します。
package jobs

import (
	"time"

	"github.com/yourusername/media-forge/internal/media"
)

// Status はジョブの実行状態を表します。
// uploaded -> running -> {completed, failed} の一方向にのみ遷移します。
type Status string

const (
	StatusUploaded  Status = "uploaded"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ProgressInfo は進捗の補足情報を表します。
type ProgressInfo struct {
	Percent int    `json:"percent"`
	Stage   string `json:"stage,omitempty"`
}

// ErrorInfo はジョブ失敗時のエラー情報を保持します。
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Record はジョブの現在状態を表します。
type Record struct {
	JobID        string        `json:"jobId"`
	Kind         media.Kind    `json:"kind"`
	MediaType    media.Type    `json:"mediaType"`
	InputPath    string        `json:"inputPath"`
	OutputPath   string        `json:"outputPath,omitempty"`
	OriginalName string        `json:"originalName"`
	OutputFormat string        `json:"outputFormat,omitempty"`
	TargetSizeMB float64       `json:"targetSizeMb,omitempty"`
	Options      media.Options `json:"options,omitempty"`

	Status          Status       `json:"status"`
	Progress        ProgressInfo `json:"progress"`
	Error           *ErrorInfo   `json:"error,omitempty"`
	CancelRequested bool         `json:"cancelRequested,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// Terminal は終端状態（completed / failed）かどうかを返します。
// 終端に達したレコードは以後変更されません。
func (r *Record) Terminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

// MarkRunning は uploaded -> running の遷移を行います。
// それ以外の状態からは遷移せず false を返します。
func (r *Record) MarkRunning() bool {
	if r.Status != StatusUploaded {
		return false
	}
	r.Status = StatusRunning
	return true
}

// ApplyProgress は進捗を更新します。値は [0,100] にクランプされ、
// 実行中のみ、かつ単調非減少でのみ反映されます。
func (r *Record) ApplyProgress(stage string, percent int) bool {
	if r.Status != StatusRunning {
		return false
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if percent < r.Progress.Percent {
		return false
	}
	r.Progress = ProgressInfo{Percent: percent, Stage: stage}
	return true
}

// MarkCompleted は running -> completed の終端遷移を行います。
// 既に終端の場合は何もしません（重複完了通知への防御）。
func (r *Record) MarkCompleted() bool {
	if r.Terminal() {
		return false
	}
	r.Status = StatusCompleted
	r.Progress = ProgressInfo{Percent: 100, Stage: "completed"}
	r.Error = nil
	return true
}

// MarkFailed は終端遷移 failed を行います。既に終端の場合は何もしません。
func (r *Record) MarkFailed(code, message string) bool {
	if r.Terminal() {
		return false
	}
	r.Status = StatusFailed
	r.Error = &ErrorInfo{Code: code, Message: message}
	return true
}

// RequestCancel はキャンセル要求フラグを立てます。一度立てたら降ろせません。
// 終端状態では要求は受け付けません。
func (r *Record) RequestCancel() bool {
	if r.Terminal() || r.CancelRequested {
		return false
	}
	r.CancelRequested = true
	return true
}
