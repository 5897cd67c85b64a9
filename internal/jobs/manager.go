package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/hibiken/asynq"

	"github.com/yourusername/media-forge/internal/config"
	"github.com/yourusername/media-forge/internal/media"
)

const (
	taskTypeMedia = "media:process"
	queueMedia    = "media"
)

// StatsRecorder は完了したジョブの統計を記録します。
type StatsRecorder interface {
	RecordConversion(inputFormat, outputFormat string, inputSize, outputSize int64)
}

// Manager はジョブの投入・実行・状態管理を担います。
// ワーカー内で発生したエラーは必ずジョブテーブルに記録され、
// スケジューラ境界を越えて伝播することはありません。
type Manager struct {
	cfg    *config.Config
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	store  Store
	svc    *media.Service
	sink   EventSink
	stats  StatsRecorder
	logger *log.Logger
}

// TaskPayload はメディア処理ジョブのペイロードです。
// ジョブの詳細はストアのレコードが持つため、IDだけを運びます。
type TaskPayload struct {
	JobID string `json:"jobId"`
}

// NewManager は Manager を初期化します。sink / stats は nil でも構いません。
func NewManager(cfg *config.Config, svc *media.Service, store Store, sink EventSink, stats StatsRecorder, logger *log.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if svc == nil {
		return nil, errors.New("media service is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if sink == nil {
		sink = NopSink{}
	}

	opt, err := asynq.ParseRedisURI(cfg.QueueRedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			// 同時実行数を固定し、負荷時のリソース枯渇を防ぐ
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				queueMedia: 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	manager := &Manager{
		cfg:    cfg,
		client: client,
		server: server,
		mux:    mux,
		store:  store,
		svc:    svc,
		sink:   sink,
		stats:  stats,
		logger: logger,
	}
	mux.HandleFunc(taskTypeMedia, manager.handleMediaTask)
	return manager, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && err != asynq.ErrServerClosed {
			if m.logger != nil {
				m.logger.Printf("asynq server stopped with error: %v", err)
			} else {
				log.Printf("asynq server stopped with error: %v", err)
			}
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.server.Shutdown()
	m.client.Close()
	return nil
}

// Enqueue はレコードを保存し、ジョブをキューに投入します。
// 呼び出し元はワーカーの完了を待たず、即座に制御が戻ります。
func (m *Manager) Enqueue(ctx context.Context, record *Record) (string, error) {
	if record == nil {
		return "", fmt.Errorf("record is nil")
	}
	if record.JobID == "" {
		return "", fmt.Errorf("record.JobID is required")
	}

	if err := m.store.Upsert(ctx, record); err != nil {
		return "", err
	}

	body, err := json.Marshal(&TaskPayload{JobID: record.JobID})
	if err != nil {
		return "", err
	}

	// 失敗の扱いはジョブテーブルが唯一の正なので、Asynq側の再試行はさせない
	task := asynq.NewTask(taskTypeMedia, body, asynq.Queue(queueMedia))
	if _, err := m.client.EnqueueContext(ctx, task, asynq.MaxRetry(0)); err != nil {
		return "", err
	}
	return record.JobID, nil
}

// SaveRecord はジョブを実行せずにレコードだけを保存します。
// アップロード直後の uploaded 状態のレコード登録に使います。
func (m *Manager) SaveRecord(ctx context.Context, record *Record) error {
	return m.store.Upsert(ctx, record)
}

// GetRecord はジョブ情報を取得します。
func (m *Manager) GetRecord(ctx context.Context, jobID string) (*Record, error) {
	return m.store.Get(ctx, jobID)
}

// RequestCancel はキャンセル要求を記録します。
// ワーカーは次のチェックポイントで要求を検知するため、反映は即時ではありません。
func (m *Manager) RequestCancel(ctx context.Context, jobID string) error {
	return m.store.RequestCancel(ctx, jobID)
}

func (m *Manager) handleMediaTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}
	if payload.JobID == "" {
		return fmt.Errorf("missing jobId in payload")
	}

	record, err := m.store.Get(ctx, payload.JobID)
	if err != nil {
		return err
	}
	if record == nil {
		// レコードが期限切れで消えている。実行しても結果を記録できない
		if m.logger != nil {
			m.logger.Printf("job record expired before execution job=%s", payload.JobID)
		}
		return nil
	}
	if record.Terminal() {
		return nil
	}

	// uploaded -> running の獲得に成功した配信だけがジョブを実行する。
	// 二重投入や再配信は獲得に失敗し、ここで終わる
	claimed, err := m.store.MarkRunning(ctx, payload.JobID)
	if err != nil {
		return err
	}
	if !claimed {
		if m.logger != nil {
			m.logger.Printf("job already claimed, skipping delivery job=%s", payload.JobID)
		}
		return nil
	}

	m.runJob(ctx, record)
	return nil
}

// runJob は1ジョブを実行し、結果を必ずジョブテーブルへ記録します。
// panic もここで失敗として回収します。
func (m *Manager) runJob(ctx context.Context, record *Record) {
	jobID := record.JobID

	defer func() {
		if r := recover(); r != nil {
			m.failJob(ctx, record, media.CodeEncodeFailed, fmt.Sprintf("処理中に予期しないエラーが発生しました: %v", r))
		}
	}()

	ctrl := media.Control{
		Progress: func(stage string, percent int) {
			if err := m.store.UpdateProgress(ctx, jobID, stage, percent); err != nil && m.logger != nil {
				m.logger.Printf("failed to update progress job=%s: %v", jobID, err)
			}
			m.sink.Progress(jobID, percent)
		},
		Cancel: func() bool {
			cancelled, err := m.store.CancelRequested(ctx, jobID)
			if err != nil && m.logger != nil {
				m.logger.Printf("failed to poll cancel flag job=%s: %v", jobID, err)
			}
			return cancelled
		},
	}

	var runErr error
	switch record.Kind {
	case media.KindConversion:
		runErr = m.svc.Convert(ctx, record.MediaType, record.InputPath, record.OutputPath, record.OutputFormat, record.Options, ctrl)
	case media.KindCompression:
		runErr = m.svc.Compress(ctx, record.MediaType, record.InputPath, record.OutputPath, record.TargetSizeMB, ctrl)
	default:
		runErr = fmt.Errorf("unsupported job kind: %s", record.Kind)
	}

	if runErr != nil {
		code, message := media.CodeEncodeFailed, runErr.Error()
		var mediaErr *media.Error
		if errors.As(runErr, &mediaErr) {
			code, message = mediaErr.Code, mediaErr.Message
		}
		if code == media.CodeCancelled {
			// キャンセルされたジョブの中途半端な出力は残さない
			_ = os.Remove(record.OutputPath)
		}
		m.failJob(ctx, record, code, message)
		return
	}

	if err := m.store.MarkCompleted(ctx, jobID); err != nil {
		if m.logger != nil {
			m.logger.Printf("failed to mark job completed job=%s: %v", jobID, err)
		}
		return
	}
	m.sink.Completed(jobID, filepath.Base(record.OutputPath))
	m.recordStats(record)
}

func (m *Manager) failJob(ctx context.Context, record *Record, code, message string) {
	if err := m.store.MarkFailed(ctx, record.JobID, code, message); err != nil && m.logger != nil {
		m.logger.Printf("failed to mark job failed job=%s: %v", record.JobID, err)
	}
	m.sink.Failed(record.JobID, message)
}

func (m *Manager) recordStats(record *Record) {
	if m.stats == nil {
		return
	}

	var inputSize, outputSize int64
	if info, err := os.Stat(record.InputPath); err == nil {
		inputSize = info.Size()
	}
	if info, err := os.Stat(record.OutputPath); err == nil {
		outputSize = info.Size()
	}

	outputFormat := record.OutputFormat
	if outputFormat == "" {
		outputFormat = media.Extension(record.OutputPath)
	}
	m.stats.RecordConversion(media.Extension(record.InputPath), outputFormat, inputSize, outputSize)
}
