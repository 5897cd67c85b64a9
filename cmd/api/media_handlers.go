package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/media-forge/internal/jobs"
	"github.com/yourusername/media-forge/internal/media"
	"github.com/yourusername/media-forge/internal/stats"
	"github.com/yourusername/media-forge/internal/storage"
)

// capabilitiesHandler は GET /api/capabilities のハンドラーを返します。
func capabilitiesHandler(svc *media.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"capabilities": svc.Capabilities()})
	}
}

// statsHandler は GET /api/stats のハンドラーを返します。
func statsHandler(svc *stats.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.Stats())
	}
}

// uploadHandler は POST /api/upload のハンドラーを返します。
// ファイルを保存し、uploaded 状態のジョブレコードを作成します。
func uploadHandler(store *storage.Storage, manager *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "multipart/form-data の file フィールドでファイルを送信してください。",
			})
			return
		}

		upload, err := store.SaveUpload(header)
		if err != nil {
			respondWithError(c, err)
			return
		}

		record := &jobs.Record{
			JobID:        upload.ID,
			MediaType:    upload.MediaType,
			InputPath:    upload.Path,
			OriginalName: upload.OriginalName,
			Status:       jobs.StatusUploaded,
		}
		if err := manager.SaveRecord(c.Request.Context(), record); err != nil {
			_ = os.Remove(upload.Path)
			respondWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"fileId":    upload.ID,
			"filename":  upload.OriginalName,
			"size":      upload.Size,
			"mediaType": upload.MediaType,
			"format":    upload.Format,
		})
	}
}

type convertRequest struct {
	FileID       string         `json:"fileId"`
	OutputFormat string         `json:"outputFormat"`
	Options      map[string]any `json:"options"`
}

// convertHandler は POST /api/convert のハンドラーを返します。
// フォーマット検証はジョブ投入前に同期で行い、
// 非対応の組み合わせではレコードに一切手を触れません。
func convertHandler(svc *media.Service, store *storage.Storage, manager *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req convertRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "リクエストボディをJSONとして解釈できませんでした。",
			})
			return
		}

		req.FileID = strings.TrimSpace(req.FileID)
		req.OutputFormat = strings.ToLower(strings.TrimSpace(req.OutputFormat))
		if req.FileID == "" || req.OutputFormat == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "fileId と outputFormat を指定してください。",
			})
			return
		}

		record, ok := loadUploadedRecord(c, manager, req.FileID)
		if !ok {
			return
		}

		inputFormat := media.Extension(record.InputPath)
		if !svc.CanConvert(record.MediaType, inputFormat, req.OutputFormat) {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "UNSUPPORTED_FORMAT",
				"message": fmt.Sprintf("%s から %s への変換には対応していません。", inputFormat, req.OutputFormat),
			})
			return
		}

		record.Kind = media.KindConversion
		record.OutputFormat = req.OutputFormat
		record.Options = media.Options(req.Options)
		record.OutputPath = store.ReserveOutputPath(record.OriginalName, req.OutputFormat)

		jobID, err := manager.Enqueue(c.Request.Context(), record)
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"jobId": jobID})
	}
}

type compressRequest struct {
	FileID       string  `json:"fileId"`
	TargetSizeMB float64 `json:"targetSizeMb"`
}

// compressHandler は POST /api/compress のハンドラーを返します。
// 圧縮は音声・映像・画像のみ対応です。
func compressHandler(svc *media.Service, store *storage.Storage, manager *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req compressRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "リクエストボディをJSONとして解釈できませんでした。",
			})
			return
		}

		req.FileID = strings.TrimSpace(req.FileID)
		if req.FileID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "fileId を指定してください。",
			})
			return
		}
		if req.TargetSizeMB <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "targetSizeMb は正の値で指定してください。",
			})
			return
		}

		record, ok := loadUploadedRecord(c, manager, req.FileID)
		if !ok {
			return
		}

		if _, err := svc.CompressorFor(record.MediaType); err != nil {
			respondWithError(c, err)
			return
		}
		inputFormat := media.Extension(record.InputPath)
		if !svc.CanCompress(record.MediaType, inputFormat) {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "UNSUPPORTED_FORMAT",
				"message": fmt.Sprintf("フォーマット %s の圧縮には対応していません。", inputFormat),
			})
			return
		}

		// 画像圧縮の出力は常にJPEGになる
		outputFormat := inputFormat
		if record.MediaType == media.TypeImage {
			outputFormat = "jpg"
		}

		record.Kind = media.KindCompression
		record.TargetSizeMB = req.TargetSizeMB
		record.OutputFormat = outputFormat
		record.OutputPath = store.ReserveOutputPath(record.OriginalName, outputFormat)

		jobID, err := manager.Enqueue(c.Request.Context(), record)
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"jobId": jobID})
	}
}

// loadUploadedRecord は処理開始前のレコードを取得します。
// 見つからない、または既に処理が始まっている場合はレスポンス済みで false を返します。
func loadUploadedRecord(c *gin.Context, manager *jobs.Manager, fileID string) (*jobs.Record, bool) {
	record, err := manager.GetRecord(c.Request.Context(), fileID)
	if err != nil {
		respondWithError(c, err)
		return nil, false
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "JOB_NOT_FOUND",
			"message": "指定されたファイルは存在しないか、有効期限が切れています。",
		})
		return nil, false
	}
	if record.Status != jobs.StatusUploaded {
		c.JSON(http.StatusConflict, gin.H{
			"code":    "JOB_NOT_READY",
			"message": "このファイルは既に処理が開始されています。",
		})
		return nil, false
	}
	return record, true
}

// jobStatusHandler は GET /api/jobs/:id のハンドラーを返します。
func jobStatusHandler(manager *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		record, ok := loadRecord(c, manager)
		if !ok {
			return
		}

		payload := gin.H{
			"jobId":     record.JobID,
			"kind":      record.Kind,
			"mediaType": record.MediaType,
			"status":    record.Status,
			"progress": gin.H{
				"percent": record.Progress.Percent,
				"stage":   record.Progress.Stage,
			},
			"updatedAt": record.UpdatedAt,
		}
		if record.Error != nil {
			payload["error"] = record.Error
		}
		c.JSON(http.StatusOK, payload)
	}
}

// jobCancelHandler は POST /api/jobs/:id/cancel のハンドラーを返します。
// キャンセルは協調的で、ワーカーが次のチェックポイントに達するまで
// ジョブは動き続けます。終端状態のジョブへの要求は何もしません。
func jobCancelHandler(manager *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		record, ok := loadRecord(c, manager)
		if !ok {
			return
		}

		if !record.Terminal() {
			if err := manager.RequestCancel(c.Request.Context(), record.JobID); err != nil {
				respondWithError(c, err)
				return
			}
		}
		c.JSON(http.StatusAccepted, gin.H{
			"jobId":  record.JobID,
			"status": record.Status,
		})
	}
}

// jobDownloadHandler は GET /api/jobs/:id/download のハンドラーを返します。
func jobDownloadHandler(manager *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		record, ok := loadRecord(c, manager)
		if !ok {
			return
		}

		if record.Status != jobs.StatusCompleted {
			c.JSON(http.StatusConflict, gin.H{
				"code":    "JOB_NOT_READY",
				"message": "ジョブはまだ完了していません。",
			})
			return
		}

		file, err := os.Open(record.OutputPath)
		if err != nil {
			// 保持期限切れで掃除済みのファイルはジョブごと無かった扱いにする
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "JOB_NOT_FOUND",
				"message": "ジョブの成果物は有効期限が切れています。",
			})
			return
		}
		defer file.Close()

		info, err := file.Stat()
		if err != nil {
			respondWithError(c, err)
			return
		}

		downloadName := downloadFilename(record)
		encodedName := url.PathEscape(downloadName)
		c.Header("Content-Type", "application/octet-stream")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", downloadName, encodedName))
		c.Header("Cache-Control", "no-store")
		c.Header("X-Job-Id", record.JobID)
		c.DataFromReader(http.StatusOK, info.Size(), "application/octet-stream", file, nil)
	}
}

func loadRecord(c *gin.Context, manager *jobs.Manager) (*jobs.Record, bool) {
	jobID := strings.TrimSpace(c.Param("id"))
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "jobId を指定してください。",
		})
		return nil, false
	}

	record, err := manager.GetRecord(c.Request.Context(), jobID)
	if err != nil {
		respondWithError(c, err)
		return nil, false
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "JOB_NOT_FOUND",
			"message": "指定されたジョブは存在しません。",
		})
		return nil, false
	}
	return record, true
}

// downloadFilename は元のファイル名に出力フォーマットの拡張子を付け直した
// ダウンロード用ファイル名を返します。
func downloadFilename(record *jobs.Record) string {
	base := strings.TrimSuffix(record.OriginalName, filepath.Ext(record.OriginalName))
	ext := record.OutputFormat
	if ext == "" {
		ext = media.Extension(record.OutputPath)
	}
	if base == "" {
		return filepath.Base(record.OutputPath)
	}
	return base + "." + ext
}

func respondWithError(c *gin.Context, err error) {
	var mediaErr *media.Error
	if errors.As(err, &mediaErr) {
		status := http.StatusBadRequest
		switch mediaErr.Code {
		case media.CodeJobNotFound:
			status = http.StatusNotFound
		case media.CodeJobNotReady:
			status = http.StatusConflict
		case media.CodeEncodeFailed:
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{
			"code":    mediaErr.Code,
			"message": mediaErr.Message,
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    "INTERNAL_ERROR",
		"message": "サーバー内部でエラーが発生しました。",
	})
}
