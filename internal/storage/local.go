// Package storage はアップロードと出力のローカルファイル管理を提供します。
package storage

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/yourusername/media-forge/internal/media"
)

// Upload は保存済みアップロードファイルのメタ情報です。
type Upload struct {
	ID           string     `json:"id"`
	Path         string     `json:"-"`
	OriginalName string     `json:"filename"`
	Size         int64      `json:"size"`
	MediaType    media.Type `json:"mediaType"`
	Format       string     `json:"format"`
}

// Storage はローカルファイルシステム上のアップロード・出力ディレクトリを管理します。
type Storage struct {
	uploadDir   string
	outputDir   string
	maxFileSize int64
}

// NewStorage は Storage を初期化し、必要なディレクトリを作成します。
func NewStorage(uploadDir, outputDir string, maxFileSize int64) (*Storage, error) {
	for _, dir := range []string{uploadDir, outputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return &Storage{
		uploadDir:   uploadDir,
		outputDir:   outputDir,
		maxFileSize: maxFileSize,
	}, nil
}

// SaveUpload はアップロードされたファイルを検証して保存します。
// ファイル名は信用せず、UUIDベースの名前で保存します。
// 拡張子から判定したメディア種別と実際の内容が食い違う場合はエラーになります。
func (s *Storage) SaveUpload(header *multipart.FileHeader) (*Upload, error) {
	if header == nil {
		return nil, &media.Error{Code: media.CodeInvalidInput, Message: "ファイルを選択してください。"}
	}
	if s.maxFileSize > 0 && header.Size > s.maxFileSize {
		return nil, &media.Error{
			Code:    media.CodeInvalidInput,
			Message: fmt.Sprintf("ファイルサイズが上限（%dMB）を超えています。", s.maxFileSize/(1024*1024)),
		}
	}

	originalName := sanitizeFilename(header.Filename)
	ext := media.Extension(originalName)
	mediaType, ok := media.DetectType(originalName)
	if !ok {
		return nil, &media.Error{
			Code:    media.CodeUnsupportedMediaType,
			Message: fmt.Sprintf("拡張子 %q には対応していません。", ext),
		}
	}

	src, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	id := uuid.NewString()
	path := filepath.Join(s.uploadDir, id+"."+ext)
	dst, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload file: %w", err)
	}

	written, err := io.Copy(dst, src)
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to store uploaded file: %w", err)
	}

	if err := verifyContentType(path, mediaType); err != nil {
		_ = os.Remove(path)
		return nil, err
	}

	return &Upload{
		ID:           id,
		Path:         path,
		OriginalName: originalName,
		Size:         written,
		MediaType:    mediaType,
		Format:       ext,
	}, nil
}

// UploadPath はアップロードIDと拡張子から保存先パスを返します。
func (s *Storage) UploadPath(id, format string) string {
	return filepath.Join(s.uploadDir, id+"."+format)
}

// ReserveOutputPath は元のファイル名をもとに、衝突しない出力パスを確保します。
// 例: report.pdf -> <outputDir>/report_3f2a9b1c.txt
func (s *Storage) ReserveOutputPath(originalName, outputFormat string) string {
	base := strings.TrimSuffix(sanitizeFilename(originalName), filepath.Ext(originalName))
	if base == "" {
		base = "output"
	}
	for {
		suffix := uuid.NewString()[:8]
		path := filepath.Join(s.outputDir, fmt.Sprintf("%s_%s.%s", base, suffix, outputFormat))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
	}
}

// verifyContentType はファイル内容を実際にスニッフし、
// 拡張子から期待されるメディア種別と矛盾しないか確認します。
func verifyContentType(path string, expected media.Type) error {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return fmt.Errorf("failed to detect content type: %w", err)
	}

	detected := mtype.String()
	if contentTypeMatches(detected, expected) {
		return nil
	}
	return &media.Error{
		Code:    media.CodeUnsupportedMediaType,
		Message: fmt.Sprintf("ファイルの内容（%s）が拡張子と一致しません。", detected),
	}
}

func contentTypeMatches(detected string, expected media.Type) bool {
	switch expected {
	case media.TypeAudio:
		// 一部の音声コンテナ（m4aなど)は video/mp4 としてスニッフされる
		return strings.HasPrefix(detected, "audio/") ||
			strings.HasPrefix(detected, "video/") ||
			detected == "application/octet-stream"
	case media.TypeVideo:
		return strings.HasPrefix(detected, "video/") ||
			detected == "application/octet-stream"
	case media.TypeImage:
		return strings.HasPrefix(detected, "image/")
	case media.TypeDocument:
		return detected == "application/pdf"
	default:
		return false
	}
}

// sanitizeFilename はパス区切りや制御文字を除去したファイル名を返します。
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20, r == 0x7f:
			// 制御文字は落とす
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	cleaned := strings.TrimSpace(b.String())
	if cleaned == "" || cleaned == "." || cleaned == ".." {
		return "file"
	}
	return cleaned
}
