package storage

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yourusername/media-forge/internal/media"
)

func newTestStorage(t *testing.T, maxFileSize int64) *Storage {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStorage(filepath.Join(dir, "uploads"), filepath.Join(dir, "outputs"), maxFileSize)
	if err != nil {
		t.Fatalf("NewStorage returned error: %v", err)
	}
	return s
}

// multipartHeader は実際のリクエスト経路を通して FileHeader を組み立てます。
func multipartHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fw, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	req := httptest.NewRequest("POST", "/api/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if err := req.ParseMultipartForm(32 << 20); err != nil {
		t.Fatalf("failed to parse multipart form: %v", err)
	}
	return req.MultipartForm.File["file"][0]
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func TestSaveUploadPNG(t *testing.T) {
	s := newTestStorage(t, 10*1024*1024)
	header := multipartHeader(t, "photo.png", pngBytes(t))

	upload, err := s.SaveUpload(header)
	if err != nil {
		t.Fatalf("SaveUpload returned error: %v", err)
	}

	if upload.ID == "" {
		t.Fatal("upload id is empty")
	}
	if upload.MediaType != media.TypeImage || upload.Format != "png" {
		t.Fatalf("unexpected media classification: %#v", upload)
	}
	if upload.OriginalName != "photo.png" {
		t.Fatalf("original name = %q", upload.OriginalName)
	}
	if !strings.HasSuffix(upload.Path, upload.ID+".png") {
		t.Fatalf("stored path should use the uuid name: %s", upload.Path)
	}
	if _, err := os.Stat(upload.Path); err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
}

func TestSaveUploadRejectsMismatchedContent(t *testing.T) {
	s := newTestStorage(t, 10*1024*1024)
	// 拡張子はPNGだが中身はテキスト
	header := multipartHeader(t, "fake.png", []byte("this is not an image at all"))

	_, err := s.SaveUpload(header)
	var mediaErr *media.Error
	if !errors.As(err, &mediaErr) || mediaErr.Code != media.CodeUnsupportedMediaType {
		t.Fatalf("err = %v, want UNSUPPORTED_MEDIA_TYPE", err)
	}

	// 拒否されたファイルは残さない
	entries, readErr := os.ReadDir(s.uploadDir)
	if readErr != nil {
		t.Fatalf("failed to read upload dir: %v", readErr)
	}
	if len(entries) != 0 {
		t.Fatalf("rejected upload left files behind: %d", len(entries))
	}
}

func TestSaveUploadRejectsUnknownExtension(t *testing.T) {
	s := newTestStorage(t, 10*1024*1024)
	header := multipartHeader(t, "data.xyz", []byte("whatever"))

	_, err := s.SaveUpload(header)
	var mediaErr *media.Error
	if !errors.As(err, &mediaErr) || mediaErr.Code != media.CodeUnsupportedMediaType {
		t.Fatalf("err = %v, want UNSUPPORTED_MEDIA_TYPE", err)
	}
}

func TestSaveUploadSizeLimit(t *testing.T) {
	s := newTestStorage(t, 10)
	header := multipartHeader(t, "photo.png", pngBytes(t))

	_, err := s.SaveUpload(header)
	var mediaErr *media.Error
	if !errors.As(err, &mediaErr) || mediaErr.Code != media.CodeInvalidInput {
		t.Fatalf("err = %v, want INVALID_INPUT", err)
	}
}

func TestReserveOutputPathUnique(t *testing.T) {
	s := newTestStorage(t, 0)

	first := s.ReserveOutputPath("report.pdf", "txt")
	if !strings.HasSuffix(first, ".txt") {
		t.Fatalf("unexpected extension: %s", first)
	}
	if !strings.Contains(filepath.Base(first), "report_") {
		t.Fatalf("base name should derive from original: %s", first)
	}

	// 先約のパスを実ファイルで塞いでも別のパスが返る
	if err := os.WriteFile(first, []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to occupy path: %v", err)
	}
	second := s.ReserveOutputPath("report.pdf", "txt")
	if second == first {
		t.Fatal("reserved path collided")
	}
}

func TestReserveOutputPathFallbackBase(t *testing.T) {
	s := newTestStorage(t, 0)
	path := s.ReserveOutputPath(".mp3", "mp3")
	if !strings.Contains(filepath.Base(path), "output_") {
		t.Fatalf("expected fallback base name: %s", path)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"song.mp3", "song.mp3"},
		{"../../etc/passwd", "passwd"},
		{`c:\tmp\evil.mp4`, "evil.mp4"},
		{"a/b/c.png", "c.png"},
		{"we?ird*name.jpg", "we_ird_name.jpg"},
		{"", "file"},
		{"..", "file"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
