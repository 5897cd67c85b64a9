package media

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writeGradientPNG(t *testing.T, path string, width, height int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 100, A: 200})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
}

func TestImageConvertPNGToJPEG(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "input.png")
	outputPath := filepath.Join(dir, "output.jpg")
	writeGradientPNG(t, inputPath, 40, 30)

	c := newImageConverter()
	if err := c.Convert(context.Background(), inputPath, outputPath, "jpg", nil, Control{}); err != nil {
		t.Fatalf("Convert returned error: %v", err)
	}

	out, err := decodeImageFile(outputPath)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if out.Bounds().Dx() != 40 || out.Bounds().Dy() != 30 {
		t.Fatalf("unexpected output bounds: %v", out.Bounds())
	}
}

func TestImageConvertResizeOptions(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "input.png")
	writeGradientPNG(t, inputPath, 100, 50)

	c := newImageConverter()

	// 幅だけ指定したら縦横比を維持する
	outputPath := filepath.Join(dir, "resized.png")
	opts := Options{"width": float64(50)}
	if err := c.Convert(context.Background(), inputPath, outputPath, "png", opts, Control{}); err != nil {
		t.Fatalf("Convert returned error: %v", err)
	}
	out, err := decodeImageFile(outputPath)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if out.Bounds().Dx() != 50 || out.Bounds().Dy() != 25 {
		t.Fatalf("unexpected resized bounds: %v", out.Bounds())
	}

	// 最長辺の上限指定
	outputPath = filepath.Join(dir, "capped.png")
	opts = Options{"max_dimension": float64(40)}
	if err := c.Convert(context.Background(), inputPath, outputPath, "png", opts, Control{}); err != nil {
		t.Fatalf("Convert returned error: %v", err)
	}
	out, _ = decodeImageFile(outputPath)
	if out.Bounds().Dx() != 40 || out.Bounds().Dy() != 20 {
		t.Fatalf("unexpected capped bounds: %v", out.Bounds())
	}
}

func TestImageConvertRotate(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "input.png")
	outputPath := filepath.Join(dir, "rotated.png")
	writeGradientPNG(t, inputPath, 60, 20)

	c := newImageConverter()
	opts := Options{"rotate": float64(90)}
	if err := c.Convert(context.Background(), inputPath, outputPath, "png", opts, Control{}); err != nil {
		t.Fatalf("Convert returned error: %v", err)
	}

	out, err := decodeImageFile(outputPath)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	// 90度回転で縦横が入れ替わる
	if out.Bounds().Dx() != 20 || out.Bounds().Dy() != 60 {
		t.Fatalf("unexpected rotated bounds: %v", out.Bounds())
	}
}

func TestImageConvertToPDF(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "input.png")
	outputPath := filepath.Join(dir, "output.pdf")
	writeGradientPNG(t, inputPath, 40, 40)

	c := newImageConverter()
	if err := c.Convert(context.Background(), inputPath, outputPath, "pdf", nil, Control{}); err != nil {
		t.Fatalf("Convert returned error: %v", err)
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if len(data) < 5 || string(data[:5]) != "%PDF-" {
		t.Fatalf("output is not a PDF, head=%q", data[:min(len(data), 10)])
	}

	// インポート用の一時JPEGが残っていないこと
	if _, err := os.Stat(outputPath + ".import.jpg"); !os.IsNotExist(err) {
		t.Fatalf("temp import file left behind, stat err=%v", err)
	}
}

func TestImageConvertUnsupportedOutput(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "input.png")
	writeGradientPNG(t, inputPath, 10, 10)

	c := newImageConverter()
	err := c.Convert(context.Background(), inputPath, filepath.Join(dir, "out.webp"), "webp", nil, Control{})
	var mediaErr *Error
	if !errors.As(err, &mediaErr) || mediaErr.Code != CodeUnsupportedFormat {
		t.Fatalf("err = %v, want UNSUPPORTED_FORMAT", err)
	}
}

func TestImageConvertCancelled(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "input.png")
	outputPath := filepath.Join(dir, "out.jpg")
	writeGradientPNG(t, inputPath, 10, 10)

	ctrl := Control{Cancel: func() bool { return true }}
	c := newImageConverter()
	err := c.Convert(context.Background(), inputPath, outputPath, "jpg", nil, ctrl)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if _, err := os.Stat(outputPath); !os.IsNotExist(err) {
		t.Fatalf("cancelled conversion should not write output, stat err=%v", err)
	}
}

func TestFlattenToRGBOnWhite(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	// 完全に透明なピクセルは白で塗りつぶされる
	img.Set(0, 0, color.NRGBA{R: 0, G: 0, B: 0, A: 0})
	img.Set(1, 1, color.NRGBA{R: 255, G: 0, B: 0, A: 255})

	flat := flattenToRGB(img)
	r, g, b, _ := flat.At(0, 0).RGBA()
	if r>>8 != 255 || g>>8 != 255 || b>>8 != 255 {
		t.Fatalf("transparent pixel should flatten to white, got (%d,%d,%d)", r>>8, g>>8, b>>8)
	}
	r, g, b, _ = flat.At(1, 1).RGBA()
	if r>>8 != 255 || g>>8 != 0 || b>>8 != 0 {
		t.Fatalf("opaque pixel changed, got (%d,%d,%d)", r>>8, g>>8, b>>8)
	}
}

func TestScaleImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 60))
	small := scaleImage(img, 50, 30)
	if small.Bounds().Dx() != 50 || small.Bounds().Dy() != 30 {
		t.Fatalf("unexpected bounds: %v", small.Bounds())
	}
}

func TestRotateImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	r90 := rotateImage(img, 90)
	if r90.Bounds().Dx() != 2 || r90.Bounds().Dy() != 4 {
		t.Fatalf("90: unexpected bounds %v", r90.Bounds())
	}
	r180 := rotateImage(img, 180)
	if r180.Bounds().Dx() != 4 || r180.Bounds().Dy() != 2 {
		t.Fatalf("180: unexpected bounds %v", r180.Bounds())
	}
	// 対応していない角度はそのまま返す
	same := rotateImage(img, 45)
	if same != image.Image(img) {
		t.Fatal("unsupported angle should return the input unchanged")
	}
}
