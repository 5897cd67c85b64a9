package media

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
)

// defaultImageQuality はJPEG出力のデフォルト品質です。
const defaultImageQuality = 90

// rgbOnlyFormats はアルファチャンネルを保持できない出力フォーマットです。
var rgbOnlyFormats = newFormatSet("jpg", "jpeg", "bmp", "pdf")

type imageConverter struct {
	inputs  formatSet
	outputs formatSet
}

func newImageConverter() *imageConverter {
	return &imageConverter{
		inputs:  newFormatSet("jpg", "jpeg", "png", "gif", "bmp", "tiff", "tif", "webp"),
		outputs: newFormatSet("jpg", "jpeg", "png", "gif", "bmp", "tiff", "tif", "pdf"),
	}
}

func (c *imageConverter) InputFormats() []string  { return c.inputs.sorted() }
func (c *imageConverter) OutputFormats() []string { return c.outputs.sorted() }

// Convert は画像ファイルを指定フォーマットへ変換します。
func (c *imageConverter) Convert(ctx context.Context, inputPath, outputPath, outputFormat string, opts Options, ctrl Control) error {
	outputFormat = strings.ToLower(outputFormat)
	if !c.outputs.contains(outputFormat) {
		return newError(CodeUnsupportedFormat, "出力フォーマット "+outputFormat+" には対応していません。", nil)
	}

	if err := ctrl.Checkpoint("load", 10); err != nil {
		return err
	}

	img, err := decodeImageFile(inputPath)
	if err != nil {
		return err
	}

	if err := ctrl.Checkpoint("process", 30); err != nil {
		return err
	}

	img = applyImageOptions(img, opts)

	if err := ctrl.Checkpoint("process", 50); err != nil {
		return err
	}

	if rgbOnlyFormats.contains(outputFormat) {
		img = flattenToRGB(img)
	}

	if err := ctrl.Checkpoint("write", 70); err != nil {
		return err
	}

	quality := defaultImageQuality
	if v, ok := opts.Int("quality"); ok && v > 0 {
		quality = v
	}

	if outputFormat == "pdf" {
		if err := imageToPDF(img, outputPath, quality); err != nil {
			return err
		}
	} else if err := encodeImageFile(outputPath, img, outputFormat, quality); err != nil {
		return err
	}

	ctrl.Report("completed", 100)
	return nil
}

// applyImageOptions はリサイズ・回転オプションを適用します。
func applyImageOptions(img image.Image, opts Options) image.Image {
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()

	width, hasWidth := opts.Int("width")
	height, hasHeight := opts.Int("height")

	switch {
	case hasWidth && width > 0 && hasHeight && height > 0:
		img = scaleImage(img, width, height)
	case hasWidth && width > 0:
		ratio := float64(width) / float64(srcW)
		img = scaleImage(img, width, int(float64(srcH)*ratio))
	case hasHeight && height > 0:
		ratio := float64(height) / float64(srcH)
		img = scaleImage(img, int(float64(srcW)*ratio), height)
	}

	// 最長辺の上限指定（縦横比は維持）
	if maxDim, ok := opts.Int("max_dimension"); ok && maxDim > 0 {
		b := img.Bounds()
		if b.Dx() > maxDim || b.Dy() > maxDim {
			ratio := float64(maxDim) / float64(b.Dx())
			if r := float64(maxDim) / float64(b.Dy()); r < ratio {
				ratio = r
			}
			img = scaleImage(img, int(float64(b.Dx())*ratio), int(float64(b.Dy())*ratio))
		}
	}

	if degrees, ok := opts.Int("rotate"); ok {
		img = rotateImage(img, degrees)
	}

	return img
}

// imageToPDF は画像を1ページのPDFとして出力します（pdfcpuの画像インポート）。
func imageToPDF(img image.Image, outputPath string, quality int) error {
	// pdfcpu はファイル単位で取り込むため、一旦JPEGに落としてからインポートする
	tmpPath := outputPath + ".import.jpg"
	if err := encodeImageFile(tmpPath, img, "jpg", quality); err != nil {
		return err
	}
	defer os.Remove(tmpPath)

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o750); err != nil {
		return newError(CodeEncodeFailed, "出力ディレクトリを作成できませんでした。", err)
	}

	imp := pdfcpu.DefaultImportConfig()
	if err := api.ImportImagesFile([]string{tmpPath}, outputPath, imp, nil); err != nil {
		return newError(CodeEncodeFailed, "PDFへの変換に失敗しました。", err)
	}
	return nil
}
