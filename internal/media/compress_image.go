package media

import (
	"context"
	"image"
	"os"
)

type imageCompressor struct {
	formats formatSet
}

func newImageCompressor() *imageCompressor {
	return &imageCompressor{
		formats: newFormatSet("jpg", "jpeg", "png", "gif", "bmp", "tiff", "tif", "webp"),
	}
}

func (c *imageCompressor) Formats() []string { return c.formats.sorted() }

// Compress は画像を目標サイズ以下のJPEGへ圧縮します。
// JPEGの品質とサイズの関係は解析的に逆算できないため、品質ラダー →
// 解像度ラダーの順に実エンコードを繰り返す総当たり探索になります。
func (c *imageCompressor) Compress(ctx context.Context, inputPath, outputPath string, targetSizeMB float64, ctrl Control) error {
	if err := ctrl.Checkpoint("load", 10); err != nil {
		return err
	}

	info, err := os.Stat(inputPath)
	if err != nil {
		return newError(CodeInvalidInput, "入力ファイルを確認できませんでした。", err)
	}
	targetBytes := int64(targetSizeMB * 1024 * 1024)

	img, err := decodeImageFile(inputPath)
	if err != nil {
		return err
	}

	// 既に目標以下なら高品質で保存して終わり（再探索は不要）
	if info.Size() <= targetBytes {
		if err := encodeImageFile(outputPath, flattenToRGB(img), "jpg", imageFastPathQuality); err != nil {
			return err
		}
		ctrl.Report("completed", 100)
		return nil
	}

	if err := ctrl.Checkpoint("process", 20); err != nil {
		return err
	}

	// アルファ・パレットの平坦化は一度だけ行う
	flat := flattenToRGB(img)

	if err := ctrl.Checkpoint("process", 30); err != nil {
		return err
	}

	tempPath := outputPath + ".temp.jpg"

	// 品質ラダー: 1候補につき1回の実エンコードで実測する
	quality, ok, err := firstFit(imageQualityLadder, targetBytes, func(q int) (int64, error) {
		size, err := encodeAndMeasure(tempPath, flat, q)
		if err == nil {
			ctrl.Report("process", imageQualityProgress(q))
		}
		return size, err
	}, ctrl.Cancelled)
	if err != nil {
		_ = os.Remove(tempPath)
		return err
	}
	if ok {
		return acceptCandidate(tempPath, outputPath, flat, quality, 1.0, ctrl)
	}

	if err := ctrl.Checkpoint("process", 75); err != nil {
		return err
	}

	// 品質だけでは収まらないので解像度を落としていく
	scale, ok, err := firstFit(imageScaleLadder, targetBytes, func(s float64) (int64, error) {
		resized := scaleByFactor(flat, s)
		size, err := encodeAndMeasure(tempPath, resized, imageScaleQuality)
		if err == nil {
			ctrl.Report("process", imageScaleProgress(s))
		}
		return size, err
	}, ctrl.Cancelled)
	if err != nil {
		_ = os.Remove(tempPath)
		return err
	}
	if ok {
		return acceptCandidate(tempPath, outputPath, flat, imageScaleQuality, scale, ctrl)
	}

	// 最終手段: サイズ不問で縮小保存し、探索を必ず終了させる
	_ = os.Remove(tempPath)
	final := scaleByFactor(flat, imageFloorScale)
	if err := encodeImageFile(outputPath, final, "jpg", imageFloorQuality); err != nil {
		return err
	}

	ctrl.Report("completed", 100)
	return nil
}

// acceptCandidate は直前に試した候補の一時ファイルを出力位置へ採用します。
// 一時ファイルが残っていない場合（直前試行の条件と採用候補が一致しない場合）は
// 再エンコードします。
func acceptCandidate(tempPath, outputPath string, img image.Image, quality int, scale float64, ctrl Control) error {
	if _, err := os.Stat(tempPath); err != nil {
		target := img
		if scale != 1.0 {
			target = scaleByFactor(img, scale)
		}
		if err := encodeImageFile(tempPath, target, "jpg", quality); err != nil {
			return err
		}
	}
	if err := os.Rename(tempPath, outputPath); err != nil {
		return newError(CodeEncodeFailed, "出力ファイルの確定に失敗しました。", err)
	}
	ctrl.Report("completed", 100)
	return nil
}

// encodeAndMeasure は候補設定でエンコードし、実際のファイルサイズを返します。
func encodeAndMeasure(path string, img image.Image, quality int) (int64, error) {
	if err := encodeImageFile(path, img, "jpg", quality); err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, newError(CodeEncodeFailed, "エンコード結果を確認できませんでした。", err)
	}
	return info.Size(), nil
}

// scaleByFactor は線形倍率で画像を縮小します。
func scaleByFactor(img image.Image, factor float64) image.Image {
	b := img.Bounds()
	return scaleImage(img, int(float64(b.Dx())*factor), int(float64(b.Dy())*factor))
}
