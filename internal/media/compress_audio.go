package media

import (
	"context"
	"fmt"
	"strings"
)

type audioCompressor struct {
	ff      *ffmpegRunner
	formats formatSet
}

func newAudioCompressor(ff *ffmpegRunner) *audioCompressor {
	return &audioCompressor{
		ff:      ff,
		formats: newFormatSet("mp3", "wav", "ogg", "flac", "m4a", "aac", "wma"),
	}
}

func (c *audioCompressor) Formats() []string { return c.formats.sorted() }

// Compress は音声を目標サイズに向けて1パスで再エンコードします。
// 長さから推定したビットレートをラダーで段階に丸めるだけで、
// 結果サイズの再検証ループは持ちません。
func (c *audioCompressor) Compress(ctx context.Context, inputPath, outputPath string, targetSizeMB float64, ctrl Control) error {
	if err := ctrl.Checkpoint("load", 10); err != nil {
		return err
	}

	duration, err := c.ff.probeDuration(ctx, inputPath)
	if err != nil {
		return err
	}
	if duration <= 0 {
		return newError(CodeInvalidInput, "音声の長さを取得できませんでした。", nil)
	}

	if err := ctrl.Checkpoint("process", 30); err != nil {
		return err
	}

	kbps := selectAudioBitrate(targetSizeMB, duration)

	if err := ctrl.Checkpoint("process", 50); err != nil {
		return err
	}

	args := audioCompressArgs(inputPath, outputPath, kbps)
	if err := c.ff.runWithProgress(ctx, duration, ctrl, "process", 50, 95, args...); err != nil {
		return err
	}

	ctrl.Report("write", 100)
	return nil
}

// audioCompressArgs は音声圧縮用の ffmpeg 引数を組み立てます。
func audioCompressArgs(inputPath, outputPath string, kbps int) []string {
	args := []string{"-y", "-i", inputPath, "-vn"}

	// 出力拡張子に合わせたコーデック選択（変換時と同じ対応表）
	ext := Extension(outputPath)
	if codec := audioCodecs[ext]; codec != "" {
		args = append(args, "-c:a", codec)
	} else if ext == "aac" {
		args = append(args, "-c:a", "aac")
	} else if ext == "wma" {
		args = append(args, "-c:a", "wmav2")
	}

	// wav/flac など可逆系以外はビットレート指定が効く
	if !strings.EqualFold(ext, "wav") && !strings.EqualFold(ext, "flac") {
		args = append(args, "-b:a", fmt.Sprintf("%dk", kbps))
	}

	return append(args, outputPath)
}
