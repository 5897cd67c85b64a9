package media

import (
	"context"
	"fmt"
	"strconv"
)

type videoCompressor struct {
	ff      *ffmpegRunner
	formats formatSet
}

func newVideoCompressor(ff *ffmpegRunner) *videoCompressor {
	return &videoCompressor{
		ff:      ff,
		formats: newFormatSet("mp4", "avi", "mkv", "mov", "webm", "wmv", "flv", "m4v"),
	}
}

func (c *videoCompressor) Formats() []string { return c.formats.sorted() }

// Compress は映像を目標サイズに向けて1パスで再エンコードします。
// コーデックのレート制御が目標ビットレートを十分正確に守るため、
// ビットレートは解析式で一度だけ決め、結果の再検証・再試行はしません。
// 失敗は出力ファイルの存在・サイズ検査でのみ検出します。
func (c *videoCompressor) Compress(ctx context.Context, inputPath, outputPath string, targetSizeMB float64, ctrl Control) error {
	if err := ctrl.Checkpoint("load", 5); err != nil {
		return err
	}

	duration, err := c.ff.probeDuration(ctx, inputPath)
	if err != nil {
		return err
	}
	if duration <= 0 {
		return newError(CodeInvalidInput, "動画の長さを取得できませんでした。", nil)
	}

	width, err := c.ff.probeVideoWidth(ctx, inputPath)
	if err != nil {
		return err
	}

	if err := ctrl.Checkpoint("process", 10); err != nil {
		return err
	}

	plan := planVideoCompression(targetSizeMB, duration, width)

	if err := ctrl.Checkpoint("process", 20); err != nil {
		return err
	}

	args := videoCompressArgs(inputPath, outputPath, plan)
	if err := c.ff.runWithProgress(ctx, duration, ctrl, "process", 30, 95, args...); err != nil {
		return err
	}

	ctrl.Report("write", 100)
	return nil
}

// videoCompressArgs は圧縮1パス分の ffmpeg 引数を組み立てます。
// maxrate/bufsize でピークレートを抑えます。
func videoCompressArgs(inputPath, outputPath string, plan videoCompressionPlan) []string {
	args := []string{
		"-y", "-i", inputPath,
		"-c:v", "libx264",
		"-b:v", strconv.Itoa(plan.BitrateBps),
		"-maxrate", strconv.Itoa(int(float64(plan.BitrateBps) * videoMaxrateFactor)),
		"-bufsize", strconv.Itoa(int(float64(plan.BitrateBps) * videoBufsizeFactor)),
		"-preset", "slow",
		"-c:a", "aac",
		"-b:a", "128k",
	}

	if plan.ScaleWidth > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:-2", plan.ScaleWidth))
	}

	return append(args, outputPath)
}
