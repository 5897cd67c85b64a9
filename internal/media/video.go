package media

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// videoCodecs はコンテナごとの映像コーデック指定です。
var videoCodecs = map[string]string{
	"mp4":  "libx264",
	"webm": "libvpx",
	"avi":  "mpeg4",
	"mkv":  "libx264",
	"mov":  "libx264",
}

// GIF生成のデフォルト値。長尺の入力は先頭だけを切り出します。
const (
	gifDefaultMaxDuration = 10
	gifDefaultWidth       = 480
	gifDefaultFPS         = 10
)

type videoConverter struct {
	ff           *ffmpegRunner
	inputs       formatSet
	videoOutputs formatSet
	audioOutputs formatSet
}

func newVideoConverter(ff *ffmpegRunner) *videoConverter {
	return &videoConverter{
		ff: ff,
		inputs: newFormatSet(
			"mp4", "avi", "mkv", "mov", "wmv", "flv", "webm",
			"3gp", "mpeg", "mpg", "m4v", "ts", "mts", "vob",
		),
		videoOutputs: newFormatSet("mp4", "webm", "avi", "mkv", "mov", "gif"),
		// 音声の抜き出しも変換として受け付ける
		audioOutputs: newFormatSet("mp3", "wav", "aac", "ogg"),
	}
}

func (c *videoConverter) InputFormats() []string { return c.inputs.sorted() }

func (c *videoConverter) OutputFormats() []string {
	all := newFormatSet(c.videoOutputs.sorted()...)
	for f := range c.audioOutputs {
		all[f] = struct{}{}
	}
	return all.sorted()
}

// Convert は映像ファイルを指定フォーマットへ変換します。
// 音声フォーマット指定時は音声トラックの抽出、gif 指定時はGIF生成になります。
func (c *videoConverter) Convert(ctx context.Context, inputPath, outputPath, outputFormat string, opts Options, ctrl Control) error {
	outputFormat = strings.ToLower(outputFormat)

	if err := ctrl.Checkpoint("load", 5); err != nil {
		return err
	}

	switch {
	case c.audioOutputs.contains(outputFormat):
		return c.extractAudio(ctx, inputPath, outputPath, ctrl)
	case outputFormat == "gif":
		return c.createGIF(ctx, inputPath, outputPath, opts, ctrl)
	case c.videoOutputs.contains(outputFormat):
		return c.transcode(ctx, inputPath, outputPath, outputFormat, opts, ctrl)
	}
	return newError(CodeUnsupportedFormat, "出力フォーマット "+outputFormat+" には対応していません。", nil)
}

func (c *videoConverter) transcode(ctx context.Context, inputPath, outputPath, outputFormat string, opts Options, ctrl Control) error {
	duration, err := c.ff.probeDuration(ctx, inputPath)
	if err != nil {
		return err
	}

	if err := ctrl.Checkpoint("process", 10); err != nil {
		return err
	}

	args := videoConvertArgs(inputPath, outputPath, outputFormat, opts)
	if err := c.ff.runWithProgress(ctx, effectiveDuration(duration, opts), ctrl, "process", 15, 95, args...); err != nil {
		return err
	}

	ctrl.Report("write", 100)
	return nil
}

func (c *videoConverter) extractAudio(ctx context.Context, inputPath, outputPath string, ctrl Control) error {
	if !c.ff.probeHasAudio(ctx, inputPath) {
		return newError(CodeEncodeFailed, "この動画には音声トラックがありません。", nil)
	}

	duration, err := c.ff.probeDuration(ctx, inputPath)
	if err != nil {
		return err
	}

	if err := ctrl.Checkpoint("process", 20); err != nil {
		return err
	}

	args := []string{"-y", "-i", inputPath, "-vn", outputPath}
	if err := c.ff.runWithProgress(ctx, duration, ctrl, "process", 20, 95, args...); err != nil {
		return err
	}

	ctrl.Report("write", 100)
	return nil
}

func (c *videoConverter) createGIF(ctx context.Context, inputPath, outputPath string, opts Options, ctrl Control) error {
	maxDuration := gifDefaultMaxDuration
	if v, ok := opts.Int("max_duration"); ok && v > 0 {
		maxDuration = v
	}
	width := gifDefaultWidth
	if v, ok := opts.Int("width"); ok && v > 0 {
		width = v
	}
	fps := gifDefaultFPS
	if v, ok := opts.Int("fps"); ok && v > 0 {
		fps = v
	}

	if err := ctrl.Checkpoint("process", 30); err != nil {
		return err
	}

	args := []string{
		"-y", "-i", inputPath,
		"-t", strconv.Itoa(maxDuration),
		"-vf", fmt.Sprintf("fps=%d,scale=%d:-2:flags=lanczos", fps, width),
		outputPath,
	}
	if err := c.ff.runWithProgress(ctx, float64(maxDuration), ctrl, "process", 30, 95, args...); err != nil {
		return err
	}

	ctrl.Report("write", 100)
	return nil
}

// videoConvertArgs は映像変換用の ffmpeg 引数を組み立てます。
func videoConvertArgs(inputPath, outputPath, outputFormat string, opts Options) []string {
	args := []string{"-y", "-i", inputPath}

	// トリミング（start/end 秒指定）
	if start, ok := opts.Float("start"); ok && start > 0 {
		args = append(args, "-ss", strconv.FormatFloat(start, 'f', -1, 64))
	}
	if end, ok := opts.Float("end"); ok && end > 0 {
		args = append(args, "-to", strconv.FormatFloat(end, 'f', -1, 64))
	}

	codec := videoCodecs[outputFormat]
	if codec == "" {
		codec = "libx264"
	}
	args = append(args, "-c:v", codec)

	if outputFormat == "webm" {
		args = append(args, "-c:a", "libvorbis")
	} else {
		args = append(args, "-c:a", "aac")
	}

	if preset, ok := opts.String("preset"); ok && preset != "" && codec == "libx264" {
		args = append(args, "-preset", preset)
	}

	// リサイズ（縦横比は維持する）
	if width, ok := opts.Int("width"); ok && width > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:-2", width))
	} else if height, ok := opts.Int("height"); ok && height > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=-2:%d", height))
	}

	if fps, ok := opts.Int("fps"); ok && fps > 0 {
		args = append(args, "-r", strconv.Itoa(fps))
	}

	return append(args, outputPath)
}

// effectiveDuration はトリミング指定を考慮した処理対象の長さを返します。
func effectiveDuration(duration float64, opts Options) float64 {
	start, _ := opts.Float("start")
	end, hasEnd := opts.Float("end")
	if hasEnd && end > start {
		trimmed := end - start
		if trimmed < duration {
			return trimmed
		}
	} else if start > 0 && start < duration {
		return duration - start
	}
	return duration
}
