package media

import (
	"context"
	"strconv"
	"strings"
)

// audioCodecs は出力フォーマットごとの ffmpeg コーデック指定です。
// 空文字はコンテナのデフォルトに任せることを意味します。
var audioCodecs = map[string]string{
	"mp3":  "libmp3lame",
	"m4a":  "aac",
	"ogg":  "libvorbis",
	"flac": "flac",
	"wav":  "",
	"aiff": "",
}

// defaultAudioBitrate は非可逆フォーマットのデフォルトビットレートです。
const defaultAudioBitrate = "192k"

var audioBitrateFormats = newFormatSet("mp3", "m4a", "ogg")

type audioConverter struct {
	ff      *ffmpegRunner
	inputs  formatSet
	outputs formatSet
}

func newAudioConverter(ff *ffmpegRunner) *audioConverter {
	return &audioConverter{
		ff: ff,
		inputs: newFormatSet(
			"mp3", "wav", "ogg", "flac", "m4a", "aac", "ac3", "alac",
			"dts", "eac3", "tta", "wv", "aiff", "ape", "wma", "opus",
		),
		outputs: newFormatSet("mp3", "wav", "ogg", "flac", "m4a", "aiff"),
	}
}

func (c *audioConverter) InputFormats() []string  { return c.inputs.sorted() }
func (c *audioConverter) OutputFormats() []string { return c.outputs.sorted() }

// Convert は音声ファイルを指定フォーマットへ変換します。
func (c *audioConverter) Convert(ctx context.Context, inputPath, outputPath, outputFormat string, opts Options, ctrl Control) error {
	outputFormat = strings.ToLower(outputFormat)
	if !c.outputs.contains(outputFormat) {
		return newError(CodeUnsupportedFormat, "出力フォーマット "+outputFormat+" には対応していません。", nil)
	}

	if err := ctrl.Checkpoint("load", 5); err != nil {
		return err
	}

	duration, err := c.ff.probeDuration(ctx, inputPath)
	if err != nil {
		return err
	}

	if err := ctrl.Checkpoint("process", 10); err != nil {
		return err
	}

	args := audioConvertArgs(inputPath, outputPath, outputFormat, opts)
	if err := c.ff.runWithProgress(ctx, duration, ctrl, "process", 10, 95, args...); err != nil {
		return err
	}

	ctrl.Report("write", 100)
	return nil
}

// audioConvertArgs は音声変換用の ffmpeg 引数を組み立てます。
func audioConvertArgs(inputPath, outputPath, outputFormat string, opts Options) []string {
	args := []string{"-y", "-i", inputPath, "-vn"}

	if codec := audioCodecs[outputFormat]; codec != "" {
		args = append(args, "-c:a", codec)
	}

	if audioBitrateFormats.contains(outputFormat) {
		bitrate := defaultAudioBitrate
		if v, ok := opts.String("bitrate"); ok && v != "" {
			bitrate = v
		}
		args = append(args, "-b:a", bitrate)
	}

	if rate, ok := opts.Int("sample_rate"); ok && rate > 0 {
		args = append(args, "-ar", strconv.Itoa(rate))
	}

	return append(args, outputPath)
}
