package media

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ffmpegRunner は ffmpeg / ffprobe の外部コマンド呼び出しをまとめたアダプタです。
// エンコーダ本体はブラックボックスとして扱い、成否は出力ファイルの存在と
// サイズで判定します（終了コードだけを信用しない）。
type ffmpegRunner struct {
	ffmpegPath  string
	ffprobePath string
}

func newFFmpegRunner(ffmpegPath, ffprobePath string) *ffmpegRunner {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &ffmpegRunner{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// run は ffmpeg を実行し、失敗時には出力の末尾を含むエラーを返します。
func (f *ffmpegRunner) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	if err := cmd.Run(); err != nil {
		return newError(CodeEncodeFailed, fmt.Sprintf("ffmpegの実行に失敗しました: %s", tailOf(output.String())), err)
	}
	return nil
}

// runWithProgress は `-progress pipe:1` の out_time_ms を読み取り、
// 経過時間を [startPct, endPct] の進捗窓に写像して報告しながら ffmpeg を実行します。
// エンコード呼び出し自体は同期ブロッキングですが、進捗は滑らかに進みます。
func (f *ffmpegRunner) runWithProgress(ctx context.Context, totalSeconds float64, ctrl Control, stage string, startPct, endPct int, args ...string) error {
	if totalSeconds <= 0 {
		// 全体時間が分からない場合は滑らかな進捗を諦めて通常実行する
		return f.run(ctx, args...)
	}

	full := append([]string{"-progress", "pipe:1", "-nostats"}, args...)
	cmd := exec.CommandContext(ctx, f.ffmpegPath, full...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return newError(CodeEncodeFailed, "ffmpegの起動準備に失敗しました。", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return newError(CodeEncodeFailed, "ffmpegの起動に失敗しました。", err)
	}

	totalMs := int64(totalSeconds * 1000)
	last := startPct
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, ok := strings.Cut(line, "=")
		if !ok || key != "out_time_ms" {
			continue
		}
		// out_time_ms はマイクロ秒で届く
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		elapsed := us / 1000
		percent := startPct + int(float64(elapsed)/float64(totalMs)*float64(endPct-startPct))
		percent = clampPercent(percent, startPct, endPct)
		if percent > last {
			last = percent
			ctrl.Report(stage, percent)
		}
	}

	if err := cmd.Wait(); err != nil {
		return newError(CodeEncodeFailed, fmt.Sprintf("ffmpegの実行に失敗しました: %s", tailOf(stderr.String())), err)
	}
	return nil
}

// probeDuration は ffprobe でメディアの長さ（秒）を取得します。
func (f *ffmpegRunner) probeDuration(ctx context.Context, inputPath string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=nokey=1:noprint_wrappers=1",
		inputPath,
	}
	cmd := exec.CommandContext(ctx, f.ffprobePath, args...)
	out, err := cmd.Output()
	if err != nil {
		return 0, newError(CodeEncodeFailed, "入力ファイルの解析に失敗しました。", err)
	}
	value := strings.TrimSpace(string(out))
	if value == "" || value == "N/A" {
		return 0, newError(CodeEncodeFailed, "入力ファイルの長さを取得できませんでした。", nil)
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, newError(CodeEncodeFailed, "入力ファイルの長さを解析できませんでした。", err)
	}
	return parsed, nil
}

// probeVideoWidth は映像ストリームの横幅（ピクセル）を取得します。
func (f *ffmpegRunner) probeVideoWidth(ctx context.Context, inputPath string) (int, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width",
		"-of", "default=nokey=1:noprint_wrappers=1",
		inputPath,
	}
	cmd := exec.CommandContext(ctx, f.ffprobePath, args...)
	out, err := cmd.Output()
	if err != nil {
		return 0, newError(CodeEncodeFailed, "映像ストリームの解析に失敗しました。", err)
	}
	value := strings.TrimSpace(string(out))
	width, err := strconv.Atoi(value)
	if err != nil {
		return 0, newError(CodeEncodeFailed, "映像の横幅を解析できませんでした。", err)
	}
	return width, nil
}

// probeHasAudio は音声ストリームの有無を返します。
func (f *ffmpegRunner) probeHasAudio(ctx context.Context, inputPath string) bool {
	args := []string{
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_name",
		"-of", "default=nokey=1:noprint_wrappers=1",
		inputPath,
	}
	cmd := exec.CommandContext(ctx, f.ffprobePath, args...)
	out, err := cmd.Output()
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(out)) != ""
}

// tailOf は長い stderr 出力の末尾だけを切り出します。
func tailOf(s string) string {
	s = strings.TrimSpace(s)
	const limit = 400
	if len(s) <= limit {
		return s
	}
	return "..." + s[len(s)-limit:]
}
