package media

import (
	"strings"
	"testing"
)

func argsContain(args []string, flag, value string) bool {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag && args[i+1] == value {
			return true
		}
	}
	return false
}

func argsHaveFlag(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}

func TestAudioConvertArgs(t *testing.T) {
	args := audioConvertArgs("in.wav", "out.mp3", "mp3", nil)

	if !argsContain(args, "-c:a", "libmp3lame") {
		t.Fatalf("missing mp3 codec: %v", args)
	}
	if !argsContain(args, "-b:a", defaultAudioBitrate) {
		t.Fatalf("missing default bitrate: %v", args)
	}
	if !argsHaveFlag(args, "-vn") {
		t.Fatalf("missing -vn: %v", args)
	}
	if args[len(args)-1] != "out.mp3" {
		t.Fatalf("output path must come last: %v", args)
	}
}

func TestAudioConvertArgsOptions(t *testing.T) {
	opts := Options{"bitrate": "320k", "sample_rate": float64(48000)}
	args := audioConvertArgs("in.flac", "out.ogg", "ogg", opts)

	if !argsContain(args, "-c:a", "libvorbis") {
		t.Fatalf("missing ogg codec: %v", args)
	}
	if !argsContain(args, "-b:a", "320k") {
		t.Fatalf("bitrate option not applied: %v", args)
	}
	if !argsContain(args, "-ar", "48000") {
		t.Fatalf("sample_rate option not applied: %v", args)
	}
}

func TestAudioConvertArgsLossless(t *testing.T) {
	args := audioConvertArgs("in.mp3", "out.wav", "wav", nil)

	// 可逆系にはビットレートを渡さない
	if argsHaveFlag(args, "-b:a") {
		t.Fatalf("wav output should not carry -b:a: %v", args)
	}
}

func TestVideoConvertArgs(t *testing.T) {
	args := videoConvertArgs("in.mp4", "out.webm", "webm", nil)

	if !argsContain(args, "-c:v", "libvpx-vp9") && !argsContain(args, "-c:v", "libvpx") {
		t.Fatalf("missing webm video codec: %v", args)
	}
	if !argsContain(args, "-c:a", "libvorbis") {
		t.Fatalf("webm should use vorbis audio: %v", args)
	}
}

func TestVideoConvertArgsTrimAndScale(t *testing.T) {
	opts := Options{
		"start": float64(3),
		"end":   float64(12),
		"width": float64(1280),
		"fps":   float64(24),
	}
	args := videoConvertArgs("in.mov", "out.mp4", "mp4", opts)

	if !argsContain(args, "-ss", "3") {
		t.Fatalf("missing trim start: %v", args)
	}
	if !argsContain(args, "-to", "12") {
		t.Fatalf("missing trim end: %v", args)
	}
	if !argsContain(args, "-vf", "scale=1280:-2") {
		t.Fatalf("missing scale filter: %v", args)
	}
	if !argsContain(args, "-r", "24") {
		t.Fatalf("missing fps: %v", args)
	}
}

func TestVideoCompressArgs(t *testing.T) {
	plan := videoCompressionPlan{BitrateBps: 1_000_000}
	args := videoCompressArgs("in.mp4", "out.mp4", plan)

	if !argsContain(args, "-b:v", "1000000") {
		t.Fatalf("missing target bitrate: %v", args)
	}
	if !argsContain(args, "-maxrate", "1500000") {
		t.Fatalf("missing maxrate 1.5x: %v", args)
	}
	if !argsContain(args, "-bufsize", "2000000") {
		t.Fatalf("missing bufsize 2x: %v", args)
	}
	if !argsContain(args, "-preset", "slow") {
		t.Fatalf("missing preset slow: %v", args)
	}
	if !argsContain(args, "-b:a", "128k") {
		t.Fatalf("missing audio bitrate: %v", args)
	}
	if argsHaveFlag(args, "-vf") {
		t.Fatalf("no scale expected without downscale: %v", args)
	}

	plan.ScaleWidth = 854
	args = videoCompressArgs("in.mp4", "out.mp4", plan)
	if !argsContain(args, "-vf", "scale=854:-2") {
		t.Fatalf("missing downscale filter: %v", args)
	}
}

func TestAudioCompressArgs(t *testing.T) {
	args := audioCompressArgs("in.mp3", "out.mp3", 128)

	if !argsContain(args, "-c:a", "libmp3lame") {
		t.Fatalf("missing mp3 codec: %v", args)
	}
	if !argsContain(args, "-b:a", "128k") {
		t.Fatalf("missing bitrate: %v", args)
	}

	// 可逆系はビットレート指定を持たない
	args = audioCompressArgs("in.flac", "out.flac", 128)
	if argsHaveFlag(args, "-b:a") {
		t.Fatalf("flac output should not carry -b:a: %v", args)
	}

	args = audioCompressArgs("in.wma", "out.wma", 96)
	if !argsContain(args, "-c:a", "wmav2") {
		t.Fatalf("missing wma codec: %v", args)
	}
	if !argsContain(args, "-b:a", "96k") {
		t.Fatalf("missing wma bitrate: %v", args)
	}
}

func TestEffectiveDuration(t *testing.T) {
	if d := effectiveDuration(100, nil); d != 100 {
		t.Fatalf("effectiveDuration without trim = %v, want 100", d)
	}
	if d := effectiveDuration(100, Options{"start": float64(10), "end": float64(40)}); d != 30 {
		t.Fatalf("effectiveDuration with trim = %v, want 30", d)
	}
	// トリム指定が全長を超える場合は全長のまま
	if d := effectiveDuration(20, Options{"start": float64(0), "end": float64(50)}); d != 20 {
		t.Fatalf("effectiveDuration with oversized trim = %v, want 20", d)
	}
}

func TestTailOf(t *testing.T) {
	short := "ffmpeg error"
	if got := tailOf(short); got != short {
		t.Fatalf("tailOf(short) = %q", got)
	}
	long := strings.Repeat("x", 1000)
	got := tailOf(long)
	if !strings.HasPrefix(got, "...") {
		t.Fatalf("tailOf(long) should mark truncation: %q", got[:10])
	}
	if len(got) >= len(long) {
		t.Fatalf("tailOf should cap the length, got %d", len(got))
	}
}
