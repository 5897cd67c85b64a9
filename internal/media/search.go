package media

// ターゲットサイズ圧縮の探索ロジック。
//
// 共通の形は「順序付き候補ラダーの上から順に試し、目標サイズ以下になる
// 最初の候補を採用する」単調パラメータ探索です。二分探索にしないのは
// エンコードコストが支配的で、候補リストが短い固定リストだからです。
// 映像・音声はコーデックのレート制御が目標ビットレートを十分正確に
// 守るため解析的に1回で決め、JPEGの品質→サイズは逆算できないため
// 画像のみ実エンコードを繰り返します。

// audioBitrateLadder は音声圧縮のビットレート候補（kbps、降順）です。
var audioBitrateLadder = []int{320, 256, 192, 160, 128, 96, 64}

// 画像圧縮の候補ラダー。品質を先に落とし、それでも収まらなければ解像度を落とします。
var (
	imageQualityLadder = []int{95, 90, 85, 80, 75, 70, 65, 60, 55, 50, 45, 40}
	imageScaleLadder   = []float64{0.9, 0.8, 0.7, 0.6, 0.5, 0.4, 0.3}
)

// 画像圧縮の最終手段。どの候補でも収まらない場合はサイズ不問でこれを採用し、
// 探索を必ず終了させます。
const (
	imageFloorScale   = 0.25
	imageFloorQuality = 60

	// 元サイズが既に目標以下のときの保存品質
	imageFastPathQuality = 95

	// 解像度ラダーで使う固定品質
	imageScaleQuality = 70
)

// 映像圧縮の定数。音声用に 128kbps を確保し、ビットレートには下限を設けます。
const (
	videoAudioBitrate  = 128_000
	videoMinBitrate    = 100_000
	videoMaxrateFactor = 1.5
	videoBufsizeFactor = 2.0
)

// firstFit は候補を先頭から順に試し、目標サイズ以下に収まった最初の候補を返します。
// try は1候補につき1回の実エンコードに相当するため、各試行の間で
// キャンセル要求を確認します。どの候補も収まらない場合は ok=false を返します。
func firstFit[T any](candidates []T, target int64, try func(T) (int64, error), cancelled func() bool) (value T, ok bool, err error) {
	var zero T
	for _, candidate := range candidates {
		if cancelled != nil && cancelled() {
			return zero, false, ErrCancelled
		}
		size, err := try(candidate)
		if err != nil {
			return zero, false, err
		}
		if size <= target {
			return candidate, true, nil
		}
	}
	return zero, false, nil
}

// selectAudioBitrate は目標サイズと長さから採用ビットレート（kbps）を決めます。
// 解析的な推定値を [32,320] にクランプし、ラダーでコーデックに馴染む段に丸めます。
func selectAudioBitrate(targetSizeMB, durationSeconds float64) int {
	targetBytes := targetSizeMB * 1024 * 1024
	estimated := int(targetBytes * 8 / durationSeconds / 1000)
	if estimated < 32 {
		estimated = 32
	}
	if estimated > 320 {
		estimated = 320
	}

	// 推定値以下の最初の段を採用する（どの段も上回る場合は最小の64k）
	selected := audioBitrateLadder[len(audioBitrateLadder)-1]
	for _, kbps := range audioBitrateLadder {
		if kbps <= estimated {
			selected = kbps
			break
		}
	}
	return selected
}

// videoCompressionPlan は映像圧縮の1パス分の設定です。
type videoCompressionPlan struct {
	BitrateBps int // 映像の目標ビットレート
	ScaleWidth int // 0なら解像度は維持
}

// planVideoCompression は目標サイズから映像ビットレートを解析的に算出します。
// 低ビットレート帯ではフル解像度の画質が破綻するため、閾値を下回る場合は
// 併せてダウンスケールを指示します。再試行はせず、この計算を正として扱います。
func planVideoCompression(targetSizeMB, durationSeconds float64, sourceWidth int) videoCompressionPlan {
	targetBits := targetSizeMB * 8 * 1024 * 1024
	bitrate := int(targetBits/durationSeconds - videoAudioBitrate)
	if bitrate < videoMinBitrate {
		bitrate = videoMinBitrate
	}

	plan := videoCompressionPlan{BitrateBps: bitrate}
	switch {
	case bitrate < 500_000 && sourceWidth > 1280:
		plan.ScaleWidth = 1280
	case bitrate < 300_000 && sourceWidth > 854:
		plan.ScaleWidth = 854
	case bitrate < 150_000 && sourceWidth > 640:
		plan.ScaleWidth = 640
	}
	return plan
}

// imageQualityProgress は品質ラダー上の位置を進捗に写像します。
func imageQualityProgress(quality int) int {
	return 30 + int(float64(95-quality)/55*40)
}

// imageScaleProgress は解像度ラダー上の位置を進捗に写像します。
func imageScaleProgress(scale float64) int {
	return 75 + int((1-scale)/0.7*20)
}
