package media

// ProgressReporter は進捗更新用コールバックです。
// ワーカーのゴルーチンから呼ばれるため、実装は非ブロッキングである必要があります。
type ProgressReporter func(stage string, percent int)

func reportProgress(cb ProgressReporter, stage string, percent int) {
	if cb == nil {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	cb(stage, percent)
}

// CancelCheck はキャンセル要求の有無を返します。
// ワーカーはチェックポイントごとにこれをポーリングします（協調的キャンセル）。
type CancelCheck func() bool

// Control は実行中のジョブに渡される進捗報告とキャンセル確認の束です。
type Control struct {
	Progress ProgressReporter
	Cancel   CancelCheck
}

// Report は進捗を [0,100] にクランプして報告します。
func (c Control) Report(stage string, percent int) {
	reportProgress(c.Progress, stage, percent)
}

// Cancelled はキャンセル要求が出ているかを返します。
func (c Control) Cancelled() bool {
	return c.Cancel != nil && c.Cancel()
}

// Checkpoint は進捗を報告し、キャンセル要求があれば ErrCancelled を返します。
// 実行中のエンコード呼び出しは中断されないため、キャンセルの反映は
// 次のチェックポイントまで遅れることがあります。
func (c Control) Checkpoint(stage string, percent int) error {
	if c.Cancelled() {
		return ErrCancelled
	}
	c.Report(stage, percent)
	return nil
}

// clampPercent は [lo,hi] の範囲に percent を収めます。
func clampPercent(percent, lo, hi int) int {
	if percent < lo {
		return lo
	}
	if percent > hi {
		return hi
	}
	return percent
}
