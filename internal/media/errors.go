package media

import "fmt"

// エラーコード一覧。HTTP層はこのコードからステータスを決定します。
const (
	CodeInvalidInput         = "INVALID_INPUT"
	CodeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	CodeUnsupportedFormat    = "UNSUPPORTED_FORMAT"
	CodeJobNotFound          = "JOB_NOT_FOUND"
	CodeJobNotReady          = "JOB_NOT_READY"
	CodeEncodeFailed         = "ENCODE_FAILED"
	CodeCancelled            = "CANCELLED"
	CodePasswordRequired     = "PASSWORD_REQUIRED"
	CodeInvalidPassword      = "INVALID_PASSWORD"
)

// Error はメディア処理のエラーをコード付きで表します。
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// ErrCancelled はキャンセル要求をワーカーが検知したことを表します。
var ErrCancelled = &Error{Code: CodeCancelled, Message: "処理がキャンセルされました。"}
