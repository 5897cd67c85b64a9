// Package media はメディアファイルの変換・圧縮エンジンを提供します。
package media

import (
	"path/filepath"
	"sort"
	"strings"
)

// Type はメディアの種別を表します。
type Type string

const (
	TypeAudio    Type = "audio"
	TypeVideo    Type = "video"
	TypeImage    Type = "image"
	TypeDocument Type = "document"
)

// Kind はジョブの処理種別を表します。
type Kind string

const (
	KindConversion  Kind = "conversion"
	KindCompression Kind = "compression"
)

// extensionTypes は拡張子からメディア種別への対応表です。
var extensionTypes = map[string]Type{
	"mp3": TypeAudio, "wav": TypeAudio, "ogg": TypeAudio, "flac": TypeAudio,
	"m4a": TypeAudio, "aac": TypeAudio, "ac3": TypeAudio, "alac": TypeAudio,
	"dts": TypeAudio, "eac3": TypeAudio, "tta": TypeAudio, "wv": TypeAudio,
	"aiff": TypeAudio, "ape": TypeAudio, "wma": TypeAudio, "opus": TypeAudio,

	"mp4": TypeVideo, "avi": TypeVideo, "mkv": TypeVideo, "mov": TypeVideo,
	"wmv": TypeVideo, "flv": TypeVideo, "webm": TypeVideo, "3gp": TypeVideo,
	"mpeg": TypeVideo, "mpg": TypeVideo, "m4v": TypeVideo, "ts": TypeVideo,
	"mts": TypeVideo, "vob": TypeVideo,

	"jpg": TypeImage, "jpeg": TypeImage, "png": TypeImage, "gif": TypeImage,
	"bmp": TypeImage, "tiff": TypeImage, "tif": TypeImage, "webp": TypeImage,

	"pdf": TypeDocument,
}

// Extension はファイル名から小文字の拡張子（ドットなし）を返します。
func Extension(filename string) string {
	ext := filepath.Ext(filename)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// DetectType はファイル名の拡張子からメディア種別を判定します。
// 対応していない拡張子の場合は2番目の戻り値が false になります。
func DetectType(filename string) (Type, bool) {
	t, ok := extensionTypes[Extension(filename)]
	return t, ok
}

// formatSet は対応フォーマットの集合です。
type formatSet map[string]struct{}

func newFormatSet(formats ...string) formatSet {
	set := make(formatSet, len(formats))
	for _, f := range formats {
		set[f] = struct{}{}
	}
	return set
}

func (s formatSet) contains(format string) bool {
	_, ok := s[strings.ToLower(format)]
	return ok
}

func (s formatSet) sorted() []string {
	formats := make([]string, 0, len(s))
	for f := range s {
		formats = append(formats, f)
	}
	sort.Strings(formats)
	return formats
}

// Options はジョブごとの任意設定です（ビットレート、サイズ指定、パスワードなど）。
// ジョブ開始後は変更されない前提で扱います。
type Options map[string]any

// String は文字列オプションを取り出します。
func (o Options) String(key string) (string, bool) {
	if o == nil {
		return "", false
	}
	v, ok := o[key].(string)
	return v, ok
}

// Int は数値オプションを取り出します。JSON経由では float64 で届くため両方を受け付けます。
func (o Options) Int(key string) (int, bool) {
	if o == nil {
		return 0, false
	}
	switch v := o[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}

// Float は浮動小数点オプションを取り出します。
func (o Options) Float(key string) (float64, bool) {
	if o == nil {
		return 0, false
	}
	switch v := o[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
