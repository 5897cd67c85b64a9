package media

import (
	"context"
	"fmt"
	"os"
)

// Converter は1つのメディア種別に対するフォーマット変換を提供します。
type Converter interface {
	// Convert は input を outputFormat へ変換し outputPath に書き出します。
	Convert(ctx context.Context, inputPath, outputPath, outputFormat string, opts Options, ctrl Control) error
	// InputFormats は受け付ける入力フォーマットの一覧を返します。
	InputFormats() []string
	// OutputFormats は生成できる出力フォーマットの一覧を返します。
	OutputFormats() []string
}

// Compressor は目標サイズ以下への圧縮を提供します。
type Compressor interface {
	// Compress は input を targetSizeMB 以下を目標に圧縮し outputPath に書き出します。
	Compress(ctx context.Context, inputPath, outputPath string, targetSizeMB float64, ctrl Control) error
	// Formats は圧縮を受け付けるフォーマットの一覧を返します。
	Formats() []string
}

// Service はメディア種別ごとの変換・圧縮バリアントを選択して実行します。
// バリアントはジョブ作成時に一度だけ選択され、呼び出しごとに再判定はしません。
type Service struct {
	converters  map[Type]Converter
	compressors map[Type]Compressor
}

// NewService は Service を作成します。
func NewService(ffmpegPath, ffprobePath string) *Service {
	ff := newFFmpegRunner(ffmpegPath, ffprobePath)
	return &Service{
		converters: map[Type]Converter{
			TypeAudio:    newAudioConverter(ff),
			TypeVideo:    newVideoConverter(ff),
			TypeImage:    newImageConverter(),
			TypeDocument: newDocumentConverter(),
		},
		compressors: map[Type]Compressor{
			TypeAudio: newAudioCompressor(ff),
			TypeVideo: newVideoCompressor(ff),
			TypeImage: newImageCompressor(),
		},
	}
}

// ConverterFor はメディア種別に対応する Converter を返します。
func (s *Service) ConverterFor(t Type) (Converter, error) {
	c, ok := s.converters[t]
	if !ok {
		return nil, newError(CodeUnsupportedMediaType, fmt.Sprintf("メディア種別 %s は変換に対応していません。", t), nil)
	}
	return c, nil
}

// CompressorFor はメディア種別に対応する Compressor を返します。
// 圧縮は音声・映像・画像のみ対応です。
func (s *Service) CompressorFor(t Type) (Compressor, error) {
	c, ok := s.compressors[t]
	if !ok {
		return nil, newError(CodeUnsupportedMediaType, fmt.Sprintf("メディア種別 %s は圧縮に対応していません。", t), nil)
	}
	return c, nil
}

// CanConvert は入力・出力フォーマットの組が対応済みかを判定します。
// 高コストな処理のスケジュール前に必ずこの検証を通します。
func (s *Service) CanConvert(t Type, inputFormat, outputFormat string) bool {
	c, ok := s.converters[t]
	if !ok {
		return false
	}
	return newFormatSet(c.InputFormats()...).contains(inputFormat) &&
		newFormatSet(c.OutputFormats()...).contains(outputFormat)
}

// CanCompress はフォーマットが圧縮対象として対応済みかを判定します。
func (s *Service) CanCompress(t Type, format string) bool {
	c, ok := s.compressors[t]
	if !ok {
		return false
	}
	return newFormatSet(c.Formats()...).contains(format)
}

// Capability は1メディア種別の対応フォーマットを表します。
type Capability struct {
	Input  []string `json:"input"`
	Output []string `json:"output"`
}

// Capabilities はメディア種別ごとの対応フォーマット一覧を返します。
func (s *Service) Capabilities() map[Type]Capability {
	caps := make(map[Type]Capability, len(s.converters))
	for t, c := range s.converters {
		caps[t] = Capability{
			Input:  newFormatSet(c.InputFormats()...).sorted(),
			Output: newFormatSet(c.OutputFormats()...).sorted(),
		}
	}
	return caps
}

// Convert は指定されたバリアントで変換を実行し、出力を検証します。
func (s *Service) Convert(ctx context.Context, t Type, inputPath, outputPath, outputFormat string, opts Options, ctrl Control) error {
	c, err := s.ConverterFor(t)
	if err != nil {
		return err
	}
	if !s.CanConvert(t, Extension(inputPath), outputFormat) {
		return newError(CodeUnsupportedFormat, fmt.Sprintf("%s から %s への変換には対応していません。", Extension(inputPath), outputFormat), nil)
	}
	if err := c.Convert(ctx, inputPath, outputPath, outputFormat, opts, ctrl); err != nil {
		return err
	}
	return verifyOutput(outputPath)
}

// Compress は指定されたバリアントで圧縮を実行し、出力を検証します。
func (s *Service) Compress(ctx context.Context, t Type, inputPath, outputPath string, targetSizeMB float64, ctrl Control) error {
	c, err := s.CompressorFor(t)
	if err != nil {
		return err
	}
	if targetSizeMB <= 0 {
		return newError(CodeInvalidInput, "目標サイズは正の値で指定してください。", nil)
	}
	if !s.CanCompress(t, Extension(inputPath)) {
		return newError(CodeUnsupportedFormat, fmt.Sprintf("フォーマット %s の圧縮には対応していません。", Extension(inputPath)), nil)
	}
	if err := c.Compress(ctx, inputPath, outputPath, targetSizeMB, ctrl); err != nil {
		return err
	}
	return verifyOutput(outputPath)
}

// verifyOutput は出力ファイルが存在し、空でないことを確認します。
// バックエンドの終了コードに関わらず、これを満たさない処理は失敗として扱います。
func verifyOutput(outputPath string) error {
	info, err := os.Stat(outputPath)
	if err != nil {
		return newError(CodeEncodeFailed, "出力ファイルが生成されませんでした。", err)
	}
	if info.Size() == 0 {
		_ = os.Remove(outputPath)
		return newError(CodeEncodeFailed, "出力ファイルが空でした。", nil)
	}
	return nil
}
