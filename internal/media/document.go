package media

import (
	"bytes"
	"context"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

type documentConverter struct {
	inputs  formatSet
	outputs formatSet
}

func newDocumentConverter() *documentConverter {
	return &documentConverter{
		inputs:  newFormatSet("pdf"),
		outputs: newFormatSet("txt"),
	}
}

func (c *documentConverter) InputFormats() []string  { return c.inputs.sorted() }
func (c *documentConverter) OutputFormats() []string { return c.outputs.sorted() }

// Convert はPDFからテキストを抽出します。
// 暗号化PDFは password オプションがあれば復号してから処理します。
func (c *documentConverter) Convert(ctx context.Context, inputPath, outputPath, outputFormat string, opts Options, ctrl Control) error {
	if strings.ToLower(outputFormat) != "txt" {
		return newError(CodeUnsupportedFormat, "出力フォーマット "+outputFormat+" には対応していません。", nil)
	}

	if err := ctrl.Checkpoint("load", 10); err != nil {
		return err
	}

	password, _ := opts.String("password")

	src := inputPath
	if pdfIsEncrypted(inputPath) {
		if password == "" {
			return newError(CodePasswordRequired, "このPDFは暗号化されています。パスワードを指定してください。", nil)
		}

		decrypted := outputPath + ".decrypted.pdf"
		conf := model.NewDefaultConfiguration()
		conf.UserPW = password
		conf.OwnerPW = password
		if err := api.DecryptFile(inputPath, decrypted, conf); err != nil {
			return newError(CodeInvalidPassword, "PDFのパスワードが正しくありません。", err)
		}
		defer os.Remove(decrypted)
		src = decrypted
	}

	if err := ctrl.Checkpoint("process", 30); err != nil {
		return err
	}

	text, err := extractPDFText(src)
	if err != nil {
		return err
	}

	if err := ctrl.Checkpoint("write", 80); err != nil {
		return err
	}

	if err := os.WriteFile(outputPath, []byte(text), 0o640); err != nil {
		return newError(CodeEncodeFailed, "テキストの書き出しに失敗しました。", err)
	}

	ctrl.Report("completed", 100)
	return nil
}

// pdfIsEncrypted はパスワードなしで開けないPDFかどうかを判定します。
func pdfIsEncrypted(path string) bool {
	err := api.ValidateFile(path, nil)
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "password") || strings.Contains(msg, "encrypt")
}

// extractPDFText はPDF全ページのプレーンテキストを抽出します。
func extractPDFText(path string) (string, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", newError(CodeInvalidInput, "PDFの読み込みに失敗しました。", err)
	}
	defer file.Close()

	content, err := reader.GetPlainText()
	if err != nil {
		return "", newError(CodeEncodeFailed, "PDFのテキスト抽出に失敗しました。", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(content); err != nil {
		return "", newError(CodeEncodeFailed, "PDFのテキスト抽出に失敗しました。", err)
	}
	return buf.String(), nil
}
