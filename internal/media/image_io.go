package media

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"strings"

	"golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/tiff"

	// webp はデコードのみ対応（image.RegisterFormat 経由）
	_ "golang.org/x/image/webp"
)

// decodeImageFile は画像ファイルを読み込みデコードします。
func decodeImageFile(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, newError(CodeInvalidInput, "画像ファイルを開けませんでした。", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, newError(CodeInvalidInput, "画像のデコードに失敗しました。", err)
	}
	return img, nil
}

// encodeImageFile は画像を指定フォーマットでファイルへ書き出します。
// quality はJPEGのみで意味を持ちます。
func encodeImageFile(path string, img image.Image, format string, quality int) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return newError(CodeEncodeFailed, "出力ファイルを作成できませんでした。", err)
	}
	defer file.Close()

	switch strings.ToLower(format) {
	case "jpg", "jpeg":
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: quality})
	case "png":
		err = (&png.Encoder{CompressionLevel: png.BestCompression}).Encode(file, img)
	case "gif":
		err = gif.Encode(file, img, &gif.Options{NumColors: 256})
	case "bmp":
		err = bmp.Encode(file, img)
	case "tiff", "tif":
		err = tiff.Encode(file, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return newError(CodeUnsupportedFormat, fmt.Sprintf("画像フォーマット %s への書き出しには対応していません。", format), nil)
	}
	if err != nil {
		return newError(CodeEncodeFailed, "画像のエンコードに失敗しました。", err)
	}
	return nil
}

// flattenToRGB は透過やパレットを持つ画像を白背景に合成した不透過画像へ変換します。
// JPEG/BMP/PDF などアルファ非対応フォーマット向けの前処理です。
func flattenToRGB(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	flat := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(flat, flat.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(flat, flat.Bounds(), img, bounds.Min, draw.Over)
	return flat
}

// scaleImage は画像を指定サイズへ拡縮します。
func scaleImage(img image.Image, width, height int) image.Image {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Over, nil)
	return dst
}

// rotateImage は画像を90度単位で回転します。対応していない角度はそのまま返します。
func rotateImage(img image.Image, degrees int) image.Image {
	degrees = ((degrees % 360) + 360) % 360
	if degrees == 0 {
		return img
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	var dst *image.RGBA
	switch degrees {
	case 90, 270:
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
	case 180:
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
	default:
		return img
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.At(bounds.Min.X+x, bounds.Min.Y+y)
			switch degrees {
			case 90:
				dst.Set(h-1-y, x, c)
			case 180:
				dst.Set(w-1-x, h-1-y, c)
			case 270:
				dst.Set(y, w-1-x, c)
			}
		}
	}
	return dst
}
