// Пакет variants — деривация производных изображений из исходника.
//
// Из одного исходного изображения строятся два варианта:
//   - large     — JPEG до 800px по ширине, качество 80
//   - thumbnail — WebP до 256px по ширине, качество 80
//
// EXIF-ориентация применяется при декодировании, меньшие исходники
// не растягиваются (апскейла нет).
package variants

import (
	"bytes"
	"fmt"
	"image"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

// Ширины вариантов — верхние границы, не целевые размеры.
const (
	LargeMaxWidth     = 800
	ThumbnailMaxWidth = 256
)

const jpegQuality = 80
const webpQuality = 80

// Ключи вариантов в записи файла.
const (
	KeyLarge     = "large"
	KeyThumbnail = "thumbnail"
)

// Имена объектов вариантов рядом с исходником (в каталоге variants/).
const (
	LargeObjectName     = "thumb_800.jpg"
	ThumbnailObjectName = "thumb_256.webp"
)

// MIME-типы закодированных вариантов.
const (
	LargeContentType     = "image/jpeg"
	ThumbnailContentType = "image/webp"
)

// Derived — один закодированный вариант.
type Derived struct {
	// Key — ключ варианта (large, thumbnail)
	Key string
	// Data — закодированные байты
	Data []byte
	// Width, Height — итоговые размеры в пикселях
	Width  int
	Height int
	// ContentType — MIME-тип кодека
	ContentType string
	// ObjectName — имя объекта в каталоге variants/
	ObjectName string
}

// Set — полный набор производных одного исходника.
type Set struct {
	Large     Derived
	Thumbnail Derived
}

// All возвращает варианты в детерминированном порядке.
func (s *Set) All() []Derived {
	return []Derived{s.Large, s.Thumbnail}
}

// Derive декодирует исходник и строит оба варианта.
//
// Некорректные или усечённые данные дают ошибку декодирования —
// вызывающий помечает запись файла проваленной, частичных наборов
// не бывает.
func Derive(raw []byte) (*Set, error) {
	src, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("декодирование исходника: %w", err)
	}

	large, err := encodeLarge(downscale(src, LargeMaxWidth))
	if err != nil {
		return nil, fmt.Errorf("вариант large: %w", err)
	}
	thumb, err := encodeThumbnail(downscale(src, ThumbnailMaxWidth))
	if err != nil {
		return nil, fmt.Errorf("вариант thumbnail: %w", err)
	}

	return &Set{Large: large, Thumbnail: thumb}, nil
}

// downscale уменьшает изображение до maxWidth по ширине с сохранением
// пропорций. Исходник уже, чем maxWidth, возвращается как есть.
func downscale(src image.Image, maxWidth int) image.Image {
	if src.Bounds().Dx() <= maxWidth {
		return src
	}
	return imaging.Resize(src, maxWidth, 0, imaging.Lanczos)
}

func encodeLarge(img image.Image) (Derived, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return Derived{}, err
	}
	b := img.Bounds()
	return Derived{
		Key:         KeyLarge,
		Data:        buf.Bytes(),
		Width:       b.Dx(),
		Height:      b.Dy(),
		ContentType: LargeContentType,
		ObjectName:  LargeObjectName,
	}, nil
}

func encodeThumbnail(img image.Image) (Derived, error) {
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: webpQuality}); err != nil {
		return Derived{}, err
	}
	b := img.Bounds()
	return Derived{
		Key:         KeyThumbnail,
		Data:        buf.Bytes(),
		Width:       b.Dx(),
		Height:      b.Dy(),
		ContentType: ThumbnailContentType,
		ObjectName:  ThumbnailObjectName,
	}, nil
}
