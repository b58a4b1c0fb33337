package embedding

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/hyperjump/pawmatch/pkg/utils"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestPreprocess_shapeAndNormalization(t *testing.T) {
	out := Preprocess(solid(40, 20, color.RGBA{R: 255, A: 255}), 8)
	if len(out) != 3*8*8 {
		t.Fatalf("len = %d, want %d", len(out), 3*8*8)
	}
	wantR := (1 - clipMean[0]) / clipStd[0]
	wantG := (0 - clipMean[1]) / clipStd[1]
	if math.Abs(float64(out[0]-wantR)) > 1e-4 {
		t.Errorf("R channel = %f, want %f", out[0], wantR)
	}
	if math.Abs(float64(out[64]-wantG)) > 1e-4 {
		t.Errorf("G channel = %f, want %f", out[64], wantG)
	}
}

func TestPreprocess_centerCrop(t *testing.T) {
	// Left half black, right half white, wide image: the center crop straddles the boundary.
	img := image.NewRGBA(image.Rect(0, 0, 30, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 30; x++ {
			if x >= 15 {
				img.Set(x, y, color.White)
			} else {
				img.Set(x, y, color.Black)
			}
		}
	}
	out := Preprocess(img, 10)
	left, right := out[5*10+0], out[5*10+9]
	if !(left < 0 && right > 0) {
		t.Errorf("expected dark left edge and bright right edge, got %f and %f", left, right)
	}
}

func TestPreprocess_transparentBecomesWhite(t *testing.T) {
	out := Preprocess(image.NewNRGBA(image.Rect(0, 0, 4, 4)), 4)
	want := (1 - clipMean[2]) / clipStd[2]
	if math.Abs(float64(out[2*16]-want)) > 1e-4 {
		t.Errorf("B channel = %f, want %f (white)", out[2*16], want)
	}
}

func TestDecodeImage(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, solid(3, 2, color.RGBA{G: 200, A: 255})); err != nil {
		t.Fatal(err)
	}
	img, format, err := DecodeImage(buf.Bytes(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if format != "png" || img.Bounds().Dx() != 3 {
		t.Errorf("format=%s bounds=%v", format, img.Bounds())
	}
	if _, _, err := DecodeImage(nil, 0); !errors.Is(err, ErrEmptyImage) {
		t.Errorf("nil data: err = %v", err)
	}
	if _, _, err := DecodeImage([]byte("not an image"), 0); err == nil {
		t.Error("expected decode error")
	}
}

// pngHeader returns a PNG stream holding only an IHDR chunk that declares w x h RGB pixels.
func pngHeader(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 2 // truecolor
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(ihdr)))
	buf.Write(n[:])
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	binary.BigEndian.PutUint32(n[:], crc32.ChecksumIEEE(chunk))
	buf.Write(n[:])
	return buf.Bytes()
}

func TestDecodeImage_pixelLimit(t *testing.T) {
	data := pngHeader(8000, 8000)
	if _, _, err := DecodeImage(data, 25_000_000); !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("8000x8000: err = %v, want ErrImageTooLarge", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, solid(10, 10, color.RGBA{R: 1, A: 255})); err != nil {
		t.Fatal(err)
	}
	if _, _, err := DecodeImage(buf.Bytes(), 100); err != nil {
		t.Errorf("10x10 at limit 100: %v", err)
	}
	if _, _, err := DecodeImage(buf.Bytes(), 99); !errors.Is(err, ErrImageTooLarge) {
		t.Errorf("10x10 at limit 99: err = %v, want ErrImageTooLarge", err)
	}
}

func TestEncodeJPEG(t *testing.T) {
	data, err := EncodeJPEG(solid(16, 16, color.RGBA{B: 255, A: 255}), 90)
	if err != nil {
		t.Fatal(err)
	}
	_, format, err := DecodeImage(data, 0)
	if err != nil || format != "jpeg" {
		t.Errorf("round trip: format=%s err=%v", format, err)
	}
}

func TestMockEmbedder(t *testing.T) {
	e := NewMockEmbedder(32)
	defer e.Close()
	ctx := context.Background()

	red := solid(20, 20, color.RGBA{R: 255, A: 255})
	a, err := e.Embed(ctx, red)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := e.Embed(ctx, red)
	if len(a) != 32 || e.Dimensions() != 32 {
		t.Fatalf("len=%d dims=%d", len(a), e.Dimensions())
	}
	if !utils.IsUnit(a, 1e-5) {
		t.Errorf("norm = %f", utils.L2Norm(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("mock embedder is not deterministic")
		}
	}
	blue, _ := e.Embed(ctx, solid(20, 20, color.RGBA{B: 255, A: 255}))
	same := true
	for i := range a {
		if a[i] != blue[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different images produced identical embeddings")
	}
	if e.Name() != "mock" {
		t.Errorf("Name = %s", e.Name())
	}
}

func TestMockEmbedder_cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMockEmbedder(4).Embed(ctx, solid(2, 2, color.White)); err == nil {
		t.Error("expected context error")
	}
}
