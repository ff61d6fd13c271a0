package overlay

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klienn/swinetrack/internal/models"
)

// testCamJPEG 生成一张测试用相机帧（渐变，避免纯色被编码器过度压缩）
func testCamJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 17 % 256), G: uint8(y * 31 % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func TestCompose_Deterministic(t *testing.T) {
	cam := testCamJPEG(t, 16, 12)
	grid := models.ThermalGrid{W: 2, H: 2, Data: []float64{0, 100, 50, 75}}

	out1, mime1, err := Compose(cam, grid, 0.35)
	require.NoError(t, err)
	out2, mime2, err := Compose(cam, grid, 0.35)
	require.NoError(t, err)

	assert.Equal(t, out1, out2)
	assert.Equal(t, mime1, mime2)
	assert.Equal(t, MimeJPEG, mime1)
	assert.NotEmpty(t, out1)
}

func TestCompose_GuardRailNarrowGrid(t *testing.T) {
	cam := testCamJPEG(t, 16, 12)
	grid := models.ThermalGrid{W: 1, H: 4, Data: []float64{1, 2, 3, 4}}

	out, mime, err := Compose(cam, grid, 0.35)
	require.NoError(t, err)
	assert.Equal(t, MimeJPEG, mime)

	// 未叠加：输出等于原始帧重新编码的结果
	base, _, err := image.Decode(bytes.NewReader(cam))
	require.NoError(t, err)
	var reencoded bytes.Buffer
	require.NoError(t, jpeg.Encode(&reencoded, base, &jpeg.Options{Quality: jpegQuality}))
	assert.Equal(t, reencoded.Bytes(), out)
}

func TestCompose_GuardRailFlatValues(t *testing.T) {
	cam := testCamJPEG(t, 16, 12)
	grid := models.ThermalGrid{W: 2, H: 2, Data: []float64{10, 10, 10, 10}}

	out, mime, err := Compose(cam, grid, 0.35)
	require.NoError(t, err)
	assert.Equal(t, MimeJPEG, mime)

	// 与另一条 guard rail 路径产出一致（都只是重新编码原图）
	short, _, err := Compose(cam, models.ThermalGrid{W: 1, H: 1, Data: []float64{5}}, 0.35)
	require.NoError(t, err)
	assert.Equal(t, short, out)
}

func TestCompose_GuardRailShortData(t *testing.T) {
	cam := testCamJPEG(t, 8, 8)
	grid := models.ThermalGrid{W: 4, H: 4, Data: []float64{1, 2, 3}}

	out, mime, err := Compose(cam, grid, 0.35)
	require.NoError(t, err)
	assert.Equal(t, MimeJPEG, mime)
	assert.NotEmpty(t, out)
}

func TestCompose_OverlayChangesFrame(t *testing.T) {
	cam := testCamJPEG(t, 16, 12)
	grid := models.ThermalGrid{W: 4, H: 4, Data: []float64{
		20, 22, 24, 26,
		28, 30, 32, 34,
		36, 38, 40, 42,
		20, 25, 35, 45,
	}}

	composited, _, err := Compose(cam, grid, 0.8)
	require.NoError(t, err)
	plain, _, err := Compose(cam, models.ThermalGrid{W: 1, H: 1, Data: []float64{0}}, 0.8)
	require.NoError(t, err)
	assert.NotEqual(t, plain, composited)
}

func TestCompose_NonFiniteValuesTreatedAsMin(t *testing.T) {
	cam := testCamJPEG(t, 16, 12)
	inf := []float64{0, 100, 50, 75}
	withNaN := []float64{0, 100, 50, 75}
	// NaN 像素按 tMin 渲染，不影响 min/max
	withNaN[2] = math.NaN()

	out1, _, err := Compose(cam, models.ThermalGrid{W: 2, H: 2, Data: inf}, 0.35)
	require.NoError(t, err)
	out2, _, err := Compose(cam, models.ThermalGrid{W: 2, H: 2, Data: withNaN}, 0.35)
	require.NoError(t, err)
	assert.NotEmpty(t, out1)
	assert.NotEmpty(t, out2)
}

func TestCompose_AlphaClamped(t *testing.T) {
	cam := testCamJPEG(t, 16, 12)
	grid := models.ThermalGrid{W: 2, H: 2, Data: []float64{0, 100, 50, 75}}

	over, _, err := Compose(cam, grid, 3.0)
	require.NoError(t, err)
	one, _, err := Compose(cam, grid, 1.0)
	require.NoError(t, err)
	assert.Equal(t, one, over)
}

func TestCompose_BadImage(t *testing.T) {
	_, _, err := Compose([]byte("not an image"), models.ThermalGrid{W: 2, H: 2, Data: []float64{1, 2, 3, 4}}, 0.35)
	assert.Error(t, err)
}

func TestScaleToFrame_SmallGridInterpolates(t *testing.T) {
	// 2×2 源图也要走双线性：放大结果必须出现源图里不存在的过渡色，
	// 最近邻只会复制源像素
	heat := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	heat.SetNRGBA(0, 0, color.NRGBA{R: 0, G: 0, B: 0, A: 255})
	heat.SetNRGBA(1, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	heat.SetNRGBA(0, 1, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	heat.SetNRGBA(1, 1, color.NRGBA{R: 0, G: 0, B: 0, A: 255})

	scaled := scaleToFrame(heat, 16, 16)

	interpolated := false
	for y := 0; y < 16 && !interpolated; y++ {
		for x := 0; x < 16; x++ {
			r := scaled.NRGBAAt(x, y).R
			if r != 0 && r != 255 {
				interpolated = true
				break
			}
		}
	}
	assert.True(t, interpolated)
}

func TestSniffMime(t *testing.T) {
	assert.Equal(t, MimePNG, SniffMime([]byte{0x89, 0x50, 0x4e, 0x47}))
	assert.Equal(t, MimeJPEG, SniffMime([]byte{0xff, 0xd8, 0xff}))
	assert.Equal(t, MimeJPEG, SniffMime(nil))
}
