// Package overlay 将低分辨率热成像栅格混合到可见光相机帧上
package overlay

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"

	xdraw "golang.org/x/image/draw"

	"github.com/klienn/swinetrack/internal/models"
)

const (
	// DefaultAlpha 默认叠加透明度
	DefaultAlpha = 0.35

	jpegQuality = 80

	// 栅格护栏已经挡掉 W/H < 2 的退化输入；单像素轴走最近邻采样
	minBilinearDim = 2
)

const (
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
)

// Compose 将热成像栅格叠加到相机帧上，返回编码后的图像与 mime 类型
// 纯函数：相同输入产生字节级一致的输出
//
// 以下情况返回重新编码的原始相机帧（不叠加）：
//   - 栅格宽或高 < 2
//   - 数据长度不足 w×h
//   - 所有有限值相等（max-min <= 1e-6）
func Compose(camImage []byte, grid models.ThermalGrid, alpha float64) ([]byte, string, error) {
	base, _, err := image.Decode(bytes.NewReader(camImage))
	if err != nil {
		return nil, "", fmt.Errorf("decode camera frame: %w", err)
	}

	if grid.W < 2 || grid.H < 2 {
		return encodeFrame(base)
	}
	n := grid.W * grid.H
	if len(grid.Data) < n {
		return encodeFrame(base)
	}

	// 只在有限值上求 min/max
	tMin := math.Inf(1)
	tMax := math.Inf(-1)
	for i := 0; i < n; i++ {
		v := grid.Data[i]
		if !isFinite(v) {
			continue
		}
		if v < tMin {
			tMin = v
		}
		if v > tMax {
			tMax = v
		}
	}
	if !isFinite(tMin) || !isFinite(tMax) || tMax-tMin <= 1e-6 {
		return encodeFrame(base)
	}

	heat := image.NewNRGBA(image.Rect(0, 0, grid.W, grid.H))
	idx := 0
	for y := 0; y < grid.H; y++ {
		for x := 0; x < grid.W; x++ {
			v := grid.Data[idx]
			idx++
			if !isFinite(v) {
				v = tMin
			}
			heat.SetNRGBA(x, y, heatColor(normalize(v, tMin, tMax)))
		}
	}

	bounds := base.Bounds()
	scaled := scaleToFrame(heat, bounds.Dx(), bounds.Dy())

	if !isFinite(alpha) {
		alpha = DefaultAlpha
	}
	alpha = clamp01(alpha)

	out := blend(base, scaled, alpha)
	return encodeFrame(out)
}

func normalize(v, tMin, tMax float64) float64 {
	return clamp01((v - tMin) / (tMax - tMin + 1e-6))
}

// heatColor 温度 → RGB 调色：低温偏蓝，高温偏红
func heatColor(t float64) color.NRGBA {
	r := clamp8(255 * math.Min(1, 1.7*t))
	g := clamp8(255 * math.Min(1, t*t))
	b := clamp8(255 * math.Min(1, (1-t)*(1-t)))
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

// scaleToFrame 将热成像图放大到相机帧尺寸
// 默认双线性；源图过小时改用最近邻（按轴缩放系数取整并夹在源图边界内）
func scaleToFrame(heat *image.NRGBA, dstW, dstH int) *image.NRGBA {
	srcW := heat.Bounds().Dx()
	srcH := heat.Bounds().Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, dstW, dstH))

	if srcW >= minBilinearDim && srcH >= minBilinearDim {
		xdraw.BiLinear.Scale(dst, dst.Bounds(), heat, heat.Bounds(), xdraw.Src, nil)
		return dst
	}

	sx := float64(dstW) / float64(srcW)
	sy := float64(dstH) / float64(srcH)
	for y := 0; y < dstH; y++ {
		yy := clampInt(int(math.Floor(float64(y)/sy)), 0, srcH-1)
		for x := 0; x < dstW; x++ {
			xx := clampInt(int(math.Floor(float64(x)/sx)), 0, srcW-1)
			dst.SetNRGBA(x, y, heat.NRGBAAt(xx, yy))
		}
	}
	return dst
}

// blend 以给定透明度把热力层压在相机帧上
func blend(base image.Image, heat *image.NRGBA, alpha float64) *image.NRGBA {
	bounds := base.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	xdraw.Draw(out, out.Bounds(), base, bounds.Min, xdraw.Src)

	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			c := out.NRGBAAt(x, y)
			h := heat.NRGBAAt(x, y)
			c.R = mix(c.R, h.R, alpha)
			c.G = mix(c.G, h.G, alpha)
			c.B = mix(c.B, h.B, alpha)
			out.SetNRGBA(x, y, c)
		}
	}
	return out
}

func mix(under, over uint8, alpha float64) uint8 {
	return clamp8(float64(under)*(1-alpha) + float64(over)*alpha)
}

// encodeFrame JPEG（质量80）优先，失败回退 PNG
// mime 类型由编码结果的前导字节决定，而不是尝试了哪个编码器
func encodeFrame(img image.Image) ([]byte, string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		buf.Reset()
		if err := png.Encode(&buf, img); err != nil {
			return nil, "", fmt.Errorf("encode composite frame: %w", err)
		}
	}
	return buf.Bytes(), SniffMime(buf.Bytes()), nil
}

// SniffMime 根据前导魔数判断图像类型：0x89 0x50 为 PNG，其余按 JPEG 处理
func SniffMime(data []byte) string {
	if len(data) >= 2 && data[0] == 0x89 && data[1] == 0x50 {
		return MimePNG
	}
	return MimeJPEG
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clamp8(v float64) uint8 {
	r := math.Round(v)
	if r < 0 {
		return 0
	}
	if r > 255 {
		return 255
	}
	return uint8(r)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
