package onnx

import (
	"image"
	"image/color"
	"math"
	"sort"

	"InventoryVision/internal/entity"

	"github.com/disintegration/imaging"
)

var padColor = color.NRGBA{R: 114, G: 114, B: 114, A: 255}

// letterbox holds the scaling used to fit a source image into the model
// input while keeping its aspect ratio.
type letterbox struct {
	srcW, srcH int
	dstW, dstH int
	resizeW    int
	resizeH    int
	xPad, yPad int
	scale      float64
}

func newLetterbox(srcW, srcH, dstW, dstH int) letterbox {
	lb := letterbox{srcW: srcW, srcH: srcH, dstW: dstW, dstH: dstH}

	scaleW := float64(dstW) / float64(srcW)
	scaleH := float64(dstH) / float64(srcH)
	lb.scale = math.Min(scaleW, scaleH)

	lb.resizeW = max(1, int(math.Round(float64(srcW)*lb.scale)))
	lb.resizeH = max(1, int(math.Round(float64(srcH)*lb.scale)))
	lb.xPad = (dstW - lb.resizeW) / 2
	lb.yPad = (dstH - lb.resizeH) / 2

	return lb
}

func (lb letterbox) apply(img image.Image) *image.NRGBA {
	resized := imaging.Resize(img, lb.resizeW, lb.resizeH, imaging.Linear)
	canvas := imaging.New(lb.dstW, lb.dstH, padColor)
	return imaging.Paste(canvas, resized, image.Pt(lb.xPad, lb.yPad))
}

// toSource maps a box in model input space back to source pixels, clamped
// to the source bounds.
func (lb letterbox) toSource(box [4]float32) entity.BBox {
	clamp := func(v, limit float64) float64 {
		return math.Min(math.Max(v, 0), limit)
	}

	x1 := (float64(box[0]) - float64(lb.xPad)) / lb.scale
	y1 := (float64(box[1]) - float64(lb.yPad)) / lb.scale
	x2 := (float64(box[2]) - float64(lb.xPad)) / lb.scale
	y2 := (float64(box[3]) - float64(lb.yPad)) / lb.scale

	return entity.BBox{
		clamp(x1, float64(lb.srcW)),
		clamp(y1, float64(lb.srcH)),
		clamp(x2, float64(lb.srcW)),
		clamp(y2, float64(lb.srcH)),
	}
}

// fillCHW writes img as planar RGB floats in [0,1].
func fillCHW(dst []float32, img *image.NRGBA) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	channelSize := w * h

	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			i := y*w + x
			p := row[x*4:]
			dst[i] = float32(p[0]) / 255.0
			dst[channelSize+i] = float32(p[1]) / 255.0
			dst[channelSize*2+i] = float32(p[2]) / 255.0
		}
	}
}

type candidate struct {
	classID int
	score   float32
	box     [4]float32
}

// decodeOutput reads a YOLOv8 style tensor laid out as [4+numClasses][anchors]
// (cx, cy, w, h, class scores...) and keeps the best class of each anchor
// that reaches the threshold.
func decodeOutput(out []float32, numClasses, anchors int, threshold float32) []candidate {
	var cands []candidate

	for a := 0; a < anchors; a++ {
		bestClass, bestScore := -1, float32(0)
		for c := 0; c < numClasses; c++ {
			if s := out[(4+c)*anchors+a]; s > bestScore {
				bestClass, bestScore = c, s
			}
		}
		if bestClass < 0 || bestScore < threshold {
			continue
		}

		cx, cy := out[a], out[anchors+a]
		w, h := out[2*anchors+a], out[3*anchors+a]
		box := [4]float32{cx - w/2, cy - h/2, cx + w/2, cy + h/2}
		if !finiteBox(box) || w < 0 || h < 0 {
			continue
		}
		cands = append(cands, candidate{
			classID: bestClass,
			score:   bestScore,
			box:     box,
		})
	}

	return cands
}

func finiteBox(box [4]float32) bool {
	for _, v := range box {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// nms applies class-aware non-maximum suppression and returns at most
// maxDet candidates ordered by descending score.
func nms(cands []candidate, iouThreshold float32, maxDet int) []candidate {
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].score > cands[j].score
	})

	suppressed := make([]bool, len(cands))
	kept := make([]candidate, 0, min(len(cands), maxDet))

	for i := range cands {
		if suppressed[i] {
			continue
		}
		kept = append(kept, cands[i])
		if len(kept) >= maxDet {
			break
		}
		for j := i + 1; j < len(cands); j++ {
			if suppressed[j] || cands[j].classID != cands[i].classID {
				continue
			}
			if iou(cands[i].box, cands[j].box) > iouThreshold {
				suppressed[j] = true
			}
		}
	}

	return kept
}

func iou(a, b [4]float32) float32 {
	ix1 := max(a[0], b[0])
	iy1 := max(a[1], b[1])
	ix2 := min(a[2], b[2])
	iy2 := min(a[3], b[3])

	inter := max(0, ix2-ix1) * max(0, iy2-iy1)
	union := (a[2]-a[0])*(a[3]-a[1]) + (b[2]-b[0])*(b[3]-b[1]) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
