package onnx

import (
	"context"
	"image"
	"image/color"
	"math"
	"testing"
	"time"
)

func TestLetterboxGeometry(t *testing.T) {
	tests := []struct {
		srcW, srcH    int
		dstW, dstH    int
		expectedXPad  int
		expectedYPad  int
		expectedScale float64
	}{
		{1280, 720, 640, 640, 0, 140, 0.5},
		{800, 1000, 640, 640, 64, 0, 0.64},
		{800, 800, 640, 640, 0, 0, 0.8},
		{10, 10, 640, 640, 0, 0, 64},
	}

	for _, tc := range tests {
		lb := newLetterbox(tc.srcW, tc.srcH, tc.dstW, tc.dstH)
		if lb.xPad != tc.expectedXPad || lb.yPad != tc.expectedYPad {
			t.Errorf("src %dx%d: expected pads (%d,%d), got (%d,%d)",
				tc.srcW, tc.srcH, tc.expectedXPad, tc.expectedYPad, lb.xPad, lb.yPad)
		}
		if math.Abs(lb.scale-tc.expectedScale) > 1e-9 {
			t.Errorf("src %dx%d: expected scale %v, got %v", tc.srcW, tc.srcH, tc.expectedScale, lb.scale)
		}

		img := lb.apply(image.NewNRGBA(image.Rect(0, 0, tc.srcW, tc.srcH)))
		if img.Bounds().Dx() != tc.dstW || img.Bounds().Dy() != tc.dstH {
			t.Errorf("letterboxed image has bounds %v", img.Bounds())
		}
	}
}

func TestLetterboxToSourceClamps(t *testing.T) {
	lb := newLetterbox(1280, 720, 640, 640)

	box := lb.toSource([4]float32{-10, 130, 320, 400})
	want := [4]float64{0, 0, 640, 520}
	for i := range want {
		if math.Abs(box[i]-want[i]) > 1e-6 {
			t.Fatalf("expected %v, got %v", want, box)
		}
	}

	box = lb.toSource([4]float32{600, 140, 700, 600})
	if box[2] != 1280 || box[3] != 720 {
		t.Errorf("box should be clamped to the source bounds, got %v", box)
	}
}

func TestFillCHW(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 0, B: 51, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 0, G: 102, B: 255, A: 255})

	dst := make([]float32, 6)
	fillCHW(dst, img)

	want := []float32{1, 0, 0, 0.4, 0.2, 1}
	for i := range want {
		if math.Abs(float64(dst[i]-want[i])) > 1e-6 {
			t.Fatalf("expected %v, got %v", want, dst)
		}
	}
}

// output builds a [4+classes][anchors] tensor from per-anchor rows.
func output(classes int, rows [][]float32) []float32 {
	anchors := len(rows)
	out := make([]float32, (4+classes)*anchors)
	for a, row := range rows {
		for r, v := range row {
			out[r*anchors+a] = v
		}
	}
	return out
}

func TestDecodeOutputAndNMS(t *testing.T) {
	out := output(2, [][]float32{
		{50, 50, 20, 20, 0.90, 0.10},
		{51, 51, 20, 20, 0.80, 0.05},
		{51, 51, 20, 20, 0.10, 0.70},
		{200, 200, 10, 10, 0.60, 0.00},
		{300, 300, 10, 10, 0.10, 0.20},
	})

	cands := decodeOutput(out, 2, 5, 0.25)
	if len(cands) != 4 {
		t.Fatalf("expected 4 candidates over threshold, got %d", len(cands))
	}
	if cands[0].box != [4]float32{40, 40, 60, 60} {
		t.Errorf("unexpected corner box %v", cands[0].box)
	}

	kept := nms(cands, 0.45, 10)
	if len(kept) != 3 {
		t.Fatalf("expected 3 boxes after NMS, got %d: %+v", len(kept), kept)
	}

	wantClasses := []int{0, 1, 0}
	wantScores := []float32{0.90, 0.70, 0.60}
	for i := range kept {
		if kept[i].classID != wantClasses[i] || kept[i].score != wantScores[i] {
			t.Errorf("kept[%d] = %+v", i, kept[i])
		}
	}

	if got := nms(decodeOutput(out, 2, 5, 0.25), 0.45, 2); len(got) != 2 {
		t.Errorf("max detections not applied, got %d", len(got))
	}
}

func TestDecodeOutputSkipsNonFiniteBoxes(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))

	out := output(1, [][]float32{
		{nan, 50, 20, 20, 0.90},
		{50, 50, inf, 20, 0.85},
		{50, 50, -20, 20, 0.80},
		{100, 100, 10, 10, 0.70},
	})

	cands := decodeOutput(out, 1, 4, 0.25)
	if len(cands) != 1 {
		t.Fatalf("expected only the finite box to survive, got %+v", cands)
	}
	if cands[0].box != [4]float32{95, 95, 105, 105} || cands[0].score != 0.70 {
		t.Errorf("unexpected candidate %+v", cands[0])
	}
}

func TestIoU(t *testing.T) {
	a := [4]float32{0, 0, 10, 10}
	if v := iou(a, a); v != 1 {
		t.Errorf("identical boxes should have IoU 1, got %v", v)
	}
	if v := iou(a, [4]float32{20, 20, 30, 30}); v != 0 {
		t.Errorf("disjoint boxes should have IoU 0, got %v", v)
	}
	if v := iou(a, [4]float32{5, 0, 15, 10}); math.Abs(float64(v)-1.0/3.0) > 1e-6 {
		t.Errorf("expected 1/3, got %v", v)
	}
}

type fakeSession struct {
	destroyed *int
}

func (f fakeSession) Destroy() { *f.destroyed++ }

func TestSessionPool(t *testing.T) {
	destroyed := 0
	created := 0
	pool, err := newSessionPool(2, func() (fakeSession, error) {
		created++
		return fakeSession{destroyed: &destroyed}, nil
	})
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	if created != 2 {
		t.Fatalf("expected 2 sessions, got %d", created)
	}

	ctx := context.Background()
	s1, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	s2, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := pool.Acquire(waitCtx); err == nil {
		t.Fatalf("expected acquire to wait for a free session")
	}

	pool.Release(s1)
	pool.Destroy()
	if destroyed != 1 {
		t.Errorf("idle session should be destroyed with the pool, got %d", destroyed)
	}

	pool.Release(s2)
	if destroyed != 2 {
		t.Errorf("session released after close should be destroyed, got %d", destroyed)
	}

	if _, err := pool.Acquire(ctx); err != ErrPoolClosed {
		t.Errorf("expected ErrPoolClosed, got %v", err)
	}
}
