package onnx

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"

	"InventoryVision/internal/entity"
	"InventoryVision/pkg/detector"

	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	defaultInputSize = 640
	namesMetadataKey = "names"
)

// Params configures the ONNX YOLO detector.
type Params struct {
	ModelPath     string
	LabelsPath    string
	Confidence    float32
	IoU           float32
	MaxDetections int
	Sessions      int
}

// InitRuntime loads the onnxruntime shared library. An empty libPath lets
// onnxruntime_go use its platform default.
func InitRuntime(libPath string) error {
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("error initializing onnxruntime: %w", err)
	}
	return nil
}

func DestroyRuntime() error {
	return ort.DestroyEnvironment()
}

type modelSession struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func (m *modelSession) Destroy() {
	if m.session != nil {
		m.session.Destroy()
	}
	if m.input != nil {
		m.input.Destroy()
	}
	if m.output != nil {
		m.output.Destroy()
	}
}

// Detector runs a YOLOv8 style ONNX export on the CPU.
type Detector struct {
	params     Params
	pool       *sessionPool[*modelSession]
	names      map[int]string
	inputW     int
	inputH     int
	numClasses int
	anchors    int
	log        *logrus.Logger
}

var _ detector.Detector = (*Detector)(nil)

// New loads the model at p.ModelPath. InitRuntime must have succeeded first.
func New(p Params, log *logrus.Logger) (*Detector, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(p.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("error reading model %s: %w", p.ModelPath, err)
	}
	if len(inputs) != 1 || len(outputs) == 0 {
		return nil, fmt.Errorf("expected one input and at least one output, got %d and %d", len(inputs), len(outputs))
	}

	in, out := inputs[0], outputs[0]

	inputW, inputH := defaultInputSize, defaultInputSize
	if dims := in.Dimensions; len(dims) == 4 && dims[2] > 0 && dims[3] > 0 {
		inputH, inputW = int(dims[2]), int(dims[3])
	}

	dims := out.Dimensions
	if len(dims) != 3 || dims[1] <= 4 || dims[2] <= 0 {
		return nil, fmt.Errorf("unsupported output shape %v for %s", dims, out.Name)
	}
	numClasses, anchors := int(dims[1])-4, int(dims[2])

	names, err := resolveNames(p)
	if err != nil {
		return nil, err
	}
	if len(names) < numClasses {
		log.WithFields(logrus.Fields{
			"labels":      len(names),
			"num_classes": numClasses,
		}).Warn("Model has more classes than labels")
	}

	inputShape := ort.NewShape(1, 3, int64(inputH), int64(inputW))
	outputShape := ort.NewShape(1, int64(numClasses+4), int64(anchors))

	pool, err := newSessionPool(p.Sessions, func() (*modelSession, error) {
		return newModelSession(p.ModelPath, in.Name, out.Name, inputShape, outputShape, p.Sessions)
	})
	if err != nil {
		return nil, err
	}

	d := &Detector{
		params:     p,
		pool:       pool,
		names:      names,
		inputW:     inputW,
		inputH:     inputH,
		numClasses: numClasses,
		anchors:    anchors,
		log:        log,
	}

	log.WithFields(logrus.Fields{
		"model":       p.ModelPath,
		"input":       fmt.Sprintf("%dx%d", inputW, inputH),
		"num_classes": numClasses,
		"labels":      len(names),
		"sessions":    pool.size,
	}).Info("ONNX model loaded")

	return d, nil
}

func newModelSession(modelPath, inputName, outputName string, inputShape, outputShape ort.Shape, sessions int) (*modelSession, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	threads := max(1, runtime.NumCPU()/max(1, sessions))
	if err := options.SetIntraOpNumThreads(threads); err != nil {
		return nil, fmt.Errorf("error setting intra-op threads: %w", err)
	}
	if err := options.SetInterOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("error setting inter-op threads: %w", err)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{inputName},
		[]string{outputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	return &modelSession{session: session, input: inputTensor, output: outputTensor}, nil
}

// resolveNames prefers an explicit labels file, then the names embedded by
// the exporter, then COCO.
func resolveNames(p Params) (map[int]string, error) {
	if p.LabelsPath != "" {
		return detector.LoadLabels(p.LabelsPath)
	}

	meta, err := ort.GetModelMetadata(p.ModelPath)
	if err != nil {
		return detector.COCONames(), nil
	}
	defer meta.Destroy()

	raw, ok, err := meta.LookupCustomMetadataMap(namesMetadataKey)
	if err != nil || !ok {
		return detector.COCONames(), nil
	}

	return detector.ParseNamesMetadata(raw)
}

func (d *Detector) Detect(ctx context.Context, img image.Image) ([]entity.RawDetection, error) {
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, errors.New("image has no pixels")
	}

	lb := newLetterbox(bounds.Dx(), bounds.Dy(), d.inputW, d.inputH)
	input := lb.apply(img)

	s, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire session: %w", err)
	}

	fillCHW(s.input.GetData(), input)
	if err := s.session.Run(); err != nil {
		d.pool.Release(s)
		return nil, fmt.Errorf("model inference: %w", err)
	}
	output := append([]float32(nil), s.output.GetData()...)
	d.pool.Release(s)

	cands := decodeOutput(output, d.numClasses, d.anchors, d.params.Confidence)
	kept := nms(cands, d.params.IoU, d.params.MaxDetections)

	raw := make([]entity.RawDetection, 0, len(kept))
	for _, c := range kept {
		box := lb.toSource(c.box)
		raw = append(raw, entity.RawDetection{
			ClassID:    c.classID,
			Confidence: float64(c.score),
			BBox:       &box,
		})
	}

	return raw, nil
}

func (d *Detector) ClassNames() map[int]string {
	return d.names
}

func (d *Detector) Device() string {
	return "CPU"
}

func (d *Detector) Close() error {
	d.pool.Destroy()
	return nil
}
