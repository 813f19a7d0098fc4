package entity

// BBox is a box in source image pixels: x1, y1, x2, y2.
type BBox [4]float64

// RawDetection is one object reported by a detection backend before
// class ids are resolved to names.
type RawDetection struct {
	ClassID    int
	Confidence float64
	BBox       *BBox
}

type Detection struct {
	ClassName  string  `json:"class_name"`
	Confidence float64 `json:"confidence"`
	BBox       *BBox   `json:"bbox"`
}

// ClassificationResult is what a single image classification produces.
// Success with a non-nil Error means the result came from the simulated
// fallback, not from a model.
type ClassificationResult struct {
	Success           bool        `json:"success"`
	Detections        []Detection `json:"detections"`
	PrimaryClass      *string     `json:"primary_class"`
	PrimaryConfidence *float64    `json:"primary_confidence"`
	Error             *string     `json:"error"`
}

type BatchItemResult struct {
	Filename string               `json:"filename"`
	Result   ClassificationResult `json:"result"`
}

// Upload is one submitted file as received from the client.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ModelStatus describes the detection backend resolved at startup.
type ModelStatus struct {
	BackendAvailable bool
	ModelLoaded      bool
	ModelPath        string
	Device           string
}
