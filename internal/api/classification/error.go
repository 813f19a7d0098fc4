package classification

import (
	"InventoryVision/pkg/response"
	"net/http"
)

var (
	ErrInvalidContentType = response.NewError(http.StatusBadRequest, "File must be an image")
	ErrMissingFile        = response.NewError(http.StatusBadRequest, "No file uploaded")
	ErrFileTooLarge       = response.NewError(http.StatusBadRequest, "File exceeds the maximum upload size")
	ErrInvalidMultipart   = response.NewError(http.StatusBadRequest, "Invalid multipart form")
	ErrNoFiles            = response.NewError(http.StatusBadRequest, "No files uploaded")
)

const (
	SimulatedClass      = "object"
	SimulatedConfidence = 0.5
	SimulatedNotice     = "Model not available - simulated classification"
	ModelNotLoaded      = "Model not loaded"
	BatchDeadlineNotice = "batch deadline exceeded"
)
