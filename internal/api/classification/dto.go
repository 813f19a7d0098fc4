package classification

import "InventoryVision/internal/entity"

type RootResponse struct {
	Status           string `json:"status"`
	BackendAvailable bool   `json:"backend_available"`
	ModelLoaded      bool   `json:"model_loaded"`
	ModelPath        string `json:"model_path"`
	Device           string `json:"device"`
}

type HealthResponse struct {
	Status     string `json:"status"`
	ModelReady bool   `json:"model_ready"`
}

type ClassesResponse struct {
	Available  bool     `json:"available"`
	NumClasses *int     `json:"num_classes,omitempty"`
	Message    string   `json:"message,omitempty"`
	Classes    []string `json:"classes"`
}

type BatchResponse struct {
	Results []entity.BatchItemResult `json:"results"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}
