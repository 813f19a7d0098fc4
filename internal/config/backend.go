package config

import (
	"InventoryVision/pkg/detector"
	"InventoryVision/pkg/detector/onnx"
	websocketPkg "InventoryVision/pkg/websocket"

	"github.com/sirupsen/logrus"
)

// LoadDetectionBackend resolves the detection backend named by env. A backend
// that fails to load is logged and reported as unavailable, never fatal.
func LoadDetectionBackend(env *Env, log *logrus.Logger) detector.Backend {
	switch env.DetectionBackend {
	case BackendRemote:
		return loadRemoteBackend(env, log)
	default:
		return loadONNXBackend(env, log)
	}
}

func loadRemoteBackend(env *Env, log *logrus.Logger) detector.Backend {
	d, err := websocketPkg.NewAIWebSocketClient(env.RemoteURL, log)
	if err != nil {
		log.WithFields(logrus.Fields{
			"url":   env.RemoteURL,
			"error": err.Error(),
		}).Error("Remote detection service unavailable, serving simulated classifications")
		return detector.Unavailable(env.RemoteURL, false, err)
	}
	return detector.Ready(d, env.RemoteURL)
}

func loadONNXBackend(env *Env, log *logrus.Logger) detector.Backend {
	if err := onnx.InitRuntime(env.OnnxRuntimeLib); err != nil {
		log.WithFields(logrus.Fields{
			"library": env.OnnxRuntimeLib,
			"error":   err.Error(),
		}).Error("ONNX runtime unavailable, serving simulated classifications")
		return detector.Unavailable(env.ModelPath, false, err)
	}

	log.Infof("Loading YOLO model: %s", env.ModelPath)

	d, err := onnx.New(onnx.Params{
		ModelPath:     env.ModelPath,
		LabelsPath:    env.LabelsPath,
		Confidence:    float32(env.Confidence),
		IoU:           float32(env.IoU),
		MaxDetections: env.MaxDetections,
		Sessions:      env.Sessions,
	}, log)
	if err != nil {
		log.WithFields(logrus.Fields{
			"model": env.ModelPath,
			"error": err.Error(),
		}).Error("Failed to load model, serving simulated classifications")
		return detector.Unavailable(env.ModelPath, true, err)
	}

	return detector.Ready(d, env.ModelPath)
}
