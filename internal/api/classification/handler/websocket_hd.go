package classificationHandler

import (
	"fmt"
	"time"

	"InventoryVision/internal/api/classification"
	"InventoryVision/internal/entity"
	"InventoryVision/internal/middleware"
	contextPkg "InventoryVision/pkg/context"
	"InventoryVision/pkg/log"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gofiber/websocket/v2"
	"golang.org/x/net/context"
)

// handleClassifyWebSocket classifies each binary frame as one image. The
// content type is sniffed from the frame since frames carry no headers.
func (h *ClassificationHandler) handleClassifyWebSocket(c *websocket.Conn) {
	requestID, _ := c.Locals(middleware.RequestIDKey).(string)

	h.log.WithField("request_id", requestID).Info("Classification WebSocket client connected")
	defer h.log.WithField("request_id", requestID).Info("Classification WebSocket client disconnected")

	c.SetPingHandler(func(data string) error {
		h.log.Debug("Received ping, sending pong")
		if err := c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second)); err != nil {
			h.log.Errorf("Error sending pong: %v", err)
		}
		return nil
	})

	for frame := 1; ; frame++ {
		if err := c.SetReadDeadline(time.Now().Add(wsReadTimeout)); err != nil {
			h.log.Errorf("Error setting read deadline: %v", err)
			break
		}

		messageType, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Errorf("Classification WebSocket error: %v", err)
			} else {
				h.log.Info("Classification WebSocket connection closed")
			}
			break
		}

		if messageType != websocket.BinaryMessage {
			h.log.Warnf("Received unexpected message type: %d", messageType)
			continue
		}

		upload := entity.Upload{
			Filename:    fmt.Sprintf("frame-%d", frame),
			ContentType: mimetype.Detect(message).String(),
			Data:        message,
		}

		h.log.WithFields(log.Fields{
			"request_id":   requestID,
			"frame":        frame,
			"size":         len(message),
			"content_type": upload.ContentType,
		}).Debug("Received frame for classification")

		ctx, cancel := context.WithTimeout(contextPkg.WithRequestID(context.Background(), requestID), h.requestTimeout)
		result, err := h.classificationService.Classify(ctx, upload)
		cancel()

		var reply interface{} = result
		if err != nil {
			reply = classification.ErrorResponse{Detail: err.Error()}
		}

		if err := c.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
			h.log.Errorf("Error setting write deadline: %v", err)
			break
		}

		if err := c.WriteJSON(reply); err != nil {
			h.log.Errorf("Error writing JSON response: %v", err)
			break
		}

		if err := c.SetWriteDeadline(time.Time{}); err != nil {
			h.log.Errorf("Error resetting write deadline: %v", err)
			break
		}
	}
}
