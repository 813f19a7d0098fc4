package websocketPkg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"strconv"
	"sync"
	"time"

	"InventoryVision/internal/entity"
	"InventoryVision/pkg/detector"

	"github.com/disintegration/imaging"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var ErrNotConnected = errors.New("not connected to detection service")

type classesRequest struct {
	Op string `json:"op"`
}

type classesResponse struct {
	Names map[string]string `json:"names"`
	Error string            `json:"error,omitempty"`
}

type remoteDetection struct {
	ClassID    int       `json:"class_id"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox,omitempty"`
}

type detectResponse struct {
	Detections []remoteDetection `json:"detections"`
	Error      string            `json:"error,omitempty"`
}

// webSocketClient talks to an external detection service. One image is in
// flight per connection; the class list is read once when the client is
// created and never refreshed.
type webSocketClient struct {
	url          string
	conn         *websocket.Conn
	names        map[int]string
	mu           sync.Mutex
	log          *logrus.Logger
	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
	jpegQuality  int
	done         chan struct{}
	closeOnce    sync.Once
}

var _ detector.Detector = (*webSocketClient)(nil)

// NewAIWebSocketClient dials url and fetches the class list. A failure here
// leaves the service in simulated mode; it is not retried in the background.
func NewAIWebSocketClient(url string, log *logrus.Logger) (detector.Detector, error) {
	if url == "" {
		return nil, errors.New("URL for remote detection not configured")
	}

	c := &webSocketClient{
		url:          url,
		log:          log,
		pingInterval: 30 * time.Second,
		readTimeout:  30 * time.Second,
		writeTimeout: 5 * time.Second,
		jpegQuality:  95,
		done:         make(chan struct{}),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(); err != nil {
		return nil, err
	}

	names, err := c.fetchClassesLocked()
	if err != nil {
		close(c.done)
		c.dropLocked()
		return nil, err
	}
	c.names = names

	log.WithFields(logrus.Fields{
		"url":     url,
		"classes": len(names),
	}).Info("Connected to remote detection service")

	return c, nil
}

func (c *webSocketClient) connectLocked() error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	c.log.Infof("Connecting to detection service at %s", c.url)

	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}

	conn.SetPingHandler(func(appData string) error {
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.writeTimeout))
		if err != nil {
			c.log.Warnf("Error sending pong: %v", err)
		}
		return nil
	})

	c.conn = conn
	go c.keepAlive(conn)

	return nil
}

func (c *webSocketClient) dropLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *webSocketClient) keepAlive(conn *websocket.Conn) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		if c.conn != conn {
			c.mu.Unlock()
			return
		}

		err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(c.writeTimeout))
		if err != nil {
			c.log.Warnf("Ping failed for detection service, marking connection as dead: %v", err)
			c.dropLocked()
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
	}
}

func (c *webSocketClient) fetchClassesLocked() (map[int]string, error) {
	if err := c.writeLocked(context.Background(), websocket.TextMessage, mustMarshal(classesRequest{Op: "classes"})); err != nil {
		return nil, err
	}

	message, err := c.readLocked(context.Background())
	if err != nil {
		return nil, err
	}

	var resp classesResponse
	if err := json.Unmarshal(message, &resp); err != nil {
		return nil, fmt.Errorf("error unmarshaling classes response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("detection service: %s", resp.Error)
	}
	if len(resp.Names) == 0 {
		return nil, errors.New("detection service returned no classes")
	}

	names := make(map[int]string, len(resp.Names))
	for k, v := range resp.Names {
		id, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("invalid class id %q: %w", k, err)
		}
		names[id] = v
	}

	return names, nil
}

func (c *webSocketClient) deadline(ctx context.Context, timeout time.Duration) time.Time {
	d := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}
	return d
}

// writeLocked writes one message; the connection is dropped on failure.
func (c *webSocketClient) writeLocked(ctx context.Context, messageType int, payload []byte) error {
	if c.conn == nil {
		return ErrNotConnected
	}

	c.conn.SetWriteDeadline(c.deadline(ctx, c.writeTimeout))
	if err := c.conn.WriteMessage(messageType, payload); err != nil {
		c.dropLocked()
		return fmt.Errorf("error sending frame: %w", err)
	}
	c.conn.SetWriteDeadline(time.Time{})

	return nil
}

func (c *webSocketClient) readLocked(ctx context.Context) ([]byte, error) {
	if c.conn == nil {
		return nil, ErrNotConnected
	}

	c.conn.SetReadDeadline(c.deadline(ctx, c.readTimeout))
	_, message, err := c.conn.ReadMessage()
	if err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("error reading message: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{})

	return message, nil
}

func (c *webSocketClient) Detect(ctx context.Context, img image.Image) ([]entity.RawDetection, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(c.jpegQuality)); err != nil {
		return nil, fmt.Errorf("error encoding frame: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.connectLocked(); err != nil {
			return nil, fmt.Errorf("cannot connect to detection service: %w", err)
		}
	}

	c.log.Debugf("Sending frame of size: %d bytes", buf.Len())
	if err := c.writeLocked(ctx, websocket.BinaryMessage, buf.Bytes()); err != nil {
		return nil, err
	}

	message, err := c.readLocked(ctx)
	if err != nil {
		return nil, err
	}

	return decodeDetections(message)
}

func decodeDetections(message []byte) ([]entity.RawDetection, error) {
	var resp detectResponse
	if err := json.Unmarshal(message, &resp); err != nil {
		return nil, fmt.Errorf("error unmarshaling detection response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("detection service: %s", resp.Error)
	}

	raw := make([]entity.RawDetection, 0, len(resp.Detections))
	for _, d := range resp.Detections {
		if d.Confidence < 0 || d.Confidence > 1 {
			return nil, fmt.Errorf("confidence %v out of range [0, 1]", d.Confidence)
		}
		det := entity.RawDetection{ClassID: d.ClassID, Confidence: d.Confidence}
		switch len(d.BBox) {
		case 0:
		case 4:
			box := entity.BBox{d.BBox[0], d.BBox[1], d.BBox[2], d.BBox[3]}
			if box[0] > box[2] || box[1] > box[3] {
				return nil, fmt.Errorf("bbox %v is inverted", d.BBox)
			}
			det.BBox = &box
		default:
			return nil, fmt.Errorf("bbox must have 4 coordinates, got %d", len(d.BBox))
		}
		raw = append(raw, det)
	}

	return raw, nil
}

func (c *webSocketClient) ClassNames() map[int]string {
	return c.names
}

func (c *webSocketClient) Device() string {
	return "remote"
}

func (c *webSocketClient) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked()

	return nil
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
