package websocketPkg

import (
	"bytes"
	"context"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// fakeService answers the classes op and every binary frame with reply.
// Connections listed in dropAfterClasses are closed right after the class list
// is sent.
func fakeService(t *testing.T, reply string, dropAfterClasses map[int32]bool) *httptest.Server {
	var connections int32
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		n := atomic.AddInt32(&connections, 1)

		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				return
			}

			switch messageType {
			case websocket.TextMessage:
				conn.WriteMessage(websocket.TextMessage, []byte(`{"names":{"0":"box","1":"shelf"}}`))
				if dropAfterClasses[n] {
					return
				}
			case websocket.BinaryMessage:
				if !bytes.HasPrefix(message, []byte{0xFF, 0xD8}) {
					conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"frame is not a jpeg"}`))
					continue
				}
				conn.WriteMessage(websocket.TextMessage, []byte(reply))
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestRemoteDetect(t *testing.T) {
	srv := fakeService(t, `{"detections":[{"class_id":1,"confidence":0.8,"bbox":[1,2,3,4]},{"class_id":0,"confidence":0.4}]}`, nil)
	defer srv.Close()

	d, err := NewAIWebSocketClient(wsURL(srv), quietLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer d.Close()

	names := d.ClassNames()
	if len(names) != 2 || names[0] != "box" || names[1] != "shelf" {
		t.Fatalf("unexpected class names %v", names)
	}
	if d.Device() != "remote" {
		t.Errorf("unexpected device %q", d.Device())
	}

	raw, err := d.Detect(context.Background(), image.NewNRGBA(image.Rect(0, 0, 8, 8)))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(raw) != 2 {
		t.Fatalf("expected 2 detections, got %d", len(raw))
	}
	if raw[0].ClassID != 1 || raw[0].Confidence != 0.8 || raw[0].BBox == nil || raw[0].BBox[3] != 4 {
		t.Errorf("unexpected first detection %+v", raw[0])
	}
	if raw[1].BBox != nil {
		t.Errorf("missing bbox should stay nil, got %v", raw[1].BBox)
	}
}

func TestRemoteDetectServiceError(t *testing.T) {
	srv := fakeService(t, `{"detections":[],"error":"model crashed"}`, nil)
	defer srv.Close()

	d, err := NewAIWebSocketClient(wsURL(srv), quietLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer d.Close()

	if _, err := d.Detect(context.Background(), image.NewNRGBA(image.Rect(0, 0, 4, 4))); err == nil || !strings.Contains(err.Error(), "model crashed") {
		t.Errorf("expected the service error, got %v", err)
	}
}

func TestRemoteReconnectsAfterDrop(t *testing.T) {
	srv := fakeService(t, `{"detections":[{"class_id":0,"confidence":0.9}]}`, map[int32]bool{1: true})
	defer srv.Close()

	d, err := NewAIWebSocketClient(wsURL(srv), quietLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer d.Close()

	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	if _, err := d.Detect(context.Background(), img); err == nil {
		t.Fatalf("expected an error on the dropped connection")
	}

	raw, err := d.Detect(context.Background(), img)
	if err != nil {
		t.Fatalf("expected the next call to re-dial, got %v", err)
	}
	if len(raw) != 1 || raw[0].Confidence != 0.9 {
		t.Errorf("unexpected detections %+v", raw)
	}
}

func TestNewClientErrors(t *testing.T) {
	if _, err := NewAIWebSocketClient("", quietLogger()); err == nil {
		t.Errorf("expected an error for an empty URL")
	}

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	if _, err := NewAIWebSocketClient(wsURL(srv), quietLogger()); err == nil {
		t.Errorf("expected an error when the handshake fails")
	}
}

func TestDecodeDetections(t *testing.T) {
	tests := []struct {
		name    string
		message string
		wantLen int
		wantErr bool
	}{
		{"empty list", `{"detections":[]}`, 0, false},
		{"no detections key", `{}`, 0, false},
		{"valid detection", `{"detections":[{"class_id":0,"confidence":1,"bbox":[1,2,1,4]}]}`, 1, false},
		{"short bbox", `{"detections":[{"class_id":0,"confidence":0.5,"bbox":[1,2]}]}`, 0, true},
		{"confidence above one", `{"detections":[{"class_id":0,"confidence":1.2}]}`, 0, true},
		{"negative confidence", `{"detections":[{"class_id":0,"confidence":-0.1}]}`, 0, true},
		{"inverted x", `{"detections":[{"class_id":0,"confidence":0.5,"bbox":[9,2,3,4]}]}`, 0, true},
		{"inverted y", `{"detections":[{"class_id":0,"confidence":0.5,"bbox":[1,8,3,4]}]}`, 0, true},
		{"not json", `nope`, 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := decodeDetections([]byte(tc.message))
			if (err != nil) != tc.wantErr {
				t.Fatalf("expected error %v, got %v", tc.wantErr, err)
			}
			if !tc.wantErr && len(raw) != tc.wantLen {
				t.Errorf("expected %d detections, got %d", tc.wantLen, len(raw))
			}
		})
	}
}
