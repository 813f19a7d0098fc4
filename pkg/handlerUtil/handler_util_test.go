package handlerUtil

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"InventoryVision/pkg/response"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestHandleMapsErrors(t *testing.T) {
	t.Setenv("APP_ENV", "test")

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantDetail  string
		wantTraceID bool
	}{
		{"response error", response.NewError(http.StatusBadRequest, "File must be an image"), 400, "File must be an image", false},
		{"wrapped response error", fmt.Errorf("classify: %w", response.NewError(http.StatusBadRequest, "No file uploaded")), 400, "No file uploaded", false},
		{"fiber error", fiber.NewError(http.StatusRequestEntityTooLarge, "Request Entity Too Large"), 413, "Request Entity Too Large", false},
		{"unexpected", errors.New("disk on fire"), 500, "An unexpected error occurred", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			logger, _ := test.NewNullLogger()
			h := New(logger)

			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error {
				return h.Handle(c, "req-1", tc.err, c.Path(), "test")
			})

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
			if err != nil {
				t.Fatal(err)
			}
			body, _ := io.ReadAll(resp.Body)

			var got ErrorResponse
			if err := jsoniter.Unmarshal(body, &got); err != nil {
				t.Fatalf("body is not JSON: %s", body)
			}
			if resp.StatusCode != tc.wantStatus || got.Detail != tc.wantDetail {
				t.Errorf("expected %d %q, got %d %s", tc.wantStatus, tc.wantDetail, resp.StatusCode, body)
			}
			if (got.TraceID != "") != tc.wantTraceID {
				t.Errorf("unexpected trace id %q", got.TraceID)
			}
		})
	}
}

func TestResponseErrorIs(t *testing.T) {
	a := response.NewError(http.StatusBadRequest, "File must be an image")
	b := response.NewError(http.StatusBadRequest, "File must be an image")
	c := response.NewError(http.StatusBadRequest, "No file uploaded")

	if !errors.Is(fmt.Errorf("wrapped: %w", a), b) {
		t.Errorf("errors with the same code and message should match")
	}
	if errors.Is(a, c) {
		t.Errorf("errors with different messages should not match")
	}
}
