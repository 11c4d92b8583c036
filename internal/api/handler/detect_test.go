package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/faceguard/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/classifier"
	clsmock "github.com/saturnino-fabrica-de-software/faceguard/internal/classifier/mock"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/domain"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/normalize"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/pipeline"
	provmock "github.com/saturnino-fabrica-de-software/faceguard/internal/provider/mock"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/service"
)

// testLogger returns a logger that discards all output
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type errorEnvelope struct {
	Status string `json:"status"`
	Error  struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// newDetectApp wires the real service and pipeline around deterministic
// stand-ins for the locator and the classifier.
func newDetectApp(t *testing.T, score classifier.Score) *fiber.App {
	t.Helper()

	loc := provmock.New()
	cls := clsmock.NewFixed(score)
	models, err := pipeline.NewModels(loc, normalize.NewNormalizer(loc), cls, cls)
	require.NoError(t, err)

	svc := service.NewDetectionService(pipeline.New(models), loc.Name(), cls.Name(), testLogger())
	h := NewDetectHandler(svc, 1<<20, testLogger())

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(testLogger())})
	app.Post("/detect", h.Detect)
	app.Post("/detect-base64", h.DetectBase64)
	return app
}

func faceImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 160, 120))
	for y := 0; y < 120; y++ {
		for x := 0; x < 160; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(2 * y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

func whiteImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 160, 120))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartBody(t *testing.T, field string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, "frame.jpg")
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("callId", "call-abc"))
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func decodeDetection(t *testing.T, resp *http.Response) DetectionResponse {
	t.Helper()
	var out DetectionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func decodeError(t *testing.T, resp *http.Response) errorEnvelope {
	t.Helper()
	var out errorEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func postBase64(t *testing.T, app *fiber.App, payload map[string]interface{}) *http.Response {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/detect-base64", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestDetect_EndToEnd(t *testing.T) {
	tests := []struct {
		name      string
		score     classifier.Score
		image     func(t *testing.T) []byte
		wantFace  bool
		wantFake  *bool
		wantConf  *float64
		wantLabel string
		wantMsg   string
	}{
		{
			name:      "fake face",
			score:     0.2,
			image:     faceImage,
			wantFace:  true,
			wantFake:  ptr(true),
			wantConf:  ptr(0.2),
			wantLabel: "Fake",
			wantMsg:   service.MessageDetected,
		},
		{
			name:      "real face",
			score:     0.8766,
			image:     faceImage,
			wantFace:  true,
			wantFake:  ptr(false),
			wantConf:  ptr(0.877),
			wantLabel: "Real",
			wantMsg:   service.MessageDetected,
		},
		{
			name:    "blank white frame",
			score:   0.9,
			image:   whiteImage,
			wantMsg: service.MessageNoFace,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newDetectApp(t, tt.score)

			body, contentType := multipartBody(t, "file", tt.image(t))
			req := httptest.NewRequest(http.MethodPost, "/detect", body)
			req.Header.Set("Content-Type", contentType)

			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			out := decodeDetection(t, resp)
			assert.Equal(t, "v1", out.SchemaVersion)
			assert.Equal(t, "success", out.Status)
			assert.Equal(t, tt.wantFace, out.FaceDetected)
			assert.Equal(t, tt.wantFake, out.IsDeepfake)
			assert.Equal(t, tt.wantConf, out.Confidence)
			assert.Equal(t, tt.wantMsg, out.Message)
			assert.Equal(t, "call-abc", out.CallID)
			assert.NotEmpty(t, out.DetectionID)
			assert.Empty(t, out.AnnotatedImage)

			if tt.wantFace {
				require.Len(t, out.Faces, 1)
				assert.Equal(t, tt.wantLabel, out.Faces[0].Label)
				assert.True(t, out.Faces[0].Primary)
			} else {
				assert.Empty(t, out.Faces)
			}
		})
	}
}

func TestDetectBase64_DataURLPrefix(t *testing.T) {
	app := newDetectApp(t, 0.3)
	encoded := base64.StdEncoding.EncodeToString(faceImage(t))

	plain := decodeDetection(t, postBase64(t, app, map[string]interface{}{"image": encoded}))
	prefixed := decodeDetection(t, postBase64(t, app, map[string]interface{}{
		"image":     "data:image/jpeg;base64," + encoded,
		"callId":    "call-9",
		"timestamp": "2024-05-01T10:00:00Z",
	}))

	assert.True(t, prefixed.FaceDetected)
	assert.Equal(t, plain.IsDeepfake, prefixed.IsDeepfake)
	assert.Equal(t, plain.Confidence, prefixed.Confidence)
	assert.Equal(t, plain.Faces, prefixed.Faces)
	assert.Equal(t, "call-9", prefixed.CallID)
	assert.Equal(t, "2024-05-01T10:00:00Z", prefixed.Timestamp)
	assert.NotEqual(t, plain.DetectionID, prefixed.DetectionID)
}

func TestDetectBase64_Options(t *testing.T) {
	app := newDetectApp(t, 0.1)
	encoded := base64.StdEncoding.EncodeToString(faceImage(t))

	out := decodeDetection(t, postBase64(t, app, map[string]interface{}{
		"image":        encoded,
		"explain":      true,
		"return_image": true,
	}))

	require.NotEmpty(t, out.AnnotatedImage)
	require.NotEmpty(t, out.SaliencyImage)

	annotated, err := base64.StdEncoding.DecodeString(out.AnnotatedImage)
	require.NoError(t, err)
	_, format, err := image.DecodeConfig(bytes.NewReader(annotated))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestDetect_RequestErrors(t *testing.T) {
	app := newDetectApp(t, 0.5)

	t.Run("garbage upload", func(t *testing.T) {
		body, contentType := multipartBody(t, "file", []byte("definitely not an image"))
		req := httptest.NewRequest(http.MethodPost, "/detect", body)
		req.Header.Set("Content-Type", contentType)

		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		env := decodeError(t, resp)
		assert.Equal(t, "fail", env.Status)
		assert.Equal(t, "INVALID_IMAGE", env.Error.Code)
	})

	t.Run("legacy field name", func(t *testing.T) {
		body, contentType := multipartBody(t, "imageFile", faceImage(t))
		req := httptest.NewRequest(http.MethodPost, "/detect", body)
		req.Header.Set("Content-Type", contentType)

		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("missing file", func(t *testing.T) {
		body, contentType := multipartBody(t, "document", faceImage(t))
		req := httptest.NewRequest(http.MethodPost, "/detect", body)
		req.Header.Set("Content-Type", contentType)

		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		assert.Equal(t, "VALIDATION_FAILED", decodeError(t, resp).Error.Code)
	})

	t.Run("raw image body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/detect?return_image=true", bytes.NewReader(faceImage(t)))
		req.Header.Set("Content-Type", "image/jpeg")

		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, decodeDetection(t, resp).AnnotatedImage)
	})

	t.Run("unsupported content type", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/detect", strings.NewReader("hello"))
		req.Header.Set("Content-Type", "text/plain")

		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("too large", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/detect", bytes.NewReader(make([]byte, 2<<20)))
		req.Header.Set("Content-Type", "image/jpeg")

		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	})

	t.Run("base64 missing image", func(t *testing.T) {
		resp := postBase64(t, app, map[string]interface{}{"callId": "x"})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("base64 not decodable", func(t *testing.T) {
		resp := postBase64(t, app, map[string]interface{}{"image": "!!!not-base64!!!"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_IMAGE", decodeError(t, resp).Error.Code)
	})

	t.Run("base64 malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/detect-base64", strings.NewReader("{"))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

type MockDetectionService struct {
	mock.Mock
}

func (m *MockDetectionService) Detect(ctx context.Context, req service.DetectRequest) (*service.DetectResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DetectResponse), args.Error(1)
}

func TestDetect_InferenceFailureIsSanitized(t *testing.T) {
	svc := new(MockDetectionService)
	svc.On("Detect", mock.Anything, mock.Anything).
		Return(nil, domain.ErrInferenceFailed.WithError(assert.AnError))

	h := NewDetectHandler(svc, 0, testLogger())
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(testLogger())})
	app.Post("/detect", h.Detect)

	req := httptest.NewRequest(http.MethodPost, "/detect", bytes.NewReader(faceImage(t)))
	req.Header.Set("Content-Type", "image/jpeg")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), assert.AnError.Error())
	assert.Contains(t, string(raw), "INFERENCE_FAILED")

	svc.AssertExpectations(t)
}

func TestDecodeBase64Image(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain", in: "aGVsbG8=", want: "hello"},
		{name: "data url", in: "data:image/png;base64,aGVsbG8=", want: "hello"},
		{name: "unpadded", in: "aGVsbG8", want: "hello"},
		{name: "surrounding space", in: "  aGVsbG8=\n", want: "hello"},
		{name: "data url without comma", in: "data:image/png;base64", wantErr: true},
		{name: "garbage", in: "***", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeBase64Image(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func ptr[T any](v T) *T {
	return &v
}
