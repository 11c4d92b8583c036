package docs

import (
	"github.com/go-swagno/swagno"
	"github.com/go-swagno/swagno/components/endpoint"
	"github.com/go-swagno/swagno/components/http/response"
	"github.com/go-swagno/swagno/components/mime"
	"github.com/go-swagno/swagno/components/parameter"
)

// FaceVerdict represents one located face in a detection response
type FaceVerdict struct {
	X          int     `json:"x" example:"112"`
	Y          int     `json:"y" example:"64"`
	Width      int     `json:"width" example:"180"`
	Height     int     `json:"height" example:"180"`
	Label      string  `json:"label" example:"fake"`
	IsDeepfake bool    `json:"is_deepfake" example:"true"`
	Confidence float64 `json:"confidence" example:"0.912"`
	Primary    bool    `json:"primary" example:"true"`
}

// DetectionResponse represents the v1 classification result
type DetectionResponse struct {
	SchemaVersion  string        `json:"schema_version" example:"v1"`
	Status         string        `json:"status" example:"success"`
	IsDeepfake     *bool         `json:"is_deepfake" example:"true"`
	Confidence     *float64      `json:"confidence" example:"0.912"`
	FaceDetected   bool          `json:"faceDetected" example:"true"`
	Message        string        `json:"message" example:"Detection complete"`
	DetectionID    string        `json:"detection_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Faces          []FaceVerdict `json:"faces"`
	AnnotatedImage string        `json:"annotated_image,omitempty" example:"/9j/4AAQSkZJRg..."`
	SaliencyImage  string        `json:"saliency_image,omitempty" example:"/9j/4AAQSkZJRg..."`
	CallID         string        `json:"call_id,omitempty" example:"call-42"`
	Timestamp      string        `json:"timestamp,omitempty" example:"2024-01-01T00:00:00Z"`
	LatencyMs      int64         `json:"latency_ms" example:"84"`
}

// Base64Request represents the body of POST /detect-base64
type Base64Request struct {
	Image       string `json:"image" example:"data:image/jpeg;base64,/9j/4AAQSkZJRg..."`
	CallID      string `json:"callId" example:"call-42"`
	Timestamp   string `json:"timestamp" example:"2024-01-01T00:00:00Z"`
	Explain     bool   `json:"explain" example:"false"`
	ReturnImage bool   `json:"return_image" example:"false"`
}

// StoredDetection represents a detection read back from the store
type StoredDetection struct {
	ID           string        `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	CallID       string        `json:"call_id,omitempty" example:"call-42"`
	Source       string        `json:"source" example:"upload"`
	FaceDetected bool          `json:"face_detected" example:"true"`
	IsDeepfake   *bool         `json:"is_deepfake" example:"false"`
	Confidence   *float64      `json:"confidence" example:"0.874"`
	FacesCount   int           `json:"faces_count" example:"1"`
	Locator      string        `json:"locator" example:"pigo"`
	Classifier   string        `json:"classifier" example:"onnx"`
	LatencyMs    int64         `json:"latency_ms" example:"84"`
	Faces        []FaceVerdict `json:"faces"`
	CreatedAt    string        `json:"created_at" example:"2024-01-01T00:00:00Z"`
}

// DetectionStats represents per-call counters
type DetectionStats struct {
	CallID    string `json:"call_id" example:"call-42"`
	Total     int    `json:"total" example:"12"`
	Deepfakes int    `json:"deepfakes" example:"3"`
	NoFace    int    `json:"no_face" example:"1"`
}

// DetectionListResponse represents the detections of one call
type DetectionListResponse struct {
	CallID     string            `json:"call_id" example:"call-42"`
	Detections []StoredDetection `json:"detections"`
	Stats      DetectionStats    `json:"stats"`
}

// HealthResponse represents the liveness probe
type HealthResponse struct {
	Status  string `json:"status" example:"ok"`
	Version string `json:"version" example:"1.0.0"`
}

// ModelInfo represents the backends loaded at startup
type ModelInfo struct {
	Locator    string `json:"locator" example:"pigo"`
	Classifier string `json:"classifier" example:"onnx"`
	Explain    bool   `json:"explain" example:"true"`
}

// ReadyResponse represents the readiness probe
type ReadyResponse struct {
	Status   string    `json:"status" example:"ready"`
	Models   ModelInfo `json:"models"`
	Database string    `json:"database" example:"ok"`
}

// ErrorDetail represents the error part of a failure envelope
type ErrorDetail struct {
	Code    string `json:"code" example:"VALIDATION_FAILED"`
	Message string `json:"message" example:"Request validation failed"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Status string      `json:"status" example:"fail"`
	Error  ErrorDetail `json:"error"`
}

func failure(code, message, status, description string) response.Response {
	return response.New(ErrorResponse{Status: "fail", Error: ErrorDetail{Code: code, Message: message}}, status, description)
}

// NewSwagger creates and configures the Swagger documentation
func NewSwagger() *swagno.Swagger {
	sw := swagno.New(swagno.Config{
		Title:       "FaceGuard Deepfake Detection API",
		Version:     "v1.0.0",
		Description: "Classifies the faces in an image or video frame as real or deepfake",
		Host:        "localhost:3000",
	})

	detectErrors := []response.Response{
		failure("INVALID_IMAGE", "Invalid image format or corrupted file", "400", "Bad Request"),
		failure("IMAGE_TOO_LARGE", "Image exceeds the maximum allowed size", "413", "Payload Too Large"),
		failure("VALIDATION_FAILED", "image is required", "422", "Unprocessable Entity"),
		failure("RATE_LIMIT_EXCEEDED", "Rate limit exceeded, please try again later", "429", "Too Many Requests"),
		failure("INFERENCE_FAILED", "Face classification failed", "500", "Internal Server Error"),
		failure("DETECTOR_UNAVAILABLE", "Face detector is temporarily unavailable", "503", "Service Unavailable"),
	}

	endpoints := []*endpoint.EndPoint{
		endpoint.New(
			endpoint.GET,
			"/health",
			endpoint.WithTags("Health"),
			endpoint.WithSummary("Liveness probe"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(HealthResponse{}, "200", "Service is alive"),
			}),
		),

		endpoint.New(
			endpoint.GET,
			"/ready",
			endpoint.WithTags("Health"),
			endpoint.WithSummary("Readiness probe"),
			endpoint.WithDescription("Reports the loaded models and the detection store. Degraded when the store cannot be reached."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(ReadyResponse{}, "200", "Service is ready"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ReadyResponse{Status: "degraded", Database: "unavailable"}, "503", "Service Unavailable"),
			}),
		),

		// POST /detect - multipart or raw image upload
		endpoint.New(
			endpoint.POST,
			"/detect",
			endpoint.WithTags("Detection"),
			endpoint.WithSummary("Classify an uploaded image"),
			endpoint.WithDescription("Locates the faces in the image and classifies each as real or fake. The image is sent as multipart field file (image and imageFile are also accepted) or as a raw image body."),
			endpoint.WithConsume([]mime.MIME{mime.MIME("multipart/form-data"), mime.MIME("image/jpeg"), mime.MIME("image/png")}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("callId", parameter.Query, parameter.WithDescription("Video call the frame belongs to; subscribers of the call are notified")),
				parameter.StrParam("explain", parameter.Query, parameter.WithDescription("Attach a saliency map of the primary face (true/false)")),
				parameter.StrParam("return_image", parameter.Query, parameter.WithDescription("Attach the annotated image (true/false)")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(DetectionResponse{}, "200", "Classification completed"),
			}),
			endpoint.WithErrors(detectErrors),
		),

		// POST /detect-base64 - JSON body with a base64 image
		endpoint.New(
			endpoint.POST,
			"/detect-base64",
			endpoint.WithTags("Detection"),
			endpoint.WithSummary("Classify a base64 encoded image"),
			endpoint.WithDescription("Same as /detect with the image sent base64 encoded, optionally as a data URL"),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithBody(Base64Request{}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(DetectionResponse{}, "200", "Classification completed"),
			}),
			endpoint.WithErrors(append([]response.Response{
				failure("BAD_REQUEST", "Invalid request", "400", "Bad Request"),
			}, detectErrors...)),
		),

		endpoint.New(
			endpoint.GET,
			"/detections/{id}",
			endpoint.WithTags("Detections"),
			endpoint.WithSummary("Get a stored detection"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("id", parameter.Path, parameter.WithDescription("Detection UUID")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(StoredDetection{}, "200", "Detection found"),
			}),
			endpoint.WithErrors([]response.Response{
				failure("DETECTION_NOT_FOUND", "Detection not found", "404", "Not Found"),
				failure("VALIDATION_FAILED", "Request validation failed", "422", "Unprocessable Entity"),
			}),
		),

		endpoint.New(
			endpoint.GET,
			"/calls/{call_id}/detections",
			endpoint.WithTags("Detections"),
			endpoint.WithSummary("List the detections of a call"),
			endpoint.WithDescription("Most recent first, with per-call counters. Not found when no detection store is configured."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("call_id", parameter.Path, parameter.WithDescription("Video call identifier")),
				parameter.IntParam("limit", parameter.Query, parameter.WithDescription("Maximum number of detections (1-200, default 50)")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(DetectionListResponse{}, "200", "Detections listed"),
			}),
			endpoint.WithErrors([]response.Response{
				failure("NOT_FOUND", "Resource not found", "404", "Not Found"),
				failure("VALIDATION_FAILED", "Request validation failed", "422", "Unprocessable Entity"),
			}),
		),
	}

	sw.AddEndpoints(endpoints)

	return sw
}
