package deepface

// RepresentRequest for POST /represent
type RepresentRequest struct {
	Img              string `json:"img"`              // data URL or base64 image
	Model            string `json:"model_name"`       // "Facenet", "VGG-Face", etc
	Detector         string `json:"detector_backend"` // "mtcnn", "retinaface", etc
	EnforceDetection bool   `json:"enforce_detection"`
}

// RepresentResponse from POST /represent
type RepresentResponse struct {
	Results []RepresentResult `json:"results"`
}

type RepresentResult struct {
	FaceConfidence float64    `json:"face_confidence"`
	FacialArea     FacialArea `json:"facial_area"`
}

type FacialArea struct {
	X        int   `json:"x"`
	Y        int   `json:"y"`
	W        int   `json:"w"`
	H        int   `json:"h"`
	LeftEye  []int `json:"left_eye,omitempty"`
	RightEye []int `json:"right_eye,omitempty"`
}
