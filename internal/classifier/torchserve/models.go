package torchserve

// PredictionResponse is the body returned by /predictions/{model}
type PredictionResponse struct {
	Logit *float64 `json:"logit"`
}

// ExplanationResponse is the body returned by /explanations/{model}: an
// H x W activation grid for the "real" output.
type ExplanationResponse struct {
	Saliency [][]float32 `json:"saliency"`
}
