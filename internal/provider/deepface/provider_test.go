package deepface

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/faceguard/internal/frame"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/normalize"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/provider"
)

var (
	_ provider.FaceLocator = (*Provider)(nil)
	_ normalize.Aligner    = (*Provider)(nil)
)

func newTestProvider(t *testing.T, results []RepresentResult) *Provider {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(RepresentResponse{Results: results})
	}))
	t.Cleanup(server.Close)

	config := DefaultConfig()
	config.BaseURL = server.URL
	return NewProvider(config)
}

func TestProvider_Locate(t *testing.T) {
	p := newTestProvider(t, []RepresentResult{
		{FacialArea: FacialArea{X: 10, Y: 10, W: 40, H: 40}},
		{FacialArea: FacialArea{X: 80, Y: 90, W: 40, H: 40}},
		{FacialArea: FacialArea{X: 500, Y: 500, W: 10, H: 10}},
	})

	f := frame.FromImage(image.NewRGBA(image.Rect(0, 0, 100, 100)))
	boxes, err := p.Locate(context.Background(), f)
	require.NoError(t, err)

	assert.Equal(t, []frame.FaceBox{
		{X: 10, Y: 10, Width: 40, Height: 40},
		{X: 80, Y: 90, Width: 20, Height: 10},
	}, boxes)
}

func TestProvider_LocateInvalidFrame(t *testing.T) {
	p := newTestProvider(t, nil)
	_, err := p.Locate(context.Background(), &frame.Frame{})
	assert.ErrorIs(t, err, frame.ErrInvalidFrame)
}

func TestProvider_Align(t *testing.T) {
	crop := image.NewRGBA(image.Rect(0, 0, 80, 100))

	t.Run("most confident face is squared", func(t *testing.T) {
		p := newTestProvider(t, []RepresentResult{
			{FaceConfidence: 0.4, FacialArea: FacialArea{X: 0, Y: 0, W: 10, H: 10}},
			{FaceConfidence: 0.98, FacialArea: FacialArea{X: 20, Y: 20, W: 40, H: 50}},
		})

		region, ok, err := p.Align(context.Background(), crop)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, image.Rect(15, 20, 65, 70), region)
	})

	t.Run("eyes re-center horizontally", func(t *testing.T) {
		p := newTestProvider(t, []RepresentResult{
			{FaceConfidence: 0.9, FacialArea: FacialArea{X: 20, Y: 20, W: 40, H: 40, LeftEye: []int{34, 35}, RightEye: []int{54, 35}}},
		})

		region, ok, err := p.Align(context.Background(), crop)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, image.Rect(24, 20, 64, 60), region)
	})

	t.Run("no face", func(t *testing.T) {
		_, ok, err := newTestProvider(t, nil).Align(context.Background(), crop)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
