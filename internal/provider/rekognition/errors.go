package rekognition

import (
	"fmt"

	"github.com/saturnino-fabrica-de-software/faceguard/internal/frame"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/provider"
)

var (
	// ErrInvalidCredentials indicates that AWS credentials are invalid or missing
	ErrInvalidCredentials = fmt.Errorf("invalid or missing AWS credentials: %w", provider.ErrProviderUnavailable)

	// ErrInvalidImage indicates that Rekognition rejected the image bytes
	ErrInvalidImage = fmt.Errorf("invalid image for rekognition: %w", frame.ErrInvalidFrame)

	// ErrThrottled indicates the account hit its Rekognition throughput limit
	ErrThrottled = fmt.Errorf("rekognition request throttled: %w", provider.ErrProviderUnavailable)
)
