package deepface

import (
	"errors"
	"fmt"

	"github.com/saturnino-fabrica-de-software/faceguard/internal/provider"
)

var (
	ErrDeepFaceUnavailable = fmt.Errorf("deepface: %w", provider.ErrProviderUnavailable)
	ErrInvalidResponse     = errors.New("invalid response from deepface")
)

func asStatusError(err error, target **statusError) bool {
	return err != nil && errors.As(err, target)
}
