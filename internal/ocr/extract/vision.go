package extract

import (
	"context"
	"fmt"
	"os"

	vision "cloud.google.com/go/vision/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"
)

// VisionEngine recognizes text with the Google Cloud Vision API.
// It runs server-side, so the granted GPU device is ignored.
type VisionEngine struct {
	client *vision.ImageAnnotatorClient
}

// NewVisionEngine creates an OCR engine with credentials from the environment.
// It expects either GOOGLE_APPLICATION_CREDENTIALS path or GOOGLE_CREDENTIALS
// JSON in env, falling back to application default credentials.
func NewVisionEngine(ctx context.Context) (*VisionEngine, error) {
	var client *vision.ImageAnnotatorClient
	var err error

	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsFile(credFile))
	} else {
		client, err = vision.NewImageAnnotatorClient(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}

	return &VisionEngine{client: client}, nil
}

// NewVisionEngineWithClient creates an engine with an explicit client (for testing)
func NewVisionEngineWithClient(client *vision.ImageAnnotatorClient) *VisionEngine {
	return &VisionEngine{client: client}
}

// Name implements Engine
func (e *VisionEngine) Name() string { return "vision" }

// Recognize implements Engine
func (e *VisionEngine) Recognize(ctx context.Context, image []byte, lang string, device int) (string, error) {
	var ictx *visionpb.ImageContext
	if lang != "" {
		ictx = &visionpb.ImageContext{LanguageHints: []string{lang}}
	}

	annotation, err := e.client.DetectDocumentText(ctx, &visionpb.Image{Content: image}, ictx)
	if err != nil {
		return "", fmt.Errorf("vision document text detection: %w", err)
	}
	if annotation == nil {
		return "", nil
	}
	return annotation.Text, nil
}

// Close releases the underlying client connection
func (e *VisionEngine) Close() error {
	return e.client.Close()
}
