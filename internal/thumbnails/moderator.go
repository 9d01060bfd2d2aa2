package thumbnails

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
)

// Moderator screens thumbnail images before they are published. Labels
// lists the reasons an image was flagged.
type Moderator interface {
	Check(ctx context.Context, data []byte) (ok bool, labels []string, err error)
}

type moderationAPI interface {
	DetectModerationLabels(ctx context.Context, params *rekognition.DetectModerationLabelsInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectModerationLabelsOutput, error)
}

// RekognitionModerator flags images carrying any AWS Rekognition
// moderation label at or above MinConfidence.
type RekognitionModerator struct {
	client        moderationAPI
	minConfidence float32
}

func NewRekognitionModerator(ctx context.Context, region string, minConfidence float32) (*RekognitionModerator, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return &RekognitionModerator{
		client:        rekognition.NewFromConfig(cfg),
		minConfidence: minConfidence,
	}, nil
}

func (m *RekognitionModerator) Check(ctx context.Context, data []byte) (bool, []string, error) {
	payload, err := rekognitionPayload(data)
	if err != nil {
		return false, nil, err
	}

	out, err := m.client.DetectModerationLabels(ctx, &rekognition.DetectModerationLabelsInput{
		Image:         &types.Image{Bytes: payload},
		MinConfidence: aws.Float32(m.minConfidence),
	})
	if err != nil {
		return false, nil, fmt.Errorf("failed to moderate thumbnail: %w", err)
	}

	var labels []string
	for _, label := range out.ModerationLabels {
		if aws.ToFloat32(label.Confidence) >= m.minConfidence {
			labels = append(labels, aws.ToString(label.Name))
		}
	}
	return len(labels) == 0, labels, nil
}

// rekognitionPayload converts anything that is not JPEG or PNG to PNG,
// the only formats Rekognition accepts.
func rekognitionPayload(data []byte) ([]byte, error) {
	switch http.DetectContentType(data) {
	case "image/jpeg", "image/png":
		return data, nil
	}
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return encodePNG(img)
}

// skipModerator is used when moderation is disabled.
type skipModerator struct{}

func (skipModerator) Check(context.Context, []byte) (bool, []string, error) {
	return true, nil, nil
}
