package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"go.uber.org/zap"

	"github.com/ocpalps/parkmeter/internal/domain"
)

var ErrPlateNotRecognized = errors.New("no plate recognized in image")

// Italian plates: current format (AB123CD) and the old provincial one (ROMA12345, MI123456).
var platePattern = regexp.MustCompile(`^(([A-Z]{2}\d{3}[A-Z]{2})|(([A-Z]{2}|ROMA)(\d{5}|\d{6})))$`)

// TextDetector is the subset of the Rekognition client used for plates.
type TextDetector interface {
	DetectText(ctx context.Context, params *rekognition.DetectTextInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectTextOutput, error)
}

type PlateService struct {
	detector TextDetector
	ledger   Ledger
	log      *zap.Logger
}

func NewPlateService(detector TextDetector, ledger Ledger, log *zap.Logger) *PlateService {
	return &PlateService{detector: detector, ledger: ledger, log: log.Named("plates")}
}

// RecognizePlate returns the highest-confidence text line in the image that
// looks like a plate, normalized.
func (s *PlateService) RecognizePlate(ctx context.Context, image []byte) (string, float32, error) {
	if s.detector == nil {
		return "", 0, fmt.Errorf("%w: plate recognition is disabled", ErrUnavailable)
	}
	if len(image) == 0 {
		return "", 0, fmt.Errorf("%w: empty image", ErrInvalidInput)
	}

	result, err := s.detector.DetectText(ctx, &rekognition.DetectTextInput{
		Image: &types.Image{Bytes: image},
	})
	if err != nil {
		return "", 0, fmt.Errorf("PlateService.RecognizePlate: %w", err)
	}

	var best string
	var bestConfidence float32
	seen := make([]string, 0, len(result.TextDetections))
	for _, det := range result.TextDetections {
		if det.DetectedText == nil || det.Confidence == nil {
			continue
		}
		if det.Type != types.TextTypesLine && det.Type != types.TextTypesWord {
			continue
		}
		txt := domain.NormalizePlate(strings.NewReplacer("-", "", ".", "").Replace(*det.DetectedText))
		seen = append(seen, txt)
		if platePattern.MatchString(txt) && *det.Confidence > bestConfidence {
			best, bestConfidence = txt, *det.Confidence
		}
	}

	if best == "" {
		s.log.Debug("no plate among detected text", zap.Strings("text", seen))
		return "", 0, fmt.Errorf("%w (text: %s)", ErrPlateNotRecognized, strings.Join(seen, ", "))
	}
	s.log.Info("plate recognized", zap.String("plate", best), zap.Float32("confidence", bestConfidence))
	return best, bestConfidence, nil
}

// RegisterFromImage recognizes the plate and registers the access for it.
func (s *PlateService) RegisterFromImage(ctx context.Context, access domain.VehicleAccess, image []byte) (string, domain.PersistenceResult, error) {
	plate, _, err := s.RecognizePlate(ctx, image)
	if err != nil {
		return "", domain.PersistenceResult{}, err
	}
	access.VehicleID = plate
	return plate, s.ledger.RegisterAccess(ctx, access), nil
}
