// Package vision runs a YOLOv8 ONNX model over decoded video frames and
// exposes the result as a detection.Source.
package vision

import (
	"fmt"
	"image"
	"os"

	"github.com/rs/zerolog"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/keagan/goalcut/internal/detection"
)

// Config configures the YOLO model.
type Config struct {
	ModelPath string `yaml:"model_path"`
	// LibraryPath points at the onnxruntime shared library when it is not on
	// the default search path.
	LibraryPath         string  `yaml:"library_path"`
	InputSize           int     `yaml:"input_size"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	NMSThreshold        float64 `yaml:"nms_threshold"`
	// MaxFrameWidth downscales decoded frames wider than this.
	MaxFrameWidth int    `yaml:"max_frame_width"`
	InputName     string `yaml:"input_name"`
	OutputName    string `yaml:"output_name"`
}

// DefaultConfig returns settings for a COCO trained yolov8n export.
func DefaultConfig() Config {
	return Config{
		ModelPath:           "models/yolov8n.onnx",
		InputSize:           640,
		ConfidenceThreshold: 0.45,
		NMSThreshold:        0.4,
		MaxFrameWidth:       1280,
		InputName:           "images",
		OutputName:          "output0",
	}
}

// FrameDetector finds people and balls in a single image.
type FrameDetector interface {
	Detect(img image.Image) ([]detection.Detection, error)
}

// YOLO is a FrameDetector backed by an onnxruntime session. It reuses its
// tensors between calls and is not safe for concurrent use.
type YOLO struct {
	logger  zerolog.Logger
	config  Config
	session *ort.DynamicAdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// NewYOLO loads the model and initialises the ONNX runtime environment.
func NewYOLO(logger zerolog.Logger, cfg Config) (*YOLO, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}

	size := int64(cfg.InputSize)
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 4+yoloClasses, yoloAnchors))
	if err != nil {
		input.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	sess, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		nil,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create YOLO session: %w", err)
	}

	logger = logger.With().Str("component", "yolo").Logger()
	logger.Info().
		Str("model", cfg.ModelPath).
		Int("input_size", cfg.InputSize).
		Float64("confidence", cfg.ConfidenceThreshold).
		Float64("nms", cfg.NMSThreshold).
		Msg("YOLO model loaded")

	return &YOLO{
		logger:  logger,
		config:  cfg,
		session: sess,
		input:   input,
		output:  output,
	}, nil
}

// Detect implements FrameDetector. Box coordinates are in the pixel space of
// img.
func (y *YOLO) Detect(img image.Image) ([]detection.Detection, error) {
	bounds := img.Bounds()
	tensorize(img, y.config.InputSize, y.input.GetData())

	inputs := []ort.ArbitraryTensor{y.input}
	outputs := []ort.ArbitraryTensor{y.output}
	if err := y.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("YOLO inference failed: %w", err)
	}

	cands := decodeOutput(y.output.GetData(), yoloAnchors, yoloClasses, y.config.InputSize,
		bounds.Dx(), bounds.Dy(), float32(y.config.ConfidenceThreshold), isPlayerOrBall)
	cands = nonMaxSuppression(cands, y.config.NMSThreshold)

	dets := make([]detection.Detection, 0, len(cands))
	for _, c := range cands {
		class, err := detection.ClassFromCOCO(c.classID)
		if err != nil {
			continue
		}
		dets = append(dets, detection.Detection{
			Class:      class,
			Box:        c.box,
			Confidence: float64(c.confidence),
		})
	}
	return dets, nil
}

// Close releases the session, the tensors and the ONNX environment.
func (y *YOLO) Close() error {
	y.logger.Debug().Msg("closing YOLO session")
	var firstErr error
	if y.session != nil {
		if err := y.session.Destroy(); err != nil {
			firstErr = err
		}
	}
	y.input.Destroy()
	y.output.Destroy()
	if err := ort.DestroyEnvironment(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func isPlayerOrBall(classID int) bool {
	return classID == detection.COCOPerson || classID == detection.COCOSportsBall
}
