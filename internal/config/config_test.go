package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"github.com/keagan/goalcut/internal/goals"
)

// clearEnv blanks the override variables so the host environment cannot leak
// into a test.
func clearEnv(t *testing.T) {
	for _, key := range []string{"GOALCUT_S3_BUCKET", "AWS_REGION", "KAFKA_BOOTSTRAP_SERVERS", "KAFKA_TOPIC", "GOALCUT_DB_PATH", "GOALCUT_MODEL_PATH"} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "goalcut.yaml")
	test.That(t, os.WriteFile(path, []byte(body), 0o644), test.ShouldBeNil)
	return path
}

func TestLoadMergesDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
detection:
  min_peak_distance_seconds: 45
  max_goals: 3
highlights:
  output_dir: clips
  reel: true
`)
	cfg, err := Load(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Detection.MinPeakDistanceSeconds, test.ShouldEqual, 45.0)
	test.That(t, cfg.Detection.MaxGoals, test.ShouldEqual, 3)
	test.That(t, cfg.Detection.BallWeight, test.ShouldEqual, goals.DefaultConfig().BallWeight)
	test.That(t, cfg.Highlights.OutputDir, test.ShouldEqual, "clips")
	test.That(t, cfg.Highlights.Reel, test.ShouldBeTrue)
	test.That(t, cfg.Highlights.PreSeconds, test.ShouldEqual, 10.0)
	test.That(t, cfg.Vision.InputSize, test.ShouldEqual, 640)
	test.That(t, cfg.Validate(), test.ShouldBeNil)
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg, test.ShouldResemble, defaultConfig())
}

func TestLoadBadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "detection: [unclosed"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GOALCUT_S3_BUCKET", "match-clips")
	t.Setenv("AWS_REGION", "eu-west-2")
	t.Setenv("KAFKA_BOOTSTRAP_SERVERS", "broker:9092")
	t.Setenv("KAFKA_TOPIC", "goals")
	t.Setenv("GOALCUT_DB_PATH", "/var/lib/goalcut.db")
	t.Setenv("GOALCUT_MODEL_PATH", "/models/yolov8s.onnx")

	cfg, err := Load(writeConfig(t, "upload:\n  region: us-west-1\n"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Upload.Enabled, test.ShouldBeTrue)
	test.That(t, cfg.Upload.Bucket, test.ShouldEqual, "match-clips")
	test.That(t, cfg.Upload.Region, test.ShouldEqual, "eu-west-2")
	test.That(t, cfg.Kafka.Enabled, test.ShouldBeTrue)
	test.That(t, cfg.Kafka.BootstrapServers, test.ShouldEqual, "broker:9092")
	test.That(t, cfg.Kafka.Topic, test.ShouldEqual, "goals")
	test.That(t, cfg.DBPath, test.ShouldEqual, "/var/lib/goalcut.db")
	test.That(t, cfg.Vision.ModelPath, test.ShouldEqual, "/models/yolov8s.onnx")
	test.That(t, cfg.Validate(), test.ShouldBeNil)
}

func TestValidate(t *testing.T) {
	cfg := defaultConfig()
	cfg.Detection.SmoothingWindowSeconds = -1
	test.That(t, cfg.Validate(), test.ShouldNotBeNil)

	cfg = defaultConfig()
	cfg.Upload.Enabled = true
	test.That(t, cfg.Validate(), test.ShouldNotBeNil)

	cfg = defaultConfig()
	cfg.Kafka.Enabled = true
	test.That(t, cfg.Validate(), test.ShouldNotBeNil)

	cfg = defaultConfig()
	cfg.Highlights.Workers = 0
	test.That(t, cfg.Validate(), test.ShouldNotBeNil)
	cfg.Highlights.Enabled = false
	test.That(t, cfg.Validate(), test.ShouldBeNil)
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	cfg := defaultConfig()
	cfg.Detection.MaxGoals = 5
	cfg.Highlights.Thumbnails = true
	path := filepath.Join(t.TempDir(), "saved.yaml")
	test.That(t, cfg.Save(path), test.ShouldBeNil)

	loaded, err := Load(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, loaded, test.ShouldResemble, cfg)
}

func TestContext(t *testing.T) {
	test.That(t, FromContext(context.Background()), test.ShouldResemble, defaultConfig())

	cfg := defaultConfig()
	cfg.DBPath = "other.db"
	test.That(t, FromContext(WithConfig(context.Background(), cfg)), test.ShouldEqual, cfg)
}
