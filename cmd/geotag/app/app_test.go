package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/roman-kulish/flight-geotag/internal/align"
	"github.com/roman-kulish/flight-geotag/internal/storage"
	"github.com/roman-kulish/flight-geotag/internal/telemetry"
	"github.com/roman-kulish/flight-geotag/internal/trigger"
)

func sample(ts int64, fields map[string]float64) telemetry.Sample {
	return telemetry.Sample{Timestamp: ts, Fields: fields}
}

func writeFlightLog(t *testing.T, dir string) {
	t.Helper()
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("creating log directory: %v", err)
	}

	rc := telemetry.RCChannelField(trigger.DefaultChannel)
	l := &telemetry.Log{
		Name: "00000001.BIN",
		Unit: telemetry.Seconds,
		Channels: map[telemetry.ChannelKind][]telemetry.Sample{
			telemetry.ChannelRCIn: {
				sample(998, map[string]float64{rc: 1900}),
				sample(999, map[string]float64{rc: 1900}),
				sample(1000, map[string]float64{rc: 1100}),
				sample(1001, map[string]float64{rc: 1100}),
			},
			telemetry.ChannelBaro: {
				sample(999, map[string]float64{telemetry.FieldAltitude: 50}),
				sample(1002, map[string]float64{telemetry.FieldAltitude: 55}),
			},
			telemetry.ChannelAttitude: {
				sample(999, map[string]float64{telemetry.FieldRoll: 1}),
				sample(1002, map[string]float64{telemetry.FieldRoll: 2}),
			},
			telemetry.ChannelGPS: {
				sample(1000, map[string]float64{telemetry.FieldLatitude: 32.5, telemetry.FieldLongitude: 35.1, telemetry.FieldGPSSource: 1}),
			},
		},
	}
	if err := storage.WriteLog(context.Background(), filepath.Join(dir, "00000001.sqlite"), l); err != nil {
		t.Fatalf("WriteLog() error = %v", err)
	}
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	logDir := filepath.Join(dir, "logs")
	writeFlightLog(t, logDir)

	manifest := writeFile(t, dir, "images.json", `[
  {"name": "IMG_0001.jpg", "timestamp": 1000},
  {"name": "IMG_0002.jpg", "timestamp": 1001, "metadata": {"camera": "A7R"}},
  {"name": "IMG_0003.jpg", "timestamp": 1003}
]`)

	return &Config{
		Settings:  Settings{LogLevel: "info", Unit: "s", Parallelism: 2},
		Logs:      []string{filepath.Join(logDir, "*.sqlite")},
		Images:    ImagesConfig{Manifest: manifest, Unit: "s"},
		Storage:   StorageConfig{DataDirectory: dir, Database: defaultDatabase},
		Trigger:   TriggerConfig{Channel: trigger.DefaultChannel},
		Alignment: AlignmentConfig{MaxBiasDays: 1, MinInvalidDays: 10, MaxDurationDays: 1},
		Fusion:    FusionConfig{GPS: true},
	}
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	config := testConfig(t)

	if err := Run(ctx, config, logger); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	store := storage.NewSqliteStore(filepath.Join(config.Storage.DataDirectory, config.Storage.Database))
	defer store.Close()

	run, err := store.Run(ctx, 1)
	if err != nil {
		t.Fatalf("Run(1) error = %v", err)
	}
	if run.Alignment.Direction != align.ShiftImages || run.Alignment.Class != align.Negligible {
		t.Errorf("alignment = %s/%s, want shift-images/negligible", run.Alignment.Direction, run.Alignment.Class)
	}
	if run.Delta != 0 {
		t.Errorf("Delta = %d, want 0", run.Delta)
	}

	records, err := store.FusedRecords(ctx, run.ID)
	if err != nil {
		t.Fatalf("FusedRecords() error = %v", err)
	}

	var got []float64
	for _, r := range records {
		alt, _ := r.GroundAltitude()
		got = append(got, alt)
	}
	if diff := cmp.Diff([]float64{50, 55, 55}, got); diff != "" {
		t.Errorf("altitudes mismatch (-want +got):\n%s", diff)
	}

	lat, lon, ok := records[1].Position()
	if !ok || lat != 32.5 || lon != 35.1 {
		t.Errorf("Position() = (%v, %v, %v), want (32.5, 35.1, true)", lat, lon, ok)
	}
	if records[1].Metadata["camera"] != "A7R" {
		t.Errorf("Metadata = %v, want camera A7R", records[1].Metadata)
	}

	// images are now in the session database, a second run reuses them
	config.Images.Manifest = ""
	if err = Run(ctx, config, logger); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	runs, err := store.Runs(ctx)
	if err != nil {
		t.Fatalf("Runs() error = %v", err)
	}
	if len(runs) != 2 || runs[1].NumRecords != 3 {
		t.Errorf("Runs() = %d runs, want 2 with 3 records each", len(runs))
	}
}

func TestRun_Failures(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("missing storage directory", func(t *testing.T) {
		config := testConfig(t)
		config.Storage.DataDirectory = filepath.Join(t.TempDir(), "missing")
		if err := Run(context.Background(), config, logger); err == nil {
			t.Fatal("Run() succeeded, want error")
		}
	})

	t.Run("unmatched log pattern", func(t *testing.T) {
		config := testConfig(t)
		config.Logs = []string{filepath.Join(t.TempDir(), "*.sqlite")}
		if err := Run(context.Background(), config, logger); err == nil {
			t.Fatal("Run() succeeded, want error")
		}
	})

	t.Run("ambiguous offset", func(t *testing.T) {
		config := testConfig(t)
		config.Images.Manifest = writeFile(t, t.TempDir(), "images.json",
			`[{"name": "IMG_0001.jpg", "timestamp": 173800}]`)
		err := Run(context.Background(), config, logger)
		if !errors.Is(err, align.ErrAmbiguousTimeDelta) {
			t.Fatalf("Run() error = %v, want %v", err, align.ErrAmbiguousTimeDelta)
		}
	})

	t.Run("manifest unit mismatch", func(t *testing.T) {
		config := testConfig(t)
		config.Images.Unit = "ms"
		err := Run(context.Background(), config, logger)
		if !errors.Is(err, telemetry.ErrTimestampUnitMismatch) {
			t.Fatalf("Run() error = %v, want %v", err, telemetry.ErrTimestampUnitMismatch)
		}
	})
}
