package main

import (
	"time"

	"github.com/fpscan/fpscan/camera"
	"github.com/fpscan/fpscan/motion"
	"github.com/fpscan/fpscan/pattern"
	"github.com/fpscan/fpscan/scan"
)

// StageConfig selects and configures the Kinesis stages
type StageConfig struct {
	// Part is the stage or actuator part number, e.g. MTS50-Z8, which sets the unit scale
	Part string `yaml:"Part"`

	// Parts overrides Part for individual controllers, keyed by serial number
	Parts map[string]string `yaml:"Parts"`

	// Expected is the number of controllers to connect, zero connects all of them
	Expected int `yaml:"Expected"`

	Motion motion.Config `yaml:"Motion"`
}

// CameraConfig selects and configures the camera
type CameraConfig struct {
	// Model is a name from the camera model table
	Model string `yaml:"Model"`

	GrabTimeout time.Duration `yaml:"GrabTimeout"`

	Settings camera.Settings `yaml:"Settings"`
}

// ScanConfig describes the scan run by "fpctl run" and the defaults of POST /scan
type ScanConfig struct {
	OutDir string `yaml:"OutDir"`

	// Ext is the frame format, tiff png fits or npy
	Ext string `yaml:"Ext"`

	// Axes are the stage axes driven by the pattern coordinates
	Axes []string `yaml:"Axes"`

	// Origin is the absolute position of the pattern's zero, empty uses the stage references
	Origin []float64 `yaml:"Origin"`

	// Pattern is raster, zigzag or spiral.  PatternFile, if set, is loaded instead.
	Pattern     string         `yaml:"Pattern"`
	PatternFile string         `yaml:"PatternFile"`
	NX          int            `yaml:"NX"`
	NY          int            `yaml:"NY"`
	Step        float64        `yaml:"Step"`
	Jitter      pattern.Jitter `yaml:"Jitter"`

	SettleMove    time.Duration `yaml:"SettleMove"`
	SettleCapture time.Duration `yaml:"SettleCapture"`

	Params scan.Params `yaml:"Params"`
}

// Config is the fpctl configuration file
type Config struct {
	// Addr is the address serve listens at
	Addr string `yaml:"Addr"`

	// Mock replaces the stages and camera with simulations
	Mock bool `yaml:"Mock"`

	// RecordRoot is where served frames are written when autowrite is enabled
	RecordRoot string `yaml:"RecordRoot"`

	Stage  StageConfig  `yaml:"Stage"`
	Camera CameraConfig `yaml:"Camera"`
	Scan   ScanConfig   `yaml:"Scan"`
}

// DefaultConfig is the configuration used for anything the file leaves out
func DefaultConfig() Config {
	return Config{
		Addr:       ":8000",
		RecordRoot: "frames",
		Stage: StageConfig{
			Part:     "MTS50-Z8",
			Expected: 2,
			Motion: motion.Config{
				MinVelocity:  0,
				MaxVelocity:  2.3,
				Acceleration: 1.5,
				HomeVelocity: 1,
				JogStep:      0.1,
				MoveTimeout:  60 * time.Second,
				HomeTimeout:  120 * time.Second}},
		Camera: CameraConfig{
			Model:       "Basler daA1920-160um",
			GrabTimeout: 2 * time.Second,
			Settings:    camera.DefaultSettings()},
		Scan: ScanConfig{
			OutDir:        "scan",
			Ext:           "tiff",
			Axes:          []string{"x", "y"},
			Pattern:       "spiral",
			NX:            5,
			NY:            5,
			Step:          1000,
			SettleMove:    100 * time.Millisecond,
			SettleCapture: 100 * time.Millisecond,
			Params:        scan.DefaultParams()}}
}
