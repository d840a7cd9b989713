// Package config provides configuration loading and management for tomorecon.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/knadh/koanf"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"gopkg.in/yaml.v3"

	"tomorecon/pkg/center"
	"tomorecon/pkg/export"
	"tomorecon/pkg/kernels"
	"tomorecon/pkg/recon"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// CoreCount specifies how many workers the kernels may use
		CoreCount int `yaml:"coreCount" koanf:"coreCount"`

		// ChunkCount is the number of rows per kernel work item
		ChunkCount int `yaml:"chunkCount" koanf:"chunkCount"`
	} `yaml:"processing" koanf:"processing"`

	// Artifact correction parameters
	Correction struct {
		// ZingerThreshold is the expected difference between a zinger and the
		// local median; 0 disables outlier removal
		ZingerThreshold float64 `yaml:"zingerThreshold" koanf:"zingerThreshold"`

		// ZingerKernelSize is the median kernel width for outlier removal
		ZingerKernelSize int `yaml:"zingerKernelSize" koanf:"zingerKernelSize"`

		// RingWidth is the kernel width for stripe removal; 0 disables it
		RingWidth int `yaml:"ringWidth" koanf:"ringWidth"`
	} `yaml:"correction" koanf:"correction"`

	// Normalization parameters
	Normalization struct {
		// BackgroundAir enables the secondary normalization to edge air pixels
		BackgroundAir bool `yaml:"backgroundAir" koanf:"backgroundAir"`

		// AirPixels is the number of outermost columns assumed to be air
		AirPixels int `yaml:"airPixels" koanf:"airPixels"`

		// PadSize is the target padded column count; 0 means no padding
		PadSize int `yaml:"padSize" koanf:"padSize"`

		// NegativeFloor replaces negative values before the negative log
		NegativeFloor float64 `yaml:"negativeFloor" koanf:"negativeFloor"`

		// RetainFlat keeps the flat field after normalization
		RetainFlat bool `yaml:"retainFlat" koanf:"retainFlat"`
	} `yaml:"normalization" koanf:"normalization"`

	// Center resolution parameters
	Centering struct {
		// Method is one of entropy, 0-180, vo
		Method string `yaml:"method" koanf:"method"`

		// Tolerance is the convergence tolerance in pixels
		Tolerance float64 `yaml:"tolerance" koanf:"tolerance"`

		// UpperSlice and LowerSlice override the dataset defaults when >= 0
		UpperSlice int `yaml:"upperSlice" koanf:"upperSlice"`
		LowerSlice int `yaml:"lowerSlice" koanf:"lowerSlice"`
	} `yaml:"centering" koanf:"centering"`

	// Reconstruction parameters
	Reconstruction struct {
		Algorithm  string `yaml:"algorithm" koanf:"algorithm"`
		Filter     string `yaml:"filter" koanf:"filter"`
		Iterations int    `yaml:"iterations" koanf:"iterations"`
	} `yaml:"reconstruction" koanf:"reconstruction"`

	// Post-processing parameters
	PostProcess struct {
		// Filter is one of none, gaussian, median, sobel
		Filter        string  `yaml:"filter" koanf:"filter"`
		GaussianSigma float64 `yaml:"gaussianSigma" koanf:"gaussianSigma"`
		MedianSize    int     `yaml:"medianSize" koanf:"medianSize"`

		// RingRemoval runs a second stripe removal pass on reconstructed slices
		RingRemoval bool `yaml:"ringRemoval" koanf:"ringRemoval"`
	} `yaml:"postprocess" koanf:"postprocess"`

	// Export parameters
	Export struct {
		// Dtype is one of u1, u2, f4
		Dtype string `yaml:"dtype" koanf:"dtype"`

		// Format is one of tiff (per-slice stack), volume (packed container)
		Format string `yaml:"format" koanf:"format"`

		// Scale is observed (map data min/max) or fixed (map FixedMin/FixedMax)
		Scale    string  `yaml:"scale" koanf:"scale"`
		FixedMin float64 `yaml:"fixedMin" koanf:"fixedMin"`
		FixedMax float64 `yaml:"fixedMax" koanf:"fixedMax"`

		OutputDir string `yaml:"outputDir" koanf:"outputDir"`
	} `yaml:"export" koanf:"export"`

	// Logging parameters
	Logging struct {
		Level string `yaml:"level" koanf:"level"`

		// OperationLog is the replayable session log file
		OperationLog string `yaml:"operationLog" koanf:"operationLog"`
	} `yaml:"logging" koanf:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.CoreCount = runtime.NumCPU()
	cfg.Processing.ChunkCount = 128

	cfg.Correction.ZingerThreshold = 0
	cfg.Correction.ZingerKernelSize = 3
	cfg.Correction.RingWidth = 9

	// 2048 suits a 1920 column detector reconstructed with gridrec
	cfg.Normalization.BackgroundAir = true
	cfg.Normalization.AirPixels = 10
	cfg.Normalization.PadSize = 2048
	cfg.Normalization.NegativeFloor = 1e-6
	cfg.Normalization.RetainFlat = false

	cfg.Centering.Method = center.Vo.String()
	cfg.Centering.Tolerance = 0.25
	cfg.Centering.UpperSlice = -1
	cfg.Centering.LowerSlice = -1

	cfg.Reconstruction.Algorithm = recon.Gridrec.String()
	cfg.Reconstruction.Filter = recon.Hann.String()
	cfg.Reconstruction.Iterations = 10

	cfg.PostProcess.Filter = kernels.NoFilter.String()
	cfg.PostProcess.GaussianSigma = 3
	cfg.PostProcess.MedianSize = 3
	cfg.PostProcess.RingRemoval = false

	cfg.Export.Dtype = export.Float32.String()
	cfg.Export.Format = export.PackedVolume.String()
	cfg.Export.Scale = export.ScaleObserved.String()
	cfg.Export.FixedMin = 0
	cfg.Export.FixedMax = 1
	cfg.Export.OutputDir = "."

	cfg.Logging.Level = "info"
	cfg.Logging.OperationLog = "logfile.txt"

	return cfg
}

// Validate rejects enumerated values that are not recognised
func (c *Config) Validate() error {
	if _, err := center.ParseMethod(c.Centering.Method); err != nil {
		return err
	}
	if _, err := recon.ParseAlgorithm(c.Reconstruction.Algorithm); err != nil {
		return err
	}
	if _, err := recon.ParseFilter(c.Reconstruction.Filter); err != nil {
		return err
	}
	if _, err := kernels.ParsePostFilter(c.PostProcess.Filter); err != nil {
		return err
	}
	if _, err := export.ParseDtype(c.Export.Dtype); err != nil {
		return err
	}
	if _, err := export.ParseFormat(c.Export.Format); err != nil {
		return err
	}
	if _, err := export.ParseScaleMode(c.Export.Scale); err != nil {
		return err
	}
	if c.Normalization.PadSize < 0 {
		return fmt.Errorf("padSize must be >= 0, got %d", c.Normalization.PadSize)
	}
	if c.Centering.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive, got %v", c.Centering.Tolerance)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file layered over the defaults.
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := k.Load(file.Provider(configPath), kyaml.Parser()); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
