package grid

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// validate is a singleton validator instance
var validate = validator.New()

// Config holds the pipeline parameters plus the outer-layer sections.
// Distances are in the units of the projected frame (metres for wgs84).
type Config struct {
	VoltageThreshold      float64 `yaml:"voltage_threshold" json:"voltageThreshold" validate:"gt=0"`
	ClusterDistance       float64 `yaml:"cluster_distance" json:"clusterDistance" validate:"gte=0"`
	OverpassDistance      float64 `yaml:"overpass_distance" json:"overpassDistance" validate:"gte=0"`
	IsolatedBusDistance   float64 `yaml:"isolated_bus_distance" json:"isolatedBusDistance" validate:"gte=0"`
	MaxSubgraphIterations int     `yaml:"max_subgraph_iterations" json:"maxSubgraphIterations" validate:"min=1"`
	CRS                   string  `yaml:"crs" json:"crs" validate:"oneof=wgs84 planar"`
	ClusterAttributes     string  `yaml:"cluster_attributes" json:"clusterAttributes" validate:"oneof=first last drop"` // rule for keys merged substations disagree on

	Inputs InputConfig  `yaml:"inputs" json:"inputs"`
	Output OutputConfig `yaml:"output" json:"output"`
	Render RenderConfig `yaml:"render" json:"render"`
	MQTT   MQTTConfig   `yaml:"mqtt" json:"mqtt"`
	HTTP   HTTPConfig   `yaml:"http" json:"http"`
}

// InputConfig names the GeoJSON files read by the CLI.
type InputConfig struct {
	Lines       string `yaml:"lines" json:"lines"`
	Substations string `yaml:"substations" json:"substations"`
	Plants      string `yaml:"plants,omitempty" json:"plants,omitempty"`
}

// OutputConfig controls where result files go.
type OutputConfig struct {
	Dir    string `yaml:"dir" json:"dir" validate:"required"`
	Prefix string `yaml:"prefix" json:"prefix" validate:"required"`
}

// RenderConfig controls map rendering.
type RenderConfig struct {
	Format     string  `yaml:"format" json:"format" validate:"oneof=none svg png raster all"`
	Width      int     `yaml:"width" json:"width" validate:"gte=64"`
	Height     int     `yaml:"height" json:"height" validate:"gte=64"`
	Resolution float64 `yaml:"resolution,omitempty" json:"resolution,omitempty" validate:"gte=0"` // PNG pixels per millimetre, default 1
	Simplify   float64 `yaml:"simplify,omitempty" json:"simplify,omitempty" validate:"gte=0"`     // Douglas-Peucker tolerance in projected units
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// HTTPConfig holds the result server settings.
type HTTPConfig struct {
	Port int `yaml:"port" json:"port" validate:"gte=0,lte=65535"`
}

// DefaultConfig returns the parameters of the reference network build.
func DefaultConfig() *Config {
	return &Config{
		VoltageThreshold:      115,
		ClusterDistance:       500,
		OverpassDistance:      300,
		IsolatedBusDistance:   1000,
		MaxSubgraphIterations: 50,
		CRS:                   CRSWGS84,
		ClusterAttributes:     "first",
		Output:                OutputConfig{Dir: "output", Prefix: "network"},
		Render:                RenderConfig{Format: "none", Width: 1600, Height: 1200, Resolution: 1},
		HTTP:                  HTTPConfig{Port: 4040},
	}
}

// LoadConfig loads the configuration from a YAML file. Keys missing from the
// file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config cannot be nil")
	}
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return err
	}

	e := validationErrs[0]
	field := e.Namespace()
	switch e.Tag() {
	case "required":
		return fmt.Errorf("%s: field is required", field)
	case "gt":
		return fmt.Errorf("%s: must be greater than %s", field, e.Param())
	case "gte", "min":
		return fmt.Errorf("%s: must be at least %s", field, e.Param())
	case "lte":
		return fmt.Errorf("%s: must not exceed %s", field, e.Param())
	case "oneof":
		return fmt.Errorf("%s: must be one of [%s], got %v", field, e.Param(), e.Value())
	default:
		return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
	}
}
