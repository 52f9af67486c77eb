package application

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	control "hygrostat-cloud/internal/control/domain"
	telemetry "hygrostat-cloud/internal/telemetry/domain"
)

// Config defines the control loop configuration. Source roles are
// declared here, not sniffed from device names at runtime.
type Config struct {
	Field                  string             `yaml:"field"`
	Weights                map[string]float64 `yaml:"weights"`
	Thresholds             control.Thresholds `yaml:"thresholds"`
	WindowSeconds          int                `yaml:"window_seconds"`
	PeriodSeconds          int                `yaml:"period_seconds"`
	ActuatorBaseURL        string             `yaml:"actuator_base_url"`
	ActuatorTimeoutSeconds int                `yaml:"actuator_timeout_seconds"`
}

// LoadConfig loads config from yaml or env. CONTROL_CONFIG points at a
// yaml file; env variables fill whatever the file leaves unset.
func LoadConfig() (Config, error) {
	cfg := Config{
		Field: string(telemetry.FieldHumidity),
		Thresholds: control.Thresholds{
			On:  getenvFloatDefault("CONTROL_THRESHOLD_ON", control.DefaultThresholdOn),
			Off: getenvFloatDefault("CONTROL_THRESHOLD_OFF", control.DefaultThresholdOff),
		},
		WindowSeconds:          getenvIntDefault("CONTROL_WINDOW_SECONDS", 60),
		PeriodSeconds:          getenvIntDefault("CONTROL_PERIOD_SECONDS", 10),
		ActuatorBaseURL:        getenvDefault("ACTUATOR_BASE_URL", "http://localhost:5000"),
		ActuatorTimeoutSeconds: getenvIntDefault("ACTUATOR_TIMEOUT_SECONDS", 5),
	}

	if path := os.Getenv("CONTROL_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if len(cfg.Weights) == 0 {
		cfg.Weights = parseWeights(os.Getenv("CONTROL_WEIGHTS"))
	}
	if len(cfg.Weights) == 0 {
		cfg.Weights = map[string]float64{"easylog-01": 0.5, "sense-hat": 0.5}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects inconsistent configuration synchronously; nothing is
// clamped.
func (c Config) Validate() error {
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if err := control.ValidateWeights(c.Weights); err != nil {
		return err
	}
	switch telemetry.Field(c.Field) {
	case telemetry.FieldTemperature, telemetry.FieldHumidity:
	default:
		return fmt.Errorf("control config: unknown field %q", c.Field)
	}
	if c.WindowSeconds <= 0 {
		return fmt.Errorf("control config: window_seconds must be positive, got %d", c.WindowSeconds)
	}
	if c.PeriodSeconds <= 0 {
		return fmt.Errorf("control config: period_seconds must be positive, got %d", c.PeriodSeconds)
	}
	if c.ActuatorTimeoutSeconds <= 0 {
		return fmt.Errorf("control config: actuator_timeout_seconds must be positive, got %d", c.ActuatorTimeoutSeconds)
	}
	if c.ActuatorBaseURL == "" {
		return fmt.Errorf("control config: actuator_base_url required")
	}
	return nil
}

// parseWeights reads "source=weight,source=weight" pairs.
func parseWeights(value string) map[string]float64 {
	if value == "" {
		return nil
	}
	weights := make(map[string]float64)
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, raw, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			continue
		}
		weights[strings.TrimSpace(key)] = w
	}
	if len(weights) == 0 {
		return nil
	}
	return weights
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
