package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/itohio/gothermo/pkg/ad7190"
	"github.com/itohio/gothermo/pkg/pid"
	"github.com/itohio/gothermo/pkg/sim"
)

// Config represents the application configuration.
type Config struct {
	Serial     SerialConfig     `yaml:"serial"`
	ADC        ADCConfig        `yaml:"adc"`
	Controller ControllerConfig `yaml:"controller"`
	Plant      PlantConfig      `yaml:"plant"`
	Log        LogConfig        `yaml:"log"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// ADCConfig contains the AD7190 configuration.
type ADCConfig struct {
	VRef          float64 `yaml:"vref"`
	Gain          int     `yaml:"gain"`           // 1, 8, 16, 32, 64 or 128
	SensorChannel string  `yaml:"sensor_channel"` // e.g. "ain1-com"
	ErrorChannel  string  `yaml:"error_channel"`  // e.g. "ain1-ain2"
	Unipolar      bool    `yaml:"unipolar"`
	Unbuffered    bool    `yaml:"unbuffered"`

	ResetSettle       time.Duration `yaml:"reset_settle"`
	CalibrationSettle time.Duration `yaml:"calibration_settle"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`

	SPIDevice    string `yaml:"spi_device"`    // Linux SPI port name for probing, e.g. "SPI0.0"
	SPIFrequency int64  `yaml:"spi_frequency"` // Hz
}

// ControllerConfig contains the PID controller parameters.
type ControllerConfig struct {
	Kp         float64       `yaml:"kp"`
	Ki         float64       `yaml:"ki"`
	Kd         float64       `yaml:"kd"`
	Interval   time.Duration `yaml:"interval"`
	Decimation int           `yaml:"decimation"`
	Verbose    bool          `yaml:"verbose"`
}

// PlantConfig contains simulated plant parameters used by the mock device.
type PlantConfig struct {
	Ambient          float64 `yaml:"ambient"`
	Setpoint         float64 `yaml:"setpoint"`
	HeatCapacity     float64 `yaml:"heat_capacity"`
	Loss             float64 `yaml:"loss"`
	HeaterResistance float64 `yaml:"heater_resistance"`
	Noise            float64 `yaml:"noise"`
}

// LogConfig contains logging options.
type LogConfig struct {
	RecordFile string `yaml:"record_file"` // Diagnostic lines are appended here when set
	Debug      bool   `yaml:"debug"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:     "/dev/ttyACM0",
			BaudRate: 115200,
		},
		ADC: ADCConfig{
			VRef:              2.5,
			Gain:              1, // the sensor divider shares the PGA
			SensorChannel:     "ain3-ain4",
			ErrorChannel:      "ain1-ain2",
			ResetSettle:       ad7190.DefaultResetSettle,
			CalibrationSettle: ad7190.DefaultCalibrationSettle,
			PollInterval:      ad7190.DefaultPollInterval,
			ReadTimeout:       ad7190.DefaultReadTimeout,
			SPIDevice:         "",
			SPIFrequency:      ad7190.SPIFrequency,
		},
		Controller: ControllerConfig{
			Kp:         400,
			Ki:         20,
			Kd:         50,
			Interval:   pid.DefaultInterval,
			Decimation: pid.DefaultDecimation,
			Verbose:    true,
		},
		Plant: PlantConfig{
			Ambient:          22,
			Setpoint:         40,
			HeatCapacity:     5,
			Loss:             0.05,
			HeaterResistance: 10,
			Noise:            0,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}

	if c.ADC.VRef == 0 {
		c.ADC.VRef = def.ADC.VRef
	}
	if c.ADC.Gain == 0 {
		c.ADC.Gain = def.ADC.Gain
	}
	if c.ADC.SensorChannel == "" {
		c.ADC.SensorChannel = def.ADC.SensorChannel
	}
	if c.ADC.ErrorChannel == "" {
		c.ADC.ErrorChannel = def.ADC.ErrorChannel
	}
	if c.ADC.ResetSettle == 0 {
		c.ADC.ResetSettle = def.ADC.ResetSettle
	}
	if c.ADC.CalibrationSettle == 0 {
		c.ADC.CalibrationSettle = def.ADC.CalibrationSettle
	}
	if c.ADC.PollInterval == 0 {
		c.ADC.PollInterval = def.ADC.PollInterval
	}
	if c.ADC.SPIFrequency == 0 {
		c.ADC.SPIFrequency = def.ADC.SPIFrequency
	}

	if c.Controller.Interval == 0 {
		c.Controller.Interval = def.Controller.Interval
	}
	if c.Controller.Decimation == 0 {
		c.Controller.Decimation = def.Controller.Decimation
	}

	if c.Plant.HeatCapacity == 0 {
		c.Plant.HeatCapacity = def.Plant.HeatCapacity
	}
	if c.Plant.Loss == 0 {
		c.Plant.Loss = def.Plant.Loss
	}
	if c.Plant.HeaterResistance == 0 {
		c.Plant.HeaterResistance = def.Plant.HeaterResistance
	}
}

// Device converts the ADC section to a driver configuration enabling both channels.
func (a ADCConfig) Device() (ad7190.Config, error) {
	sensor, errCh, err := a.Channels()
	if err != nil {
		return ad7190.Config{}, err
	}
	gain, err := ad7190.GainFromFactor(a.Gain)
	if err != nil {
		return ad7190.Config{}, err
	}

	cfg := ad7190.DefaultConfig(sensor | errCh)
	cfg.Gain = gain
	if a.Unipolar {
		cfg.Polarity = ad7190.Unipolar
	}
	cfg.Buffered = !a.Unbuffered
	cfg.ResetSettle = a.ResetSettle
	cfg.CalibrationSettle = a.CalibrationSettle
	cfg.PollInterval = a.PollInterval
	cfg.ReadTimeout = a.ReadTimeout
	return cfg, nil
}

// Channels returns the parsed sensor and error channel masks.
func (a ADCConfig) Channels() (sensor, errCh ad7190.Channel, err error) {
	if sensor, err = ad7190.ParseChannel(a.SensorChannel); err != nil {
		return 0, 0, fmt.Errorf("sensor_channel: %w", err)
	}
	if errCh, err = ad7190.ParseChannel(a.ErrorChannel); err != nil {
		return 0, 0, fmt.Errorf("error_channel: %w", err)
	}
	return sensor, errCh, nil
}

// Settings converts the controller section to controller settings.
func (c ControllerConfig) Settings() pid.Settings {
	return pid.Settings{
		Gains:      pid.Gains{Kp: c.Kp, Ki: c.Ki, Kd: c.Kd},
		Interval:   c.Interval,
		Decimation: c.Decimation,
		Verbose:    c.Verbose,
	}
}

// Sim converts the plant section to a simulator configuration.
func (p PlantConfig) Sim() sim.PlantConfig {
	return sim.PlantConfig{
		Ambient:          p.Ambient,
		Setpoint:         p.Setpoint,
		HeatCapacity:     p.HeatCapacity,
		Loss:             p.Loss,
		HeaterResistance: p.HeaterResistance,
		Noise:            p.Noise,
	}
}
