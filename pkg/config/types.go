package config

import (
	"time"

	"github.com/armtune/tuner-core/pkg/models"
)

// Optimizer backend names accepted in the configuration file.
const (
	OptimizerBayesian              = "BO"
	OptimizerDifferentialEvolution = "DE"
)

// Acquisition strategy names for the surrogate-model backend.
const (
	AcquisitionUCB = "ucb"
	AcquisitionEI  = "ei"
)

// Overshoot scoring policies. Historical runs disagreed on whether
// overshoot should keep its sign, so the choice is configuration.
const (
	OvershootSigned   = "signed"
	OvershootAbsolute = "absolute"
)

// Config is the full tuning daemon configuration.
type Config struct {
	LogLevel   string           `yaml:"log_level"`
	Arduino    ArduinoConfig    `yaml:"arduino"`
	Optimizer  OptimizerConfig  `yaml:"optimizer"`
	Bounds     BoundsConfig     `yaml:"parameter_bounds"`
	Constraint ConstraintConfig `yaml:"constraints"`
	Experiment ExperimentConfig `yaml:"experiment"`
	Session    SessionConfig    `yaml:"session"`
	Handshake  HandshakeConfig  `yaml:"handshake"`
}

// ArduinoConfig describes the serial connection to the device.
type ArduinoConfig struct {
	Port          string `yaml:"port"`
	BaudRate      int    `yaml:"baud_rate"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms"`
	SettleMs      int    `yaml:"settle_ms"`
}

// ReadTimeout returns the bounded read timeout as a duration.
func (a ArduinoConfig) ReadTimeout() time.Duration {
	return time.Duration(a.ReadTimeoutMs) * time.Millisecond
}

// SettleInterval returns the post-reset settle interval as a duration.
func (a ArduinoConfig) SettleInterval() time.Duration {
	return time.Duration(a.SettleMs) * time.Millisecond
}

// OptimizerConfig selects and parameterizes the search backend.
type OptimizerConfig struct {
	Name       string `yaml:"name"` // "BO" or "DE"
	Iterations int    `yaml:"iterations"`

	// Surrogate-model backend settings.
	Acquisition string `yaml:"acquisition,omitempty"` // "ucb" or "ei"
	InitPoints  int    `yaml:"init_points,omitempty"`

	// Differential evolution backend settings.
	PopulationSize int     `yaml:"population_size,omitempty"`
	Mutation       float64 `yaml:"mutation,omitempty"`
	Crossover      float64 `yaml:"crossover,omitempty"`
}

// BoundRange is a (lower, upper) pair in the configuration file.
type BoundRange struct {
	Lower float64 `yaml:"lower"`
	Upper float64 `yaml:"upper"`
}

// BoundsConfig is the per-gain search space.
type BoundsConfig struct {
	Kp BoundRange `yaml:"kp"`
	Ki BoundRange `yaml:"ki"`
	Kd BoundRange `yaml:"kd"`
}

// ConstraintConfig bounds the constraint vector. Entry order here is the
// order of the constraint function's output: overshoot first, then rise
// time.
type ConstraintConfig struct {
	Overshoot BoundRange `yaml:"overshoot"`
	RiseTime  BoundRange `yaml:"rise_time"`
}

// ExperimentConfig describes one closed-loop run on the plant.
type ExperimentConfig struct {
	SetPoint        float64 `yaml:"set_point"`
	RunTimeMs       int     `yaml:"run_time_ms"`
	DumpRateMs      int     `yaml:"dump_rate_ms"`
	Tolerance       float64 `yaml:"tolerance"`
	OvershootPolicy string  `yaml:"overshoot_policy,omitempty"` // "signed" or "absolute"
}

// SessionConfig controls seeding, early stop, and result persistence.
type SessionConfig struct {
	InitStatesPath  string  `yaml:"init_states_path"`
	InitState       int     `yaml:"init_state"`
	EarlyStopMs     float64 `yaml:"early_stop_settling_ms"`
	ResultsDir      string  `yaml:"results_dir"`
	PlotResponses   bool    `yaml:"plot_responses"`
	MonitorResource bool    `yaml:"monitor_resources"`
}

// HandshakeConfig bounds the send/acknowledge retry loop against the
// device. The original tuning scripts retried forever; a ceiling plus
// backoff keeps a disconnected device from livelocking the session.
type HandshakeConfig struct {
	MaxAttempts int    `yaml:"max_attempts"`
	Backoff     string `yaml:"backoff"` // exponential, linear, constant
	BaseMs      int    `yaml:"base_ms"`
	MaxMs       int    `yaml:"max_ms"`
}

// ParameterBounds converts the config search space to the domain type.
func (b BoundsConfig) ParameterBounds() models.ParameterBounds {
	return models.ParameterBounds{
		Kp: models.Bound{Lower: b.Kp.Lower, Upper: b.Kp.Upper},
		Ki: models.Bound{Lower: b.Ki.Lower, Upper: b.Ki.Upper},
		Kd: models.Bound{Lower: b.Kd.Lower, Upper: b.Kd.Upper},
	}
}

// ConstraintBounds converts the config constraints to the ordered domain
// type. Overshoot is always first, rise time second.
func (c ConstraintConfig) ConstraintBounds() models.ConstraintBounds {
	return models.ConstraintBounds{
		{Name: "overshoot", Bound: models.Bound{Lower: c.Overshoot.Lower, Upper: c.Overshoot.Upper}},
		{Name: "rise_time", Bound: models.Bound{Lower: c.RiseTime.Lower, Upper: c.RiseTime.Upper}},
	}
}

// RunParameters converts the experiment settings to the domain type.
func (e ExperimentConfig) RunParameters() models.RunParameters {
	return models.RunParameters{
		RunTimeMs:  e.RunTimeMs,
		DumpRateMs: e.DumpRateMs,
		SetPoint:   e.SetPoint,
	}
}

// Default returns a configuration with the defaults the tuning rig has
// been run with.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Arduino: ArduinoConfig{
			Port:          "/dev/ttyACM0",
			BaudRate:      9600,
			ReadTimeoutMs: 2000,
			SettleMs:      2000,
		},
		Optimizer: OptimizerConfig{
			Name:           OptimizerDifferentialEvolution,
			Iterations:     50,
			Acquisition:    AcquisitionUCB,
			InitPoints:     2,
			PopulationSize: 5,
			Mutation:       0.8,
			Crossover:      0.9,
		},
		Bounds: BoundsConfig{
			Kp: BoundRange{Lower: 1, Upper: 25},
			Ki: BoundRange{Lower: 0, Upper: 1},
			Kd: BoundRange{Lower: 0, Upper: 1},
		},
		Constraint: ConstraintConfig{
			Overshoot: BoundRange{Lower: 0, Upper: 30},
			RiseTime:  BoundRange{Lower: 0, Upper: 600},
		},
		Experiment: ExperimentConfig{
			SetPoint:        90,
			RunTimeMs:       10000,
			DumpRateMs:      100,
			Tolerance:       0.05,
			OvershootPolicy: OvershootSigned,
		},
		Session: SessionConfig{
			InitStatesPath: "init_states.json",
			InitState:      0,
			EarlyStopMs:    2500,
			ResultsDir:     "results",
		},
		Handshake: HandshakeConfig{
			MaxAttempts: 20,
			Backoff:     "exponential",
			BaseMs:      50,
			MaxMs:       2000,
		},
	}
}
