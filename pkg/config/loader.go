package config

import (
	"fmt"
	"math"
	"os"
)

// ValidationError indicates the configuration cannot start a session.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// LoadConfig loads and parses a configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := ParseConfigYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// validateConfig performs validation on the configuration. Any failure
// here is fatal at session start: the session never begins.
func validateConfig(cfg *Config) error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return &ValidationError{Field: "log_level", Reason: fmt.Sprintf("%q must be debug, info, warn, or error", cfg.LogLevel)}
	}

	if cfg.Arduino.Port == "" {
		return &ValidationError{Field: "arduino.port", Reason: "cannot be empty"}
	}
	if cfg.Arduino.BaudRate <= 0 {
		return &ValidationError{Field: "arduino.baud_rate", Reason: fmt.Sprintf("must be positive, got %d", cfg.Arduino.BaudRate)}
	}
	if cfg.Arduino.ReadTimeoutMs <= 0 {
		return &ValidationError{Field: "arduino.read_timeout_ms", Reason: fmt.Sprintf("must be positive, got %d", cfg.Arduino.ReadTimeoutMs)}
	}
	if cfg.Arduino.SettleMs < 0 {
		return &ValidationError{Field: "arduino.settle_ms", Reason: "cannot be negative"}
	}

	if err := validateOptimizer(&cfg.Optimizer); err != nil {
		return err
	}
	if err := validateBounds(&cfg.Bounds); err != nil {
		return err
	}
	if err := validateConstraints(&cfg.Constraint); err != nil {
		return err
	}
	if err := validateExperiment(&cfg.Experiment); err != nil {
		return err
	}
	if err := validateSession(&cfg.Session); err != nil {
		return err
	}
	return validateHandshake(&cfg.Handshake)
}

func validateOptimizer(o *OptimizerConfig) error {
	switch o.Name {
	case OptimizerBayesian, OptimizerDifferentialEvolution:
	default:
		return &ValidationError{Field: "optimizer.name", Reason: fmt.Sprintf("unknown optimizer %q (must be %q or %q)", o.Name, OptimizerBayesian, OptimizerDifferentialEvolution)}
	}
	if o.Iterations <= 0 {
		return &ValidationError{Field: "optimizer.iterations", Reason: fmt.Sprintf("must be positive, got %d", o.Iterations)}
	}
	if o.Name == OptimizerBayesian {
		switch o.Acquisition {
		case "", AcquisitionUCB, AcquisitionEI:
		default:
			return &ValidationError{Field: "optimizer.acquisition", Reason: fmt.Sprintf("unknown acquisition %q (must be %q or %q)", o.Acquisition, AcquisitionUCB, AcquisitionEI)}
		}
		if o.InitPoints < 0 {
			return &ValidationError{Field: "optimizer.init_points", Reason: "cannot be negative"}
		}
	}
	if o.Name == OptimizerDifferentialEvolution {
		if o.PopulationSize < 0 {
			return &ValidationError{Field: "optimizer.population_size", Reason: "cannot be negative"}
		}
		if o.Mutation < 0 || o.Mutation > 2 {
			return &ValidationError{Field: "optimizer.mutation", Reason: fmt.Sprintf("must be in [0, 2], got %g", o.Mutation)}
		}
		if o.Crossover < 0 || o.Crossover > 1 {
			return &ValidationError{Field: "optimizer.crossover", Reason: fmt.Sprintf("must be in [0, 1], got %g", o.Crossover)}
		}
	}
	return nil
}

func validateBounds(b *BoundsConfig) error {
	ranges := map[string]BoundRange{
		"parameter_bounds.kp": b.Kp,
		"parameter_bounds.ki": b.Ki,
		"parameter_bounds.kd": b.Kd,
	}
	for field, r := range ranges {
		if err := validateRange(field, r); err != nil {
			return err
		}
	}
	return nil
}

func validateConstraints(c *ConstraintConfig) error {
	if err := validateRange("constraints.overshoot", c.Overshoot); err != nil {
		return err
	}
	return validateRange("constraints.rise_time", c.RiseTime)
}

func validateRange(field string, r BoundRange) error {
	if math.IsNaN(r.Lower) || math.IsNaN(r.Upper) {
		return &ValidationError{Field: field, Reason: "bounds cannot be NaN"}
	}
	if r.Lower > r.Upper {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("lower bound %g exceeds upper bound %g", r.Lower, r.Upper)}
	}
	return nil
}

func validateExperiment(e *ExperimentConfig) error {
	if e.RunTimeMs <= 0 {
		return &ValidationError{Field: "experiment.run_time_ms", Reason: fmt.Sprintf("must be positive, got %d", e.RunTimeMs)}
	}
	if e.DumpRateMs <= 0 {
		return &ValidationError{Field: "experiment.dump_rate_ms", Reason: fmt.Sprintf("must be positive, got %d", e.DumpRateMs)}
	}
	if e.DumpRateMs > e.RunTimeMs {
		return &ValidationError{Field: "experiment.dump_rate_ms", Reason: "cannot exceed run_time_ms"}
	}
	if e.Tolerance <= 0 || e.Tolerance >= 1 {
		return &ValidationError{Field: "experiment.tolerance", Reason: fmt.Sprintf("must be in (0, 1), got %g", e.Tolerance)}
	}
	switch e.OvershootPolicy {
	case "", OvershootSigned, OvershootAbsolute:
	default:
		return &ValidationError{Field: "experiment.overshoot_policy", Reason: fmt.Sprintf("unknown policy %q (must be %q or %q)", e.OvershootPolicy, OvershootSigned, OvershootAbsolute)}
	}
	return nil
}

func validateSession(s *SessionConfig) error {
	if s.InitStatesPath == "" {
		return &ValidationError{Field: "session.init_states_path", Reason: "cannot be empty"}
	}
	if s.InitState < 0 {
		return &ValidationError{Field: "session.init_state", Reason: "cannot be negative"}
	}
	if s.EarlyStopMs < 0 {
		return &ValidationError{Field: "session.early_stop_settling_ms", Reason: "cannot be negative"}
	}
	if s.ResultsDir == "" {
		return &ValidationError{Field: "session.results_dir", Reason: "cannot be empty"}
	}
	return nil
}

func validateHandshake(h *HandshakeConfig) error {
	if h.MaxAttempts <= 0 {
		return &ValidationError{Field: "handshake.max_attempts", Reason: fmt.Sprintf("must be positive, got %d", h.MaxAttempts)}
	}
	validBackoffs := map[string]bool{
		"exponential": true,
		"linear":      true,
		"constant":    true,
	}
	if !validBackoffs[h.Backoff] {
		return &ValidationError{Field: "handshake.backoff", Reason: fmt.Sprintf("invalid backoff type %q (must be exponential, linear, or constant)", h.Backoff)}
	}
	if h.BaseMs < 0 {
		return &ValidationError{Field: "handshake.base_ms", Reason: "cannot be negative"}
	}
	return nil
}
