package txm

import (
	"errors"
	"time"

	"github.com/txmlab/go-txm/logger"
	"github.com/txmlab/go-txm/pv"
)

// config holds the construction-time parameters of a controller.
//
// All fields are fixed for the controller instance's lifetime; in particular
// hasPermit cannot change after construction.
type config struct {
	// hasPermit indicates whether the controller is authorized to drive
	// permit-gated process variables, e.g. open shutters or move the X-ray
	// source. Defaults to false.
	hasPermit bool

	// transport performs the actual process-variable I/O.
	// Defaults to an in-memory simulated transport, which mirrors driving the
	// instrument in detached mode; supply the real control-system client with
	// WithTransport for live operation.
	transport pv.Transport

	// iocPrefix is substituted for the "{ioc_prefix}" token in binding
	// addresses, selecting the camera I/O controller. Defaults to empty.
	iocPrefix string

	// putTimeout bounds every blocking put and every per-variable join at
	// scope exit. Defaults to 20 seconds.
	putTimeout time.Duration

	// pollInterval is the delay between readback polls in WaitFor.
	// Defaults to 10 milliseconds.
	pollInterval time.Duration

	// useShutterA and useShutterB select which shutters OpenShutters and
	// CloseShutters drive. Defaults: A off, B on.
	useShutterA bool
	useShutterB bool

	// zpDiameter is the zone-plate diameter in nanometers. Defaults to 180.
	zpDiameter float64
	// drn is the width of the zone plate's outermost diffraction zone.
	// Defaults to 60.
	drn float64

	// logger receives structured events for puts, skips and waits.
	logger logger.Logger
}

func defaultConfig() config {
	return config{
		putTimeout:   20 * time.Second,
		pollInterval: 10 * time.Millisecond,
		useShutterB:  true,
		zpDiameter:   180,
		drn:          60,
		logger:       logger.GetLogger(),
	}
}

// Option customizes controller construction.
type Option func(*config) error

// WithPermit marks the controller as holding the operating permit, allowing
// writes to permit-gated bindings and permit-gated operations.
//
// The permit is a caller-supplied assertion trusted at face value; nothing
// validates it against the accelerator's authority.
func WithPermit() Option {
	return func(cfg *config) error {
		cfg.hasPermit = true
		return nil
	}
}

// WithTransport sets the process-variable transport.
func WithTransport(t pv.Transport) Option {
	return func(cfg *config) error {
		if t == nil {
			return errors.New("transport is nil")
		}
		cfg.transport = t

		return nil
	}
}

// WithIOCPrefix sets the I/O-controller prefix expanded into binding addresses
// that carry the "{ioc_prefix}" token, e.g. "32idcPG3:".
func WithIOCPrefix(prefix string) Option {
	return func(cfg *config) error {
		cfg.iocPrefix = prefix
		return nil
	}
}

// WithPutTimeout sets the bound on blocking puts and scope-exit joins.
func WithPutTimeout(d time.Duration) Option {
	return func(cfg *config) error {
		if d <= 0 {
			return errors.New("put timeout must be positive")
		}
		cfg.putTimeout = d

		return nil
	}
}

// WithPollInterval sets the delay between readback polls in WaitFor.
func WithPollInterval(d time.Duration) Option {
	return func(cfg *config) error {
		if d <= 0 {
			return errors.New("poll interval must be positive")
		}
		cfg.pollInterval = d

		return nil
	}
}

// WithShutterA enables or disables use of shutter A.
func WithShutterA(use bool) Option {
	return func(cfg *config) error {
		cfg.useShutterA = use
		return nil
	}
}

// WithShutterB enables or disables use of shutter B.
func WithShutterB(use bool) Option {
	return func(cfg *config) error {
		cfg.useShutterB = use
		return nil
	}
}

// WithZonePlate sets the installed zone plate's diameter (nm) and outermost
// diffraction zone width, both used by energy moves.
func WithZonePlate(diameter, drn float64) Option {
	return func(cfg *config) error {
		if diameter <= 0 || drn <= 0 {
			return errors.New("zone plate dimensions must be positive")
		}
		cfg.zpDiameter = diameter
		cfg.drn = drn

		return nil
	}
}

// WithLogger sets the logger for controller events.
func WithLogger(l logger.Logger) Option {
	return func(cfg *config) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		cfg.logger = l

		return nil
	}
}
