package txm

import "errors"

var (
	// ErrUnknownBinding indicates that a name does not appear in the
	// controller's binding table.
	ErrUnknownBinding = errors.New("unknown binding name")

	// ErrDuplicateBinding indicates that a binding table declares the same
	// name twice.
	ErrDuplicateBinding = errors.New("duplicate binding name")

	// ErrScopeConflict indicates that scope entry was attempted while another
	// wait scope is already active. Scopes do not nest; the original scope's
	// pending set is left untouched.
	ErrScopeConflict = errors.New("wait scope already active")

	// ErrNoActiveScope indicates an EndScope call without a matching
	// BeginScope.
	ErrNoActiveScope = errors.New("no active wait scope")

	// ErrNoPermit indicates that a permit-gated operation was invoked on a
	// controller that holds no operating permit. Only whole operations fail
	// this way; individual permit-gated writes skip silently instead.
	ErrNoPermit = errors.New("operating permit not held")

	// ErrEnergyRange indicates a requested X-ray energy outside the range the
	// instrument optics can reach.
	ErrEnergyRange = errors.New("energy outside instrument range")
)
