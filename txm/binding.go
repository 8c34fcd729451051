package txm

import (
	"fmt"
	"strings"

	"github.com/txmlab/go-txm/pv"
)

// iocPrefixToken is the placeholder in binding addresses substituted with the
// controller's I/O-controller prefix at connect time.
const iocPrefixToken = "{ioc_prefix}"

// Binding maps one attribute name to a remote process variable.
//
// Bindings are declared once per controller type and shared by every instance
// of that type; each instance resolves its own live connection on first use.
// The address is immutable after declaration.
type Binding struct {
	// Name is the attribute identifier, unique within a controller's table.
	Name string

	// Address is the remote process-variable identifier. It may contain the
	// "{ioc_prefix}" token, which is expanded per controller instance.
	Address string

	// Type is the declared value kind; reads and writes are coerced to it.
	Type pv.ValueType

	// Wait is the default wait policy: when true, writes outside a wait scope
	// block until the transport reports the put complete.
	Wait bool

	// PermitRequired gates writes on the controller's operating permit.
	// Reads are never gated.
	PermitRequired bool
}

// String returns the binding name, or the address if unnamed.
func (b Binding) String() string {
	if b.Name != "" {
		return b.Name
	}
	return b.Address
}

// expandAddress substitutes the IOC prefix token in the binding's address.
func (b Binding) expandAddress(iocPrefix string) string {
	return strings.ReplaceAll(b.Address, iocPrefixToken, iocPrefix)
}

// tableOf indexes a binding list by name, rejecting duplicates.
func tableOf(bindings []Binding) (map[string]Binding, error) {
	table := make(map[string]Binding, len(bindings))
	for _, b := range bindings {
		if _, exists := table[b.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateBinding, b.Name)
		}
		table[b.Name] = b
	}

	return table, nil
}

// mergeBindings overlays overrides onto a base table, replacing bindings with
// matching names and appending new ones. It is how a controller variant such
// as the micro-CT stage redirects a subset of the base controller's addresses.
func mergeBindings(base []Binding, overrides []Binding) []Binding {
	merged := make([]Binding, len(base), len(base)+len(overrides))
	copy(merged, base)

	index := make(map[string]int, len(base))
	for i, b := range merged {
		index[b.Name] = i
	}

	for _, o := range overrides {
		if i, ok := index[o.Name]; ok {
			merged[i] = o
			continue
		}
		index[o.Name] = len(merged)
		merged = append(merged, o)
	}

	return merged
}
