// Package nspolicy defines the namespace/tenant policy collaborator
// that knows how to translate a namespace into the set of brokers
// permitted to host it — primary, secondary, then shared fallback
// order (spec.md §4.4 step 3). The core treats this purely as a
// lookup; it never computes isolation policy itself.
package nspolicy

import "context"

// Policies resolves which brokers are eligible to host a namespace.
type Policies interface {
	// BrokersForNamespace returns the ordered candidate broker set for
	// namespace, already restricted to primary/secondary/shared
	// fallback eligibility. An empty result means no broker is eligible
	// to host namespace; the caller treats that as a fatal placement
	// error rather than falling back to every live broker (spec.md §7,
	// "Empty candidate set").
	BrokersForNamespace(ctx context.Context, namespace string, liveBrokers []string) ([]string, error)
}

// Unrestricted is a Policies implementation with no isolation policy
// configured: every live broker is eligible for every namespace. This
// is the common case spec.md §4.4 step 3 calls "no restriction."
type Unrestricted struct{}

func (Unrestricted) BrokersForNamespace(_ context.Context, _ string, liveBrokers []string) ([]string, error) {
	return liveBrokers, nil
}

// Fake returns a fixed candidate set per namespace for tests that
// need to exercise the restricted path.
type Fake struct {
	ByNamespace map[string][]string
	Err         error
}

func NewFake() *Fake {
	return &Fake{ByNamespace: make(map[string][]string)}
}

func (f *Fake) BrokersForNamespace(_ context.Context, namespace string, liveBrokers []string) ([]string, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	if candidates, ok := f.ByNamespace[namespace]; ok {
		return candidates, nil
	}
	return liveBrokers, nil
}
