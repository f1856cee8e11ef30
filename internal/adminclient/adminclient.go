// Package adminclient defines the admin-client collaborator that
// actually issues the "unload bundle" RPC (spec.md §1). It is an
// external collaborator by design: the shedding loop calls it with no
// knowledge of how the unload is carried out (REST, gRPC, direct
// broker-to-broker call, ...).
package adminclient

import "context"

// Client issues administrative operations against a specific broker.
type Client interface {
	// UnloadNamespaceBundle asks the broker currently hosting
	// namespace/bundleRange to unload it so the namespace layer can
	// reassign it elsewhere. A failure here is logged by the caller
	// and shedding continues with the next candidate (spec.md §7,
	// "Admin RPC failure during shed").
	UnloadNamespaceBundle(ctx context.Context, broker, namespace, bundleRange string) error
}

// Fake is an in-memory Client for tests. Calls is the ordered record
// of every unload request seen so far. If FailFor names a bundle
// (namespace+"/"+bundleRange), UnloadNamespaceBundle returns FailErr
// for it.
type Fake struct {
	Calls   []UnloadCall
	FailFor map[string]struct{}
	FailErr error
}

// UnloadCall records one UnloadNamespaceBundle invocation.
type UnloadCall struct {
	Broker      string
	Namespace   string
	BundleRange string
}

// NewFake returns an empty fake that accepts every unload request.
func NewFake() *Fake {
	return &Fake{FailFor: make(map[string]struct{})}
}

func (f *Fake) UnloadNamespaceBundle(_ context.Context, broker, namespace, bundleRange string) error {
	f.Calls = append(f.Calls, UnloadCall{Broker: broker, Namespace: namespace, BundleRange: bundleRange})
	if _, fail := f.FailFor[namespace+"/"+bundleRange]; fail {
		if f.FailErr != nil {
			return f.FailErr
		}
		return errUnloadFailed
	}
	return nil
}

var errUnloadFailed = unloadError("adminclient: unload failed")

type unloadError string

func (e unloadError) Error() string { return string(e) }
