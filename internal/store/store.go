// Package store defines the coordination-store collaborator the core
// depends on but never implements (spec.md §1, §4.6): a hierarchical,
// watchable, session-ephemeral key-value service such as ZooKeeper.
package store

import (
	"context"
	"errors"
)

// CreateMode selects whether a node should be removed automatically
// when the creating session ends (Ephemeral) or survive it
// (Persistent), per spec.md §4.6.
type CreateMode int

const (
	Persistent CreateMode = iota
	Ephemeral
)

// ErrNodeExists names the condition of a create targeting a path that
// already exists. ExistsOrCreate does not return it: per spec.md §4.6
// and §7 node creation is idempotent, so that case yields nil.
var ErrNodeExists = errors.New("store: node already exists")

// ErrNoNode is returned when an operation expects a path to already
// exist and it does not (spec.md §7 "missing expected node").
var ErrNoNode = errors.New("store: node does not exist")

// Store is the typed wrapper spec.md §4.6 names: existsOrCreate,
// getJson/setJson, and watchable reads on children and data. All
// methods are best-effort from the caller's point of view — transient
// failures are expected to be logged and retried on the next pass, not
// escalated into panics (spec.md §7).
type Store interface {
	// ExistsOrCreate ensures path exists, creating it with payload and
	// mode if it doesn't. Implementations must swallow ErrNodeExists
	// internally (return nil), matching spec.md §4.6's "idempotent
	// creation" rule, so a caller cannot tell "already there" from
	// "freshly created" by the result.
	ExistsOrCreate(ctx context.Context, path string, payload []byte, mode CreateMode) error

	// GetJSON reads path and unmarshals it into out.
	GetJSON(ctx context.Context, path string, out interface{}) error

	// SetJSON marshals value and writes it to path, creating the path
	// as Persistent if it does not yet exist.
	SetJSON(ctx context.Context, path string, value interface{}) error

	// ChildrenWithWatch returns the current children of path and a
	// channel that receives the updated child set every time it
	// changes, until ctx is cancelled. Used by the membership watcher
	// on /loadbalance/brokers (spec.md §4.2).
	ChildrenWithWatch(ctx context.Context, path string) ([]string, <-chan []string, error)

	// DataWithWatch returns the current raw payload at path and a
	// channel that receives the updated payload every time it changes,
	// until ctx is cancelled. Used by the broker-data watcher on each
	// broker's znode (spec.md §4.2).
	DataWithWatch(ctx context.Context, path string) ([]byte, <-chan []byte, error)
}
