// Package dom is the boundary between movewatch and the live document it
// watches. The core never touches a browser: it queries a Document for
// anchors, reads a Node's current subtree, and subscribes to structural
// mutations through a Feed. The CDP implementation lives in observer; tests
// use domtest.
package dom

import (
	"context"

	"golang.org/x/net/html"
)

// Scope selects which mutations a subscription receives.
type Scope int

const (
	// ScopeNode delivers child list changes of the root only.
	ScopeNode Scope = iota
	// ScopeSubtree delivers child list changes at any depth under the root.
	ScopeSubtree
)

func (s Scope) String() string {
	if s == ScopeSubtree {
		return "subtree"
	}
	return "node"
}

// Op is a structural mutation kind. Attribute and text changes are not
// delivered by a Feed.
type Op string

const (
	OpInsert   Op = "insert"    // child node added
	OpRemove   Op = "remove"    // child node removed
	OpDocReset Op = "doc_reset" // whole document replaced
)

// Record is one structural mutation.
type Record struct {
	Op     Op     `json:"op"`
	Parent string `json:"parent"` // key of the node whose child list changed
	Tag    string `json:"tag,omitempty"`
}

// Batch is the notification unit: every record collected for one
// subscription during a single delivery window.
type Batch struct {
	Seq     uint64   `json:"seq"`
	Records []Record `json:"records"`
}

// Node is one element instance of the live document. A container torn down
// and rebuilt by the page is a different Node with a different Key.
type Node interface {
	Key() string
	// Tree returns a parsed snapshot of the node's current subtree. The
	// returned node is the element itself.
	Tree(ctx context.Context) (*html.Node, error)
}

// Document answers presence queries against the current document.
type Document interface {
	// Root is the whole-document subscription target.
	Root() Node
	// Query returns the first element matching selector, or nil with a nil
	// error when nothing matches.
	Query(ctx context.Context, selector string) (Node, error)
}

// Listener receives batches. Calls for one subscription never overlap.
type Listener func(Batch)

// Handle is one live subscription.
type Handle interface {
	// Dispose releases the subscription. No batch is delivered to its
	// listener after Dispose returns.
	Dispose()
}

// Feed is the document mutation subscription primitive.
type Feed interface {
	Observe(root Node, scope Scope, fn Listener) (Handle, error)
}
