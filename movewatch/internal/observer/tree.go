package observer

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/go-rod/rod/lib/proto"
)

// documentKey is the key of the whole-document node. It survives document
// resets; every other key names one element instance.
const documentKey = "document"

// nodeTree mirrors the document as CDP reports it. Keys are built from
// backend node ids, which stay fixed for the lifetime of an element, while
// events address nodes by their per-session node id.
type nodeTree struct {
	mu        sync.RWMutex
	doc       proto.DOMNodeID
	parent    map[proto.DOMNodeID]proto.DOMNodeID
	children  map[proto.DOMNodeID][]proto.DOMNodeID
	backend   map[proto.DOMNodeID]proto.DOMBackendNodeID
	byBackend map[proto.DOMBackendNodeID]proto.DOMNodeID
}

func newNodeTree() *nodeTree {
	t := &nodeTree{}
	t.reset()
	return t
}

func (t *nodeTree) reset() {
	t.doc = 0
	t.parent = make(map[proto.DOMNodeID]proto.DOMNodeID)
	t.children = make(map[proto.DOMNodeID][]proto.DOMNodeID)
	t.backend = make(map[proto.DOMNodeID]proto.DOMBackendNodeID)
	t.byBackend = make(map[proto.DOMBackendNodeID]proto.DOMNodeID)
}

// build replaces the mirror with the tree returned by DOM.getDocument.
func (t *nodeTree) build(root *proto.DOMNode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reset()
	if root == nil {
		return
	}
	t.doc = root.NodeID
	t.walk(root)
}

func (t *nodeTree) walk(n *proto.DOMNode) {
	t.backend[n.NodeID] = n.BackendNodeID
	t.byBackend[n.BackendNodeID] = n.NodeID
	for _, c := range n.Children {
		t.link(n.NodeID, c)
	}
	for _, sr := range n.ShadowRoots {
		t.link(n.NodeID, sr)
	}
}

func (t *nodeTree) link(parent proto.DOMNodeID, n *proto.DOMNode) {
	t.parent[n.NodeID] = parent
	t.children[parent] = append(t.children[parent], n.NodeID)
	t.walk(n)
}

// add registers a node inserted under parent.
func (t *nodeTree) add(parent proto.DOMNodeID, n *proto.DOMNode) {
	if n == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.link(parent, n)
}

// setChildren fills in the children of a node whose subtree was requested
// after it was inserted.
func (t *nodeTree) setChildren(parent proto.DOMNodeID, nodes []*proto.DOMNode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range slices.Clone(t.children[parent]) {
		t.removeLocked(id)
	}
	delete(t.children, parent)
	for _, n := range nodes {
		t.link(parent, n)
	}
}

// remove drops a node and its subtree.
func (t *nodeTree) remove(id proto.DOMNodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(id)
}

func (t *nodeTree) removeLocked(id proto.DOMNodeID) {
	for _, c := range slices.Clone(t.children[id]) {
		t.removeLocked(c)
	}
	if p, ok := t.parent[id]; ok {
		kids := t.children[p]
		for i, k := range kids {
			if k == id {
				t.children[p] = append(kids[:i], kids[i+1:]...)
				break
			}
		}
	}
	if b, ok := t.backend[id]; ok && t.byBackend[b] == id {
		delete(t.byBackend, b)
	}
	delete(t.backend, id)
	delete(t.parent, id)
	delete(t.children, id)
}

// document returns the node id of the current document.
func (t *nodeTree) document() proto.DOMNodeID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.doc
}

// key returns the key of a tracked node.
func (t *nodeTree) key(id proto.DOMNodeID) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id == t.doc && id != 0 {
		return documentKey, true
	}
	b, ok := t.backend[id]
	if !ok {
		return "", false
	}
	return backendKey(b), true
}

// lookup resolves a backend id to the node id currently tracking it.
func (t *nodeTree) lookup(b proto.DOMBackendNodeID) (proto.DOMNodeID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.byBackend[b]
	return id, ok
}

// within reports whether node is ancestor or lies below it.
func (t *nodeTree) within(node, ancestor proto.DOMNodeID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for cur := node; ; {
		if cur == ancestor {
			return true
		}
		p, ok := t.parent[cur]
		if !ok {
			return false
		}
		cur = p
	}
}

func (t *nodeTree) size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.backend)
}

func backendKey(b proto.DOMBackendNodeID) string {
	return "node-" + strconv.Itoa(int(b))
}

func parseKey(key string) (proto.DOMBackendNodeID, error) {
	s, ok := strings.CutPrefix(key, "node-")
	if !ok {
		return 0, fmt.Errorf("observer: foreign node key %q", key)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("observer: node key %q: %w", key, err)
	}
	return proto.DOMBackendNodeID(n), nil
}
