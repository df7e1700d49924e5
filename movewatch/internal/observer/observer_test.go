package observer

import (
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/movewatch/movewatch/internal/dom"
)

// el builds a CDP element node; node and backend ids are equal for
// readability.
func el(id int, name string, children ...*proto.DOMNode) *proto.DOMNode {
	return &proto.DOMNode{
		NodeID:        proto.DOMNodeID(id),
		BackendNodeID: proto.DOMBackendNodeID(id),
		NodeType:      1,
		NodeName:      name,
		Children:      children,
	}
}

func sampleTree() *nodeTree {
	t := newNodeTree()
	t.build(&proto.DOMNode{
		NodeID: 1, BackendNodeID: 1, NodeType: 9, NodeName: "#document",
		Children: []*proto.DOMNode{
			el(2, "HTML",
				el(3, "BODY",
					el(4, "DIV"),
					el(5, "WC-SIMPLE-MOVE-LIST",
						el(6, "DIV", el(7, "SPAN")),
					),
				),
			),
		},
	})
	return t
}

func TestTree_Keys(t *testing.T) {
	tr := sampleTree()
	if k, _ := tr.key(1); k != documentKey {
		t.Errorf("document key = %q", k)
	}
	if k, _ := tr.key(5); k != "node-5" {
		t.Errorf("key(5) = %q", k)
	}
	if _, ok := tr.key(99); ok {
		t.Error("untracked node has a key")
	}
	b, err := parseKey("node-5")
	if err != nil || b != 5 {
		t.Errorf("parseKey = %d, %v", b, err)
	}
	if _, err := parseKey("document"); err == nil {
		t.Error("parseKey accepted the document key")
	}
}

func TestTree_Within(t *testing.T) {
	tr := sampleTree()
	cases := []struct {
		node, ancestor proto.DOMNodeID
		want           bool
	}{
		{7, 5, true},
		{5, 5, true},
		{4, 5, false},
		{7, 1, true},
		{99, 1, false},
	}
	for _, c := range cases {
		if got := tr.within(c.node, c.ancestor); got != c.want {
			t.Errorf("within(%d, %d) = %v, want %v", c.node, c.ancestor, got, c.want)
		}
	}
}

func TestTree_AddRemove(t *testing.T) {
	tr := sampleTree()
	tr.add(6, el(8, "DIV", el(9, "SPAN")))
	if !tr.within(9, 5) {
		t.Error("inserted subtree not linked under its parent")
	}

	tr.remove(5)
	for _, id := range []proto.DOMNodeID{5, 6, 7, 8, 9} {
		if _, ok := tr.key(id); ok {
			t.Errorf("node %d still tracked after its ancestor was removed", id)
		}
	}
	if _, ok := tr.lookup(5); ok {
		t.Error("backend id still resolves")
	}
	if tr.size() != 4 {
		t.Errorf("size = %d, want 4", tr.size())
	}
}

func TestTree_SetChildren(t *testing.T) {
	tr := sampleTree()
	tr.add(3, &proto.DOMNode{NodeID: 10, BackendNodeID: 10, NodeType: 1, NodeName: "DIV"})
	tr.setChildren(10, []*proto.DOMNode{el(11, "SPAN")})
	if !tr.within(11, 3) {
		t.Error("late children not linked")
	}
	tr.setChildren(10, []*proto.DOMNode{el(12, "SPAN")})
	if _, ok := tr.key(11); ok {
		t.Error("replaced child still tracked")
	}
}

func TestGroup(t *testing.T) {
	ins := dom.Record{Op: dom.OpInsert, Parent: "node-6", Tag: "div"}
	rem := dom.Record{Op: dom.OpRemove, Parent: "node-6"}
	order, by := group([]pending{
		{sub: 2, rec: ins},
		{sub: 1, rec: ins},
		{sub: 2, rec: ins},
		{sub: 2, rec: rem},
		{sub: 2, rec: ins},
	})
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("order = %v", order)
	}
	if len(by[1]) != 1 {
		t.Errorf("sub 1 records = %v", by[1])
	}
	// ins ins rem ins -> ins rem ins
	if len(by[2]) != 3 || by[2][1].Op != dom.OpRemove {
		t.Errorf("sub 2 records = %v", by[2])
	}
}

func TestCompress_Empty(t *testing.T) {
	if got := compress(nil); got != nil {
		t.Errorf("compress(nil) = %v, want nil", got)
	}
}

func TestDebouncer_WindowAndMax(t *testing.T) {
	var flushed [][]pending
	d := newDebouncer(debounceConfig{Window: 10 * time.Millisecond, MaxBuffer: 3}, func(ps []pending) {
		flushed = append(flushed, ps)
	})

	rec := pending{sub: 1, rec: dom.Record{Op: dom.OpInsert}}
	d.add(rec)
	select {
	case <-d.timerC():
		d.flush()
	case <-time.After(time.Second):
		t.Fatal("window never expired")
	}
	if len(flushed) != 1 || len(flushed[0]) != 1 {
		t.Fatalf("flushed = %v", flushed)
	}

	if full := d.add(rec, rec, rec); !full {
		t.Error("full buffer did not flush")
	}
	if len(flushed) != 2 || len(flushed[1]) != 3 {
		t.Errorf("flushed = %v", flushed)
	}
	if d.timerC() != nil {
		t.Error("timer left armed after flush")
	}
	d.flush()
	if len(flushed) != 2 {
		t.Error("empty flush delivered")
	}
}
