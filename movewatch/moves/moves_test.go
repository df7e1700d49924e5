package moves

import (
	"encoding/json"
	"testing"
)

func TestSequenceEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Sequence
		want bool
	}{
		{"both empty", nil, Sequence{}, true},
		{"same", FromStrings("e4", "e5"), FromStrings("e4", "e5"), true},
		{"length differs", FromStrings("e4"), FromStrings("e4", "e5"), false},
		{"token differs", FromStrings("e4", "e5"), FromStrings("e4", "c5"), false},
		{"order differs", FromStrings("e5", "e4"), FromStrings("e4", "e5"), false},
		{"prefix", FromStrings("e4", "e5"), FromStrings("e4"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("Equal(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestCloneIsIndependent(t *testing.T) {
	orig := FromStrings("e4", "e5")
	c := orig.Clone()
	c[0] = "d4"
	if orig[0] != "e4" {
		t.Errorf("Clone shares backing array: orig[0] = %q", orig[0])
	}
}

func TestPayloadEmptyIsArray(t *testing.T) {
	data, err := json.Marshal(NewPayload(nil))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"moves":[]}` {
		t.Errorf("payload: got %s", data)
	}
}

func TestPayloadOrder(t *testing.T) {
	data, _ := json.Marshal(NewPayload(FromStrings("e4", "e5", "Nf3")))
	if string(data) != `{"moves":["e4","e5","Nf3"]}` {
		t.Errorf("payload: got %s", data)
	}
}

func TestUpdateMarshalMoves(t *testing.T) {
	u := Update{ID: "u1", PageID: "p", Seq: 3, Timestamp: 1}
	data, err := json.Marshal(u)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	mv, ok := got["moves"].([]any)
	if !ok || len(mv) != 0 {
		t.Errorf("moves: got %#v, want empty array", got["moves"])
	}
	if got["seq"].(float64) != 3 {
		t.Errorf("seq: got %v", got["seq"])
	}
}
