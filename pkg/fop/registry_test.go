package fop

import (
	"reflect"
	"testing"

	"github.com/pkg/errors"
)

type testBody struct {
	Type string
	N    int
}

func (b *testBody) Validate() error {
	if b.Type == "" {
		return errors.New("empty type")
	}
	return nil
}

type testReply struct {
	Err string
	N   int
}

var (
	testReqSchema = &Schema{
		Name: "test request",
		New:  func() interface{} { return &testBody{} },
	}
	testRepSchema = &Schema{
		Name:  "test reply",
		New:   func() interface{} { return &testReply{} },
		Fault: func(err error) interface{} { return &testReply{Err: err.Error()} },
	}
)

// echoHandler replies with the N of the request.
type echoHandler struct{}

func (echoHandler) Handle(req *Request) {
	go req.Reply(&testReply{N: req.Body.(*testBody).N})
}

func newTestSet(t *testing.T, machineType string, base Opcode) *Set {
	pairs := make([]Pair, 0, len(Kinds))
	for i, k := range Kinds {
		pairs = append(pairs, Pair{
			Request: &Descriptor{
				Kind:        k,
				Dir:         DirRequest,
				Opcode:      base + Opcode(2*i),
				Name:        machineType + " " + k.String(),
				Schema:      testReqSchema,
				MachineType: machineType,
				Handler:     echoHandler{},
			},
			Reply: &Descriptor{
				Kind:        k,
				Dir:         DirReply,
				Opcode:      base + Opcode(2*i+1),
				Name:        machineType + " " + k.String() + " reply",
				Schema:      testRepSchema,
				MachineType: machineType,
			},
		})
	}

	s, err := NewSet(machineType, pairs...)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestRegisterRoundTrip(t *testing.T) {
	r := NewRegistry()
	before := r.Opcodes()

	g, err := r.Register(newTestSet(t, "rebalance", 100))
	if err != nil {
		t.Fatal(err)
	}
	if got := len(r.Opcodes()); got != 8 {
		t.Fatalf("expected 8 live opcodes, got %d", got)
	}
	if err := g.Close(); err != nil {
		t.Fatal(err)
	}

	if after := r.Opcodes(); !reflect.DeepEqual(before, after) {
		t.Errorf("registry state changed: before %v, after %v", before, after)
	}
}

func TestRegisterTwice(t *testing.T) {
	r := NewRegistry()
	s := newTestSet(t, "rebalance", 100)

	if _, err := r.Register(s); err != nil {
		t.Fatal(err)
	}
	live := r.Opcodes()

	if _, err := r.Register(s); errors.Cause(err) != ErrDuplicateOpcode {
		t.Fatalf("expected ErrDuplicateOpcode, got %v", err)
	}
	if !reflect.DeepEqual(live, r.Opcodes()) {
		t.Errorf("first registration was disturbed")
	}
	if _, err := r.Resolve(100); err != nil {
		t.Errorf("first registration lost: %v", err)
	}
}

func TestRegisterPartialCollision(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Register(newTestSet(t, "repair", 100)); err != nil {
		t.Fatal(err)
	}

	// Only the last opcode of the new set collides.
	if _, err := r.Register(newTestSet(t, "rebalance", 93)); errors.Cause(err) != ErrDuplicateOpcode {
		t.Fatalf("expected ErrDuplicateOpcode, got %v", err)
	}
	if _, err := r.Resolve(93); errors.Cause(err) != ErrUnknownOpcode {
		t.Errorf("partially installed set: %v", err)
	}
}

func TestRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	first, err := r.Register(newTestSet(t, "repair", 100))
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Register(newTestSet(t, "rebalance", 200))
	if err != nil {
		t.Fatal(err)
	}

	if err := first.Close(); errors.Cause(err) != ErrOutOfOrder {
		t.Fatalf("expected ErrOutOfOrder, got %v", err)
	}
	if err := second.Close(); err != nil {
		t.Fatal(err)
	}
	if err := second.Close(); errors.Cause(err) != ErrNotRegistered {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestRegistryClose(t *testing.T) {
	r := NewRegistry()
	for i, typ := range []string{"repair", "rebalance", "migrate"} {
		if _, err := r.Register(newTestSet(t, typ, Opcode(100*(i+1)))); err != nil {
			t.Fatal(err)
		}
	}
	if got := r.MachineTypes(); !reflect.DeepEqual(got, []string{"repair", "rebalance", "migrate"}) {
		t.Fatalf("unexpected machine types %v", got)
	}

	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if len(r.Opcodes()) != 0 || len(r.MachineTypes()) != 0 {
		t.Errorf("registry is not empty after close")
	}
}

func TestNewSetInvalid(t *testing.T) {
	req := &Descriptor{Kind: Trigger, Dir: DirRequest, Opcode: 1, Schema: testReqSchema, MachineType: "m", Handler: echoHandler{}}
	rep := &Descriptor{Kind: Trigger, Dir: DirReply, Opcode: 2, Schema: testRepSchema, MachineType: "m"}
	sameOp := &Descriptor{Kind: Trigger, Dir: DirReply, Opcode: 1, Schema: testRepSchema, MachineType: "m"}
	otherType := &Descriptor{Kind: Trigger, Dir: DirReply, Opcode: 2, Schema: testRepSchema, MachineType: "x"}
	noHandler := &Descriptor{Kind: Trigger, Dir: DirRequest, Opcode: 1, Schema: testReqSchema, MachineType: "m"}

	testCases := []struct {
		name  string
		pairs []Pair
	}{
		{"unpaired", []Pair{{Request: req}}},
		{"same opcode", []Pair{{Request: req, Reply: sameOp}}},
		{"swapped", []Pair{{Request: rep, Reply: req}}},
		{"other machine", []Pair{{Request: req, Reply: otherType}}},
		{"no handler", []Pair{{Request: noHandler, Reply: rep}}},
		{"kind twice", []Pair{{Request: req, Reply: rep}, {Request: req, Reply: rep}}},
	}

	for _, c := range testCases {
		if _, err := NewSet("m", c.pairs...); errors.Cause(err) != ErrInvalidSet {
			t.Errorf("%s: expected ErrInvalidSet, got %v", c.name, err)
		}
	}
}

func TestDispatchAlwaysReplies(t *testing.T) {
	r := NewRegistry()
	s := newTestSet(t, "rebalance", 100)
	if _, err := r.Register(s); err != nil {
		t.Fatal(err)
	}

	good, _ := NewFop(100, 1, "node", &testBody{Type: "rebalance", N: 7})
	invalid, _ := NewFop(100, 2, "node", &testBody{N: 7})
	reply, _ := NewFop(101, 3, "node", &testReply{})
	unknown, _ := NewFop(999, 4, "node", &testBody{Type: "rebalance"})
	garbage := &Fop{Opcode: 100, Xid: 5, Payload: []byte{0xc1}}

	testCases := []struct {
		req    *Fop
		opcode Opcode
		n      int
		err    bool
	}{
		{good, 101, 7, false},
		{invalid, 101, 0, true},
		{garbage, 101, 0, true},
		{reply, ErrorReplyOpcode, 0, true},
		{unknown, ErrorReplyOpcode, 0, true},
	}

	for _, c := range testCases {
		rep := <-r.Dispatch(c.req)
		if rep.Opcode != c.opcode {
			t.Errorf("xid %d: expected opcode %d, got %d", c.req.Xid, c.opcode, rep.Opcode)
			continue
		}
		if rep.Xid != c.req.Xid {
			t.Errorf("xid %d: reply carries xid %d", c.req.Xid, rep.Xid)
		}

		if rep.Opcode == ErrorReplyOpcode {
			if DecodeError(rep) == nil {
				t.Errorf("xid %d: expected an error body", c.req.Xid)
			}
			continue
		}

		body := &testReply{}
		if err := Decode(rep.Payload, body); err != nil {
			t.Fatal(err)
		}
		if (body.Err != "") != c.err || body.N != c.n {
			t.Errorf("xid %d: unexpected reply %+v", c.req.Xid, body)
		}
	}
}
