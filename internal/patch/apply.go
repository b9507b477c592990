package patch

import (
	"encoding/json"
	"fmt"
)

// Op is a tagged add/replace/remove operation over a view-model path.
type Op struct {
	Kind  OpKind
	Path  string
	Value Value
}

type OpKind int

const (
	OpReplace OpKind = iota
	OpAdd
	OpRemove
)

// SetPath descends root along path, creating intermediate empty objects
// on missing object keys (array intermediates must already exist), and
// writes value at the terminal location.
//
// If replaceOnly is true the terminal object key must already exist
// (Replace semantics); otherwise it is inserted or overwritten (Add
// semantics). For arrays the terminal decimal index must be in
// [0, len]; index == len appends.
func SetPath(root *Value, path string, value Value, replaceOnly bool) error {
	tokens, err := parsePointer(path)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		*root = value
		return nil
	}

	parent, err := descendCreating(root, tokens[:len(tokens)-1])
	if err != nil {
		return err
	}

	last := tokens[len(tokens)-1]
	switch parent.kind {
	case KindObject:
		if replaceOnly {
			if _, ok := parent.obj.Get(last); !ok {
				return fmt.Errorf("patch: replace on missing key %q", last)
			}
		}
		parent.obj.Set(last, value)
		return nil
	case KindArray:
		idx, ok := arrayIndex(last)
		if !ok || idx < 0 || idx > len(parent.arr) {
			return fmt.Errorf("patch: array index %q out of range [0,%d]", last, len(parent.arr))
		}
		if idx == len(parent.arr) {
			parent.arr = append(parent.arr, value)
		} else {
			parent.arr[idx] = value
		}
		return nil
	default:
		return fmt.Errorf("patch: cannot set path through scalar at %q", path)
	}
}

// descendCreating walks tokens from root, creating missing object keys
// as empty objects along the way. Array segments must already exist.
// Returns a pointer to the Value the last token should be applied to.
func descendCreating(root *Value, tokens []string) (*Value, error) {
	cur := root
	for _, tok := range tokens {
		switch cur.kind {
		case KindObject:
			if cur.obj == nil {
				cur.obj = NewObject()
			}
			if cur.obj.GetPtr(tok) == nil {
				cur.obj.Set(tok, EmptyObject())
			}
			cur = cur.obj.GetPtr(tok)
		case KindArray:
			idx, ok := arrayIndex(tok)
			if !ok || idx < 0 || idx >= len(cur.arr) {
				return nil, fmt.Errorf("patch: array intermediate %q out of range [0,%d)", tok, len(cur.arr))
			}
			cur = &cur.arr[idx]
		default:
			return nil, fmt.Errorf("patch: cannot descend through scalar at token %q", tok)
		}
	}
	return cur, nil
}

// RemovePath descends (non-creating) to path's parent and removes the
// terminal key/element. Missing intermediates or terminal are errors.
// An empty path resets root to an empty object.
func RemovePath(root *Value, path string) error {
	tokens, err := parsePointer(path)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		*root = EmptyObject()
		return nil
	}

	parent, err := descendExisting(root, tokens[:len(tokens)-1])
	if err != nil {
		return err
	}

	last := tokens[len(tokens)-1]
	switch parent.kind {
	case KindObject:
		if !parent.obj.Delete(last) {
			return fmt.Errorf("patch: remove on missing key %q", last)
		}
		return nil
	case KindArray:
		idx, ok := arrayIndex(last)
		if !ok || idx < 0 || idx >= len(parent.arr) {
			return fmt.Errorf("patch: array index %q out of range [0,%d)", last, len(parent.arr))
		}
		parent.arr = append(parent.arr[:idx], parent.arr[idx+1:]...)
		return nil
	default:
		return fmt.Errorf("patch: cannot remove through scalar at %q", path)
	}
}

// descendExisting walks tokens from root without creating anything;
// any missing intermediate is an error.
func descendExisting(root *Value, tokens []string) (*Value, error) {
	cur := root
	for _, tok := range tokens {
		switch cur.kind {
		case KindObject:
			if cur.obj == nil {
				return nil, fmt.Errorf("patch: missing intermediate key %q", tok)
			}
			next := cur.obj.GetPtr(tok)
			if next == nil {
				return nil, fmt.Errorf("patch: missing intermediate key %q", tok)
			}
			cur = next
		case KindArray:
			idx, ok := arrayIndex(tok)
			if !ok || idx < 0 || idx >= len(cur.arr) {
				return nil, fmt.Errorf("patch: missing intermediate index %q", tok)
			}
			cur = &cur.arr[idx]
		default:
			return nil, fmt.Errorf("patch: cannot descend through scalar at token %q", tok)
		}
	}
	return cur, nil
}

// ApplyOps iterates ops in order, aborting on the first failure. The
// view-model may be left partially mutated on error; callers treat this
// as a hard apply failure and recover via resync.
func ApplyOps(vm *Value, ops []Op) error {
	for i, op := range ops {
		var err error
		switch op.Kind {
		case OpReplace:
			err = SetPath(vm, op.Path, op.Value, true)
		case OpAdd:
			err = SetPath(vm, op.Path, op.Value, false)
		case OpRemove:
			err = RemovePath(vm, op.Path)
		default:
			err = fmt.Errorf("patch: unknown op kind %d", op.Kind)
		}
		if err != nil {
			return fmt.Errorf("patch: op %d (%q): %w", i, op.Path, err)
		}
	}
	return nil
}

// ChangesScreen reports whether any op's path equals "/screen/name".
// When true, the applier must take the full re-render path rather than
// the incremental patch path.
func ChangesScreen(ops []Op) bool {
	for _, op := range ops {
		if op.Path == "/screen/name" {
			return true
		}
	}
	return false
}

// stringOf extracts a plain Go string from a Value that is expected to
// be a string, falling back to def.
func stringOf(v Value, ok bool, def string) string {
	if !ok {
		return def
	}
	s, isStr := v.String_()
	if !isStr {
		return def
	}
	return s
}

// Projection is the fixed set of global properties re-derived from the
// view-model after every apply and pushed to the toolkit's setters.
type Projection struct {
	AppTitle         string
	ScreenName       string
	NavCanBack       bool
	ScreenTitle      string
	ScreenMessage    string
	ScreenModule     string
}

// Project re-reads the fixed pointers from vm and returns the values the
// applier pushes to the toolkit's global-property setters.
func Project(vm Value) Projection {
	p := Projection{
		AppTitle:   "Projection",
		ScreenName: "error",
	}

	if title, ok := lookup(vm, "/app/title"); ok {
		p.AppTitle = stringOf(title, ok, p.AppTitle)
	}
	if name, ok := lookup(vm, "/screen/name"); ok {
		p.ScreenName = stringOf(name, ok, p.ScreenName)
	}
	if stack, ok := lookup(vm, "/nav/stack"); ok {
		if arr, isArr := stack.Array(); isArr {
			p.NavCanBack = len(arr) > 1
		}
	}
	if title, ok := lookup(vm, "/screen/vm/title"); ok {
		p.ScreenTitle = stringOf(title, ok, "")
	}
	if msg, ok := lookup(vm, "/screen/vm/message"); ok {
		p.ScreenMessage = stringOf(msg, ok, "")
	}
	if mod, ok := lookup(vm, "/screen/vm/screen_module"); ok {
		p.ScreenModule = stringOf(mod, ok, "")
	}

	return p
}

// lookup is a read-only, non-mutating pointer lookup used for the
// global-property projection; a missing or malformed path simply
// yields ok=false so Project falls back to its default.
func lookup(root Value, path string) (Value, bool) {
	tokens, err := parsePointer(path)
	if err != nil {
		return Value{}, false
	}
	cur := root
	for _, tok := range tokens {
		switch cur.kind {
		case KindObject:
			if cur.obj == nil {
				return Value{}, false
			}
			v, ok := cur.obj.Get(tok)
			if !ok {
				return Value{}, false
			}
			cur = v
		case KindArray:
			idx, ok := arrayIndex(tok)
			if !ok || idx < 0 || idx >= len(cur.arr) {
				return Value{}, false
			}
			cur = cur.arr[idx]
		default:
			return Value{}, false
		}
	}
	return cur, true
}

// DecodePatchOps converts wire-level PatchOp JSON (see the protocol
// package) into the Op type ApplyOps consumes. Kept here so the
// protocol package does not need to know about Op's internal
// representation.
func DecodePatchOps(raw []json.RawMessage) ([]Op, error) {
	ops := make([]Op, len(raw))
	for i, r := range raw {
		op, err := decodeOneOp(r)
		if err != nil {
			return nil, err
		}
		ops[i] = op
	}
	return ops, nil
}

func decodeOneOp(raw json.RawMessage) (Op, error) {
	var head struct {
		Op   string `json:"op"`
		Path string `json:"path"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return Op{}, fmt.Errorf("patch: decode op header: %w", err)
	}

	switch head.Op {
	case "replace", "add":
		var body struct {
			Value Value `json:"value"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return Op{}, fmt.Errorf("patch: decode %s value: %w", head.Op, err)
		}
		kind := OpReplace
		if head.Op == "add" {
			kind = OpAdd
		}
		return Op{Kind: kind, Path: head.Path, Value: body.Value}, nil
	case "remove":
		return Op{Kind: OpRemove, Path: head.Path}, nil
	default:
		return Op{}, fmt.Errorf("patch: unknown op %q", head.Op)
	}
}
