// Package patch implements the view-model document and the JSON-Pointer
// based add/replace/remove operations applied to it.
package patch

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind tags the dynamic shape of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Value is the recursively structured document the view-model is built
// from: {object, array, string, number, boolean, null}.
type Value struct {
	kind Kind
	b    bool
	n    json.Number
	s    string
	arr  []Value
	obj  *Object
}

func Null() Value                 { return Value{kind: KindNull} }
func Bool(b bool) Value           { return Value{kind: KindBool, b: b} }
func Number(n json.Number) Value  { return Value{kind: KindNumber, n: n} }
func String(s string) Value       { return Value{kind: KindString, s: s} }
func Array(v []Value) Value       { return Value{kind: KindArray, arr: v} }
func Object_(o *Object) Value     { return Value{kind: KindObject, obj: o} }
func EmptyObject() Value          { return Value{kind: KindObject, obj: NewObject()} }

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) String_() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

func (v Value) Number_() (json.Number, bool) {
	if v.kind != KindNumber {
		return "", false
	}
	return v.n, true
}

func (v Value) Array() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.arr, true
}

func (v Value) Object() (*Object, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.obj, true
}

// Object is an insertion-ordered string-keyed map, used so diagnostic
// re-renders of the view-model are deterministic. Values are stored
// behind pointers so pointer-descent code (see apply.go) can obtain a
// genuinely addressable location inside the tree rather than a detached
// copy — Go map values are not addressable, so a map[string]Value would
// silently discard in-place mutations (e.g. appends) made through a
// pointer taken from Get.
type Object struct {
	keys   []string
	values map[string]*Value
}

func NewObject() *Object {
	return &Object{values: make(map[string]*Value)}
}

func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.values[key]
	if !ok {
		return Value{}, false
	}
	return *v, true
}

// GetPtr returns the addressable Value stored at key, suitable for
// in-place mutation (e.g. appending to a nested array). Returns nil if
// key is absent.
func (o *Object) GetPtr(key string) *Value {
	return o.values[key]
}

func (o *Object) Set(key string, v Value) {
	if existing, exists := o.values[key]; exists {
		*existing = v
		return
	}
	o.keys = append(o.keys, key)
	cp := v
	o.values[key] = &cp
}

func (o *Object) Delete(key string) bool {
	if _, ok := o.values[key]; !ok {
		return false
	}
	delete(o.values, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return true
}

func (o *Object) Keys() []string { return o.keys }

func (o *Object) Len() int { return len(o.keys) }

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	switch v.kind {
	case KindArray:
		cp := make([]Value, len(v.arr))
		for i, e := range v.arr {
			cp[i] = e.Clone()
		}
		return Array(cp)
	case KindObject:
		cp := NewObject()
		for _, k := range v.obj.keys {
			val, _ := v.obj.Get(k)
			cp.Set(k, val.Clone())
		}
		return Object_(cp)
	default:
		return v
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		if v.b {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case KindNumber:
		if v.n == "" {
			return []byte("0"), nil
		}
		return []byte(v.n), nil
	case KindString:
		return json.Marshal(v.s)
	case KindArray:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := e.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case KindObject:
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range v.obj.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			val, _ := v.obj.Get(k)
			vb, err := val.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("patch: unknown value kind %d", v.kind)
	}
}

// UnmarshalJSON implements json.Unmarshaler using a token-by-token decode
// so object key order is preserved and numbers keep their literal form
// (no float64 precision loss).
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	val, err := decodeValue(dec)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	return decodeFromToken(dec, tok)
}

func decodeFromToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return Number(t), nil
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '[':
			var elems []Value
			for dec.More() {
				e, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				elems = append(elems, e)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return Value{}, err
			}
			return Array(elems), nil
		case '{':
			obj := NewObject()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("patch: non-string object key %v", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				obj.Set(key, val)
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return Value{}, err
			}
			return Object_(obj), nil
		default:
			return Value{}, fmt.Errorf("patch: unexpected delimiter %v", t)
		}
	default:
		return Value{}, fmt.Errorf("patch: unexpected token %v", tok)
	}
}
