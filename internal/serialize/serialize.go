// Package serialize implements the tagged-tree codec used to persist
// algorithm objects (ciphers, hashes, Mixer/Hasher/KeyHasher) and small
// polymorphic values inside the manifest and description tables.
//
// Every non-trivial tree node is a map carrying a reserved "$$" field with
// an integer type tag. Scalars and plain lists are represented as
// themselves and recognized by their Go dynamic type. Algorithm objects
// use positive tags (their ALGORITHM_ID); built-in composite values use
// the fixed negative tags below.
package serialize

import (
	"encoding/base64"
	"fmt"
)

// Tag identifies the wire representation of a non-trivial value.
type Tag int

const (
	TagNull      Tag = -1
	TagBool      Tag = -2
	TagInt       Tag = -3
	TagFloat     Tag = -4
	TagString    Tag = -5
	TagList      Tag = -6
	TagTuple     Tag = -7
	TagSet       Tag = -8
	TagFrozenSet Tag = -9
	TagDict      Tag = -10
	TagBytes     Tag = -11
	TagBytearray Tag = -12
	TagRange     Tag = -13
	TagEllipsis  Tag = -14
)

// IDKey is the reserved field name carrying a node's type tag.
const IDKey = "$$"

// Tree is a JSON-representable value: nil, bool, int64, float64, string,
// []Tree, or map[string]Tree.
type Tree = interface{}

// SerializationError covers malformed wrappers, unknown tags, and unknown
// algorithm IDs encountered during serialize/deserialize.
type SerializationError struct {
	Message string
	Cause   error
}

func (e *SerializationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("serialization error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("serialization error: %s", e.Message)
}

func (e *SerializationError) Unwrap() error {
	return e.Cause
}

func newSerializationError(format string, args ...interface{}) *SerializationError {
	return &SerializationError{Message: fmt.Sprintf(format, args...)}
}

// Tuple, Set, FrozenSet, ByteArray, Range and Ellipsis mirror the Python
// builtins the original serializer covers; Go has no native equivalents.
type Tuple []interface{}
type Set []interface{}
type FrozenSet []interface{}
type ByteArray []byte
type Ellipsis struct{}

type Range struct {
	Begin int64
	End   int64
	Step  int64
}

// DictItem is one key/value pair of a Dict, serialized as an ordered list
// (Python dict keys need not be strings, so plain map[string]Tree can't
// represent them in general).
type DictItem struct {
	Key   interface{}
	Value interface{}
}

type Dict []DictItem

// Algorithm is implemented by every concrete hash, cipher, Mixer, Hasher
// and KeyHasher so the registry can serialize them uniformly.
type Algorithm interface {
	AlgorithmID() int
	// SerializeTree returns this value's tagged tree representation. reg
	// is provided so composite algorithms (Mixer/Hasher/KeyHasher) can
	// serialize their child elements.
	SerializeTree(reg *Registry) (Tree, error)
}

// Factory reconstructs an Algorithm from its tagged tree representation.
type Factory func(reg *Registry, data map[string]interface{}) (Algorithm, error)

// Registry is a process-wide (but never implicitly populated) table of
// ALGORITHM_ID -> Factory. It replaces the original metaclass-driven
// auto-registration: every concrete primitive and every composition type
// (Mixer/Hasher/KeyHasher) is registered by an explicit call during
// startup, never as a side effect of defining a type.
type Registry struct {
	factories map[int]Factory
}

// NewRegistry returns an empty registry. Callers populate it via
// MustRegister before using Serialize/Deserialize on algorithm values.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[int]Factory)}
}

// MustRegister adds a factory for the given algorithm ID. It panics on a
// duplicate ID: that is a programmer error in the startup registration
// step, not a recoverable condition.
func (r *Registry) MustRegister(id int, f Factory) {
	if _, exists := r.factories[id]; exists {
		panic(fmt.Sprintf("serialize: duplicate registration for algorithm id %d", id))
	}
	r.factories[id] = f
}

// Serialize converts a Go value into its Tree representation. Builtins
// (nil, bool, int64/int, float64, string, []byte, []interface{}, Tuple,
// Set, FrozenSet, Dict, ByteArray, Range, Ellipsis) are recognized by
// their Go dynamic type; any Algorithm is serialized via SerializeTree.
func (r *Registry) Serialize(value interface{}) (Tree, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case bool:
		return v, nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return v, nil
	case string:
		return v, nil
	case []byte:
		return map[string]interface{}{IDKey: int64(TagBytes), "v": base64.StdEncoding.EncodeToString(v)}, nil
	case ByteArray:
		return map[string]interface{}{IDKey: int64(TagBytearray), "v": base64.StdEncoding.EncodeToString(v)}, nil
	case []interface{}:
		return r.serializeList(v)
	case Tuple:
		list, err := r.serializeList(v)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{IDKey: int64(TagTuple), "v": list}, nil
	case Set:
		list, err := r.serializeList(v)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{IDKey: int64(TagSet), "k": list}, nil
	case FrozenSet:
		list, err := r.serializeList(v)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{IDKey: int64(TagFrozenSet), "k": list}, nil
	case Dict:
		items := make([]interface{}, 0, len(v))
		for _, it := range v {
			pair, err := r.serializeList([]interface{}{it.Key, it.Value})
			if err != nil {
				return nil, err
			}
			items = append(items, pair)
		}
		return map[string]interface{}{IDKey: int64(TagDict), "i": items}, nil
	case Range:
		return map[string]interface{}{IDKey: int64(TagRange), "b": v.Begin, "e": v.End, "s": v.Step}, nil
	case Ellipsis:
		return map[string]interface{}{IDKey: int64(TagEllipsis)}, nil
	case Algorithm:
		return v.SerializeTree(r)
	default:
		return nil, newSerializationError("unsupported value type %T", value)
	}
}

func (r *Registry) serializeList(items []interface{}) ([]interface{}, error) {
	out := make([]interface{}, len(items))
	for i, item := range items {
		v, err := r.Serialize(item)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Deserialize reconstructs a Go value from its Tree representation.
func (r *Registry) Deserialize(data Tree) (interface{}, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case bool:
		return v, nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return v, nil
	case string:
		return v, nil
	case []interface{}:
		return r.deserializeList(v)
	case map[string]interface{}:
		return r.deserializeTagged(v)
	default:
		return nil, newSerializationError("unrecognized tree node of type %T", data)
	}
}

func (r *Registry) deserializeList(items []interface{}) ([]interface{}, error) {
	out := make([]interface{}, len(items))
	for i, item := range items {
		v, err := r.Deserialize(item)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (r *Registry) deserializeTagged(data map[string]interface{}) (interface{}, error) {
	rawID, ok := data[IDKey]
	if !ok {
		return nil, newSerializationError("missing %q field in tagged node", IDKey)
	}
	id, err := asInt(rawID)
	if err != nil {
		return nil, newSerializationError("malformed %q field: %v", IDKey, err)
	}

	switch Tag(id) {
	case TagBytes:
		return decodeBytes(data, "v")
	case TagBytearray:
		b, err := decodeBytes(data, "v")
		if err != nil {
			return nil, err
		}
		return ByteArray(b), nil
	case TagTuple:
		list, err := asList(data, "v")
		if err != nil {
			return nil, err
		}
		items, err := r.deserializeList(list)
		if err != nil {
			return nil, err
		}
		return Tuple(items), nil
	case TagSet:
		list, err := asList(data, "k")
		if err != nil {
			return nil, err
		}
		items, err := r.deserializeList(list)
		if err != nil {
			return nil, err
		}
		return Set(items), nil
	case TagFrozenSet:
		list, err := asList(data, "k")
		if err != nil {
			return nil, err
		}
		items, err := r.deserializeList(list)
		if err != nil {
			return nil, err
		}
		return FrozenSet(items), nil
	case TagDict:
		list, err := asList(data, "i")
		if err != nil {
			return nil, err
		}
		out := make(Dict, 0, len(list))
		for _, raw := range list {
			pair, ok := raw.([]interface{})
			if !ok || len(pair) != 2 {
				return nil, newSerializationError("malformed dict entry")
			}
			k, err := r.Deserialize(pair[0])
			if err != nil {
				return nil, err
			}
			v, err := r.Deserialize(pair[1])
			if err != nil {
				return nil, err
			}
			out = append(out, DictItem{Key: k, Value: v})
		}
		return out, nil
	case TagRange:
		b, err := asInt(data["b"])
		if err != nil {
			return nil, newSerializationError("malformed range: %v", err)
		}
		e, err := asInt(data["e"])
		if err != nil {
			return nil, newSerializationError("malformed range: %v", err)
		}
		s, err := asInt(data["s"])
		if err != nil {
			return nil, newSerializationError("malformed range: %v", err)
		}
		return Range{Begin: b, End: e, Step: s}, nil
	case TagEllipsis:
		return Ellipsis{}, nil
	default:
		if id <= 0 {
			return nil, newSerializationError("unknown builtin tag %d", id)
		}
		factory, ok := r.factories[int(id)]
		if !ok {
			return nil, newSerializationError("unknown algorithm id %d", id)
		}
		return factory(r, data)
	}
}

func decodeBytes(data map[string]interface{}, key string) ([]byte, error) {
	raw, ok := data[key]
	if !ok {
		return nil, newSerializationError("missing %q field for bytes node", key)
	}
	s, ok := raw.(string)
	if !ok {
		return nil, newSerializationError("%q field is not a string", key)
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, newSerializationError("malformed base64 in %q: %v", key, err)
	}
	return b, nil
}

func asList(data map[string]interface{}, key string) ([]interface{}, error) {
	raw, ok := data[key]
	if !ok {
		return nil, newSerializationError("missing %q field", key)
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, newSerializationError("%q field is not a list", key)
	}
	return list, nil
}

func asInt(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("value of type %T is not an integer", value)
	}
}

// AsInt is the exported form of asInt, used by algorithm factories to pull
// integer parameters (digest_size, n, r, iterations) out of a decoded
// tree, which may hold them as float64 after a JSON round trip.
func AsInt(value interface{}) (int64, error) {
	return asInt(value)
}

// AsBytes is the exported form of decodeBytes' inner step, used by
// algorithm factories that receive an already-deserialized parameter
// value (a Go []byte or ByteArray) rather than a raw tree node.
func AsBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case ByteArray:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("value of type %T is not bytes", value)
	}
}
