package serialize

import "fmt"

// Driver is the Go counterpart of the Python ObjectDriver: a thin wrapper
// around a tagged map that lets an Algorithm's SerializeTree/factory pair
// build and read its own fields without hand-rolling map access and
// nested Serialize/Deserialize calls at every call site.
type Driver struct {
	reg  *Registry
	id   int
	data map[string]interface{}
}

// NewDriver starts a fresh tagged node for the given algorithm id.
func NewDriver(reg *Registry, id int) *Driver {
	return &Driver{reg: reg, id: id, data: map[string]interface{}{IDKey: int64(id)}}
}

// AttachDriver wraps an already-decoded tagged map for reading during
// deserialization. It panics if data carries no IDKey: a factory is only
// ever invoked by deserializeTagged, which has already checked this.
func AttachDriver(reg *Registry, data map[string]interface{}) *Driver {
	rawID, ok := data[IDKey]
	if !ok {
		panic("serialize: AttachDriver called on a node with no id field")
	}
	id, err := asInt(rawID)
	if err != nil {
		panic(fmt.Sprintf("serialize: AttachDriver: %v", err))
	}
	return &Driver{reg: reg, id: int(id), data: data}
}

// ID returns the algorithm id this node carries.
func (d *Driver) ID() int {
	return d.id
}

// Data returns the underlying tagged map, ready to return from
// SerializeTree.
func (d *Driver) Data() map[string]interface{} {
	return d.data
}

// AddKey serializes value and stores it under key. It panics on a
// duplicate key: building the same field twice within one SerializeTree
// call is a programmer error, not a recoverable condition.
func (d *Driver) AddKey(key string, value interface{}) {
	if _, exists := d.data[key]; exists {
		panic(fmt.Sprintf("serialize: key %q already set", key))
	}
	v, err := d.reg.Serialize(value)
	if err != nil {
		panic(fmt.Sprintf("serialize: AddKey(%q): %v", key, err))
	}
	d.data[key] = v
}

// GetKey deserializes and returns the value stored under key, erroring
// (not panicking) since a missing or malformed field during
// deserialization reflects untrusted on-disk data, not programmer error.
func (d *Driver) GetKey(key string) (interface{}, error) {
	raw, ok := d.data[key]
	if !ok {
		return nil, newSerializationError("missing key %q for algorithm id %d", key, d.id)
	}
	return d.reg.Deserialize(raw)
}

// Keys returns every field name on this node except the reserved id key,
// in the order Go's map iteration happens to produce. Callers that need a
// stable order (e.g. Mixer's ordered element list) store that order
// explicitly rather than relying on this.
func (d *Driver) Keys() []string {
	keys := make([]string, 0, len(d.data))
	for k := range d.data {
		if k != IDKey {
			keys = append(keys, k)
		}
	}
	return keys
}
