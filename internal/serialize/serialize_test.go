package serialize

import (
	"errors"
	"reflect"
	"testing"
)

func TestSerializeRoundTripScalars(t *testing.T) {
	reg := NewRegistry()
	values := []interface{}{nil, true, false, int64(42), "hello", []byte("abc")}
	for _, v := range values {
		tree, err := reg.Serialize(v)
		if err != nil {
			t.Fatalf("Serialize(%#v): %v", v, err)
		}
		out, err := reg.Deserialize(tree)
		if err != nil {
			t.Fatalf("Deserialize(%#v): %v", v, err)
		}
		if !reflect.DeepEqual(v, out) {
			t.Fatalf("round trip mismatch: want %#v got %#v", v, out)
		}
	}
}

func TestSerializeRoundTripComposites(t *testing.T) {
	reg := NewRegistry()

	tuple := Tuple{int64(1), "two", nil}
	tree, err := reg.Serialize(tuple)
	if err != nil {
		t.Fatalf("Serialize(Tuple): %v", err)
	}
	out, err := reg.Deserialize(tree)
	if err != nil {
		t.Fatalf("Deserialize(Tuple): %v", err)
	}
	if !reflect.DeepEqual(tuple, out) {
		t.Fatalf("tuple round trip mismatch: want %#v got %#v", tuple, out)
	}

	dict := Dict{{Key: "a", Value: int64(1)}, {Key: "b", Value: int64(2)}}
	tree, err = reg.Serialize(dict)
	if err != nil {
		t.Fatalf("Serialize(Dict): %v", err)
	}
	out, err = reg.Deserialize(tree)
	if err != nil {
		t.Fatalf("Deserialize(Dict): %v", err)
	}
	if !reflect.DeepEqual(dict, out) {
		t.Fatalf("dict round trip mismatch: want %#v got %#v", dict, out)
	}

	rng := Range{Begin: 0, End: 10, Step: 2}
	tree, err = reg.Serialize(rng)
	if err != nil {
		t.Fatalf("Serialize(Range): %v", err)
	}
	out, err = reg.Deserialize(tree)
	if err != nil {
		t.Fatalf("Deserialize(Range): %v", err)
	}
	if !reflect.DeepEqual(rng, out) {
		t.Fatalf("range round trip mismatch: want %#v got %#v", rng, out)
	}
}

func TestDeserializeUnknownAlgorithmID(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Deserialize(map[string]interface{}{IDKey: int64(9999)})
	if err == nil {
		t.Fatal("expected error for unknown algorithm id")
	}
	var serr *SerializationError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *SerializationError, got %T", err)
	}
}

func TestMustRegisterDuplicatePanics(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(1, func(r *Registry, data map[string]interface{}) (Algorithm, error) {
		return nil, nil
	})
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	reg.MustRegister(1, func(r *Registry, data map[string]interface{}) (Algorithm, error) {
		return nil, nil
	})
}
