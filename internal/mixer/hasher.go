// Package mixer implements the three composition types the core engine
// builds its key schedule and content hashing from: Hasher (chained
// hashing with a repeat count), KeyHasher (one derived key per mixer
// element from a single password), and Mixer (chained stream/block
// ciphers, each with its own key and IV slice).
package mixer

import (
	"fmt"

	"github.com/elseecay/overpass/internal/serialize"
)

// Algorithm IDs for the three composition types, continuing the range
// internal/primitives leaves open above 1999.
const (
	IDMixer     = 2000
	IDHasher    = 2001
	IDKeyHasher = 2002
)

// HasherElement is satisfied by both primitives.Hash and *Hasher, letting
// a Hasher nest another Hasher as one of its elements.
type HasherElement interface {
	DigestSize() int
	Process(data []byte) ([]byte, error)
}

// Hasher chains one or more HasherElements, repeating the whole chain
// Iterations times, feeding each element's output into the next.
type Hasher struct {
	elements   []HasherElement
	iterations int
	digestSize int
}

// NewHasher mirrors Hasher(*elements, iterations=1). iterations must be
// at least 1 and elements must be non-empty.
func NewHasher(elements []HasherElement, iterations int) (*Hasher, error) {
	if len(elements) == 0 {
		return nil, fmt.Errorf("mixer: Hasher requires at least one element")
	}
	if iterations < 1 {
		return nil, fmt.Errorf("mixer: Hasher iterations must be >= 1, got %d", iterations)
	}
	last := elements[len(elements)-1]
	return &Hasher{elements: elements, iterations: iterations, digestSize: last.DigestSize()}, nil
}

func (h *Hasher) AlgorithmID() int { return IDHasher }
func (h *Hasher) DigestSize() int  { return h.digestSize }

// Process feeds data through every element in order, Iterations times.
func (h *Hasher) Process(data []byte) ([]byte, error) {
	accum := data
	for i := 0; i < h.iterations; i++ {
		for _, elem := range h.elements {
			out, err := elem.Process(accum)
			if err != nil {
				return nil, err
			}
			accum = out
		}
	}
	return accum, nil
}

func (h *Hasher) SerializeTree(reg *serialize.Registry) (serialize.Tree, error) {
	d := serialize.NewDriver(reg, IDHasher)
	elements := make([]interface{}, len(h.elements))
	for i, elem := range h.elements {
		alg, ok := elem.(serialize.Algorithm)
		if !ok {
			return nil, fmt.Errorf("mixer: Hasher element of type %T is not serializable", elem)
		}
		elements[i] = alg
	}
	d.AddKey("elements", serialize.Tuple(elements))
	d.AddKey("iterations", int64(h.iterations))
	return d.Data(), nil
}

func hasherFactory(reg *serialize.Registry, data map[string]interface{}) (serialize.Algorithm, error) {
	d := serialize.AttachDriver(reg, data)
	rawElements, err := d.GetKey("elements")
	if err != nil {
		return nil, err
	}
	elements, err := toHasherElements(rawElements)
	if err != nil {
		return nil, err
	}
	rawIterations, err := d.GetKey("iterations")
	if err != nil {
		return nil, err
	}
	iterations, err := serialize.AsInt(rawIterations)
	if err != nil {
		return nil, err
	}
	return NewHasher(elements, int(iterations))
}

func toHasherElements(raw interface{}) ([]HasherElement, error) {
	tuple, ok := raw.(serialize.Tuple)
	if !ok {
		return nil, fmt.Errorf("mixer: expected a tuple of elements, got %T", raw)
	}
	out := make([]HasherElement, len(tuple))
	for i, item := range tuple {
		elem, ok := item.(HasherElement)
		if !ok {
			return nil, fmt.Errorf("mixer: element %d of type %T is not a HasherElement", i, item)
		}
		out[i] = elem
	}
	return out, nil
}
