package mixer

import (
	"fmt"

	"github.com/elseecay/overpass/internal/serialize"
)

// KeyHasher turns one password into one derived key per element, by
// feeding the password through element[0], then feeding element[0]'s
// output into element[1], and so on — each element's output is kept as a
// separate derived key rather than only forwarding the final digest
// (contrast with Hasher, which forwards through the whole chain and
// returns only the last digest).
type KeyHasher struct {
	elements  []HasherElement
	keySizes  []int
}

// NewKeyHasher mirrors KeyHasher(*elements). elements must be non-empty.
func NewKeyHasher(elements []HasherElement) (*KeyHasher, error) {
	if len(elements) == 0 {
		return nil, fmt.Errorf("mixer: KeyHasher requires at least one element")
	}
	keySizes := make([]int, len(elements))
	for i, elem := range elements {
		keySizes[i] = elem.DigestSize()
	}
	return &KeyHasher{elements: elements, keySizes: keySizes}, nil
}

// KeySizes returns the digest size each element produces, in order: the
// length of each key Process returns.
func (k *KeyHasher) KeySizes() []int {
	return k.keySizes
}

// Process derives one key per element, cumulatively: element i processes
// the output of element i-1 (element 0 processes the raw password), and
// every element's output is returned, in order.
func (k *KeyHasher) Process(password []byte) ([][]byte, error) {
	keys := make([][]byte, len(k.elements))
	current := password
	for i, elem := range k.elements {
		out, err := elem.Process(current)
		if err != nil {
			return nil, err
		}
		keys[i] = out
		current = out
	}
	return keys, nil
}

func (k *KeyHasher) AlgorithmID() int { return IDKeyHasher }

func (k *KeyHasher) SerializeTree(reg *serialize.Registry) (serialize.Tree, error) {
	d := serialize.NewDriver(reg, IDKeyHasher)
	elements := make([]interface{}, len(k.elements))
	for i, elem := range k.elements {
		alg, ok := elem.(serialize.Algorithm)
		if !ok {
			return nil, fmt.Errorf("mixer: KeyHasher element of type %T is not serializable", elem)
		}
		elements[i] = alg
	}
	d.AddKey("elements", serialize.Tuple(elements))
	return d.Data(), nil
}

func keyHasherFactory(reg *serialize.Registry, data map[string]interface{}) (serialize.Algorithm, error) {
	d := serialize.AttachDriver(reg, data)
	rawElements, err := d.GetKey("elements")
	if err != nil {
		return nil, err
	}
	elements, err := toHasherElements(rawElements)
	if err != nil {
		return nil, err
	}
	return NewKeyHasher(elements)
}
