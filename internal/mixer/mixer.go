package mixer

import (
	"fmt"

	"github.com/elseecay/overpass/internal/primitives"
	"github.com/elseecay/overpass/internal/serialize"
)

// Mixer chains one or more ciphers, each with its own key and IV slice.
// Encryption runs the elements in construction order; Opposite produces a
// decryptor that runs the same elements in reverse order with reversed
// keys, so Mixer(c1, c2).Opposite().Process(Mixer(c1, c2).Process(data))
// recovers data.
type Mixer struct {
	elements     []primitives.Cipher
	ivSizes      []int
	ivSizeTotal  int
	keySizes     []int
	isKeysSet    bool
}

// NewMixer mirrors Mixer(*elements, keys=None). elements must be
// non-empty. If keys is non-nil, SetKeys is called immediately, mirroring
// the reference constructor's optional eager key assignment.
func NewMixer(elements []primitives.Cipher, keys [][]byte) (*Mixer, error) {
	if len(elements) == 0 {
		return nil, fmt.Errorf("mixer: Mixer requires at least one element")
	}
	ivSizes := make([]int, len(elements))
	keySizes := make([]int, len(elements))
	ivTotal := 0
	for i, elem := range elements {
		ivSizes[i] = elem.IVSize()
		keySizes[i] = elem.KeySize()
		ivTotal += elem.IVSize()
	}
	m := &Mixer{elements: elements, ivSizes: ivSizes, ivSizeTotal: ivTotal, keySizes: keySizes}
	if keys != nil {
		if err := m.SetKeys(keys); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// KeySizes returns each element's required key size, in order.
func (m *Mixer) KeySizes() []int {
	return m.keySizes
}

// IVSizeTotal returns the sum of every element's IV size — the length a
// single concatenated IV blob passed to SetIV must have.
func (m *Mixer) IVSizeTotal() int {
	return m.ivSizeTotal
}

// SetKeys assigns one key per element, in construction order. Every key's
// length must match its element's KeySize.
func (m *Mixer) SetKeys(keys [][]byte) error {
	if len(keys) != len(m.elements) {
		return fmt.Errorf("mixer: expected %d keys, got %d", len(m.elements), len(keys))
	}
	for i, key := range keys {
		if err := m.elements[i].SetKey(key); err != nil {
			return err
		}
	}
	m.isKeysSet = true
	return nil
}

// SetIV assigns IVs to every element from either a single concatenated
// blob (split according to ivSizes) or a per-element slice list. By
// default the per-element order is reversed before assignment
// (iv_order_reverse=true): encryption randomizes and concatenates IVs in
// element order, so decryption — which runs elements in reverse — must
// consume the same blob back-to-front to line each IV part up with the
// element it belongs to. Pass reverse=false when iv is already in the
// order the elements should consume it (e.g. right after SetIVRandom).
func (m *Mixer) SetIV(iv interface{}, reverse bool) error {
	var parts [][]byte
	switch v := iv.(type) {
	case []byte:
		split, err := splitBytes(v, m.ivSizes)
		if err != nil {
			return err
		}
		parts = split
	case [][]byte:
		parts = v
	default:
		return fmt.Errorf("mixer: SetIV expects []byte or [][]byte, got %T", iv)
	}
	if len(parts) != len(m.elements) {
		return fmt.Errorf("mixer: expected %d iv parts, got %d", len(m.elements), len(parts))
	}
	if reverse {
		parts = reverseByteSlices(parts)
	}
	for i, elem := range m.elements {
		if len(parts[i]) != m.ivSizes[i] {
			return fmt.Errorf("mixer: iv part %d must be %d bytes, got %d", i, m.ivSizes[i], len(parts[i]))
		}
		if err := elem.SetIV(parts[i]); err != nil {
			return err
		}
	}
	return nil
}

// SetIVRandom generates a fresh random IV for every element and returns
// the concatenation in element order (the form a caller persists
// alongside a row and later feeds back into SetIV with reverse=true).
func (m *Mixer) SetIVRandom(randBytes func(n int) ([]byte, error)) ([]byte, error) {
	parts := make([][]byte, len(m.elements))
	for i, size := range m.ivSizes {
		b, err := randBytes(size)
		if err != nil {
			return nil, err
		}
		parts[i] = b
	}
	if err := m.SetIV(parts, false); err != nil {
		return nil, err
	}
	total := make([]byte, 0, m.ivSizeTotal)
	for _, p := range parts {
		total = append(total, p...)
	}
	return total, nil
}

// Process runs data through every element in construction order. It
// panics if keys have not been set: processing before key assignment is
// a programmer error, not a recoverable condition.
func (m *Mixer) Process(data []byte) ([]byte, error) {
	if !m.isKeysSet {
		panic("mixer: Process called before SetKeys")
	}
	accum := data
	for _, elem := range m.elements {
		out, err := elem.Process(accum)
		if err != nil {
			return nil, err
		}
		accum = out
	}
	return accum, nil
}

// Opposite builds the decrypting (or encrypting) counterpart: elements
// and their keys reversed, each element swapped for its opposite
// direction. IV state is never carried over — every caller must call
// SetIV on the result before using it.
func (m *Mixer) Opposite() (*Mixer, error) {
	if !m.isKeysSet {
		panic("mixer: Opposite called before SetKeys")
	}
	n := len(m.elements)
	oppElements := make([]primitives.Cipher, n)
	oppKeys := make([][]byte, n)
	for i, elem := range m.elements {
		oppElements[n-1-i] = elem.Opposite()
	}
	for i, elem := range m.elements {
		oppKeys[n-1-i] = elem.Key()
	}
	return NewMixer(oppElements, oppKeys)
}

func splitBytes(blob []byte, sizes []int) ([][]byte, error) {
	total := 0
	for _, s := range sizes {
		total += s
	}
	if len(blob) != total {
		return nil, fmt.Errorf("mixer: iv blob length %d does not match required total %d", len(blob), total)
	}
	out := make([][]byte, len(sizes))
	offset := 0
	for i, s := range sizes {
		out[i] = blob[offset : offset+s]
		offset += s
	}
	return out, nil
}

func reverseByteSlices(in [][]byte) [][]byte {
	n := len(in)
	out := make([][]byte, n)
	for i, v := range in {
		out[n-1-i] = v
	}
	return out
}

func (m *Mixer) AlgorithmID() int { return IDMixer }

func (m *Mixer) SerializeTree(reg *serialize.Registry) (serialize.Tree, error) {
	d := serialize.NewDriver(reg, IDMixer)
	elements := make([]interface{}, len(m.elements))
	for i, elem := range m.elements {
		if !elem.IsEncryptor() {
			return nil, fmt.Errorf("mixer: cannot serialize a Mixer holding a decryptor element")
		}
		elements[i] = elem
	}
	d.AddKey("elements", serialize.Tuple(elements))
	return d.Data(), nil
}

func mixerFactory(reg *serialize.Registry, data map[string]interface{}) (serialize.Algorithm, error) {
	d := serialize.AttachDriver(reg, data)
	rawElements, err := d.GetKey("elements")
	if err != nil {
		return nil, err
	}
	tuple, ok := rawElements.(serialize.Tuple)
	if !ok {
		return nil, fmt.Errorf("mixer: expected a tuple of cipher elements, got %T", rawElements)
	}
	elements := make([]primitives.Cipher, len(tuple))
	for i, item := range tuple {
		c, ok := item.(primitives.Cipher)
		if !ok {
			return nil, fmt.Errorf("mixer: element %d of type %T is not a Cipher", i, item)
		}
		elements[i] = c
	}
	return NewMixer(elements, nil)
}
