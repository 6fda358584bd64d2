// Package encoding implements the length-hiding padding scheme and the
// utf8/base64/json helpers the manifest, description, and content tables
// build their stored byte strings from.
package encoding

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// AddRawPadding wraps data with a random prefix of prefixSize bytes and a
// random postfix of postfixSize bytes, each bounded by a one-byte length
// marker, mirroring bytes_add_padding: [prefixSize(1)][prefix][data]
// [postfix][postfixSize(1)]. Both sizes must fit in a byte (< 256).
func AddRawPadding(data []byte, prefixSize, postfixSize int) ([]byte, error) {
	if prefixSize < 0 || prefixSize > 255 {
		return nil, fmt.Errorf("encoding: prefix size %d out of byte range", prefixSize)
	}
	if postfixSize < 0 || postfixSize > 255 {
		return nil, fmt.Errorf("encoding: postfix size %d out of byte range", postfixSize)
	}
	prefix, err := randomBytes(prefixSize)
	if err != nil {
		return nil, err
	}
	postfix, err := randomBytes(postfixSize)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 1+prefixSize+len(data)+postfixSize+1)
	out = append(out, byte(prefixSize))
	out = append(out, prefix...)
	out = append(out, data...)
	out = append(out, postfix...)
	out = append(out, byte(postfixSize))
	return out, nil
}

// RemoveRawPadding is the inverse of AddRawPadding, reading the leading
// and trailing length markers to recover the original data.
func RemoveRawPadding(data []byte) ([]byte, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("encoding: padded data too short (%d bytes)", len(data))
	}
	prefixSize := int(data[0])
	postfixSize := int(data[len(data)-1])
	begin := prefixSize + 1
	end := len(data) - postfixSize - 1
	if begin > end || end > len(data) {
		return nil, fmt.Errorf("encoding: malformed padding markers (prefix=%d, postfix=%d, total=%d)", prefixSize, postfixSize, len(data))
	}
	return data[begin:end], nil
}

// EncodeAddPadding pads data so its total length is at least
// minOutputSize, with up to maxRndSize extra random bytes on each side
// beyond that floor, mirroring encode_add_padding. The prefix/postfix
// split of the floor-filling bytes is itself randomized, so an observer
// cannot tell how much of the padding is "required" versus "extra".
func EncodeAddPadding(data []byte, minOutputSize, maxRndSize int) ([]byte, error) {
	if minOutputSize < 0 {
		return nil, fmt.Errorf("encoding: minOutputSize must be >= 0, got %d", minOutputSize)
	}
	if maxRndSize < 0 {
		return nil, fmt.Errorf("encoding: maxRndSize must be >= 0, got %d", maxRndSize)
	}
	prefixSize, postfixSize := 0, 0
	if len(data) < minOutputSize {
		deficit := minOutputSize - len(data)
		p, err := randBelow(deficit + 1)
		if err != nil {
			return nil, err
		}
		prefixSize += p
		postfixSize += deficit - p
	}
	extraPrefix, err := randBelow(maxRndSize + 1)
	if err != nil {
		return nil, err
	}
	extraPostfix, err := randBelow(maxRndSize + 1)
	if err != nil {
		return nil, err
	}
	prefixSize += extraPrefix
	postfixSize += extraPostfix
	return AddRawPadding(data, prefixSize, postfixSize)
}

// DecodeAddPadding is the inverse of EncodeAddPadding.
func DecodeAddPadding(data []byte) ([]byte, error) {
	return RemoveRawPadding(data)
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("encoding: generating %d random bytes: %w", n, err)
	}
	return b, nil
}

// randBelow returns a uniform random integer in [0, n).
func randBelow(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("encoding: randBelow requires n > 0, got %d", n)
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("encoding: randBelow: %w", err)
	}
	return int(v.Int64()), nil
}
