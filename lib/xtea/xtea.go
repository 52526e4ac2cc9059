// Package xtea applies the XTEA block scramble to container payloads:
// whole 8-byte blocks are processed in place, a trailing partial block
// is left as is, and the zero key means "not encrypted".
package xtea

import (
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/xtea"
)

const (
	KeySize   = 4
	BlockSize = xtea.BlockSize
)

// Key is a 128-bit key as four 32-bit words.
type Key [KeySize]uint32

func (k Key) IsZero() bool {
	return k == Key{}
}

func (k Key) cipher() *xtea.Cipher {
	raw := make([]byte, KeySize*4)
	for i, w := range k {
		binary.BigEndian.PutUint32(raw[i*4:], w)
	}

	// NewCipher only fails on a key that is not 16 bytes.
	c, _ := xtea.NewCipher(raw)
	return c
}

// Encrypt scrambles every full 8-byte block of buf in place.
func Encrypt(buf []byte, key Key) {
	if key.IsZero() {
		return
	}

	c := key.cipher()
	for i := 0; i+BlockSize <= len(buf); i += BlockSize {
		c.Encrypt(buf[i:i+BlockSize], buf[i:i+BlockSize])
	}
}

// Decrypt inverts Encrypt in place.
func Decrypt(buf []byte, key Key) {
	if key.IsZero() {
		return
	}

	c := key.cipher()
	for i := 0; i+BlockSize <= len(buf); i += BlockSize {
		c.Decrypt(buf[i:i+BlockSize], buf[i:i+BlockSize])
	}
}

// ParseKey parses four comma separated words. Words may be decimal
// (signed or unsigned) or 0x-prefixed hex. The empty string is the zero
// key.
func ParseKey(s string) (Key, error) {
	var key Key
	if strings.TrimSpace(s) == "" {
		return key, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) != KeySize {
		return key, errors.Errorf("xtea: key needs %d words, got %d", KeySize, len(parts))
	}

	for i, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.ParseInt(p, 0, 64)
		if err != nil {
			return key, errors.Wrapf(err, "xtea: key word %d", i)
		}
		if v < -(1<<31) || v > (1<<32)-1 {
			return key, errors.Errorf("xtea: key word %d out of range: %s", i, p)
		}
		key[i] = uint32(v)
	}

	return key, nil
}
