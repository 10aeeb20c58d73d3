// Package zipcrypto implements the PKWARE Traditional Encryption stream
// cipher (commonly called "ZipCrypto"), as used by general-purpose bit 0 of
// a ZIP local file header (spec.md §4.B).
//
// This is a weak, historical cipher kept here only for compatibility with
// archives that already use it; it is not suitable for protecting secrets.
package zipcrypto

import (
	"crypto/rand"
	"io"

	"github.com/zopflizip/zopflizip/internal/zipcrc"
)

// CryptHeaderLen is the size of the random prefix PKWARE traditional
// encryption prepends to every encrypted entry's payload.
const CryptHeaderLen = 12

// keys holds the three 32-bit registers that make up ZipCrypto's state.
type keys struct {
	k0, k1, k2 uint32
}

func newKeys(password string) keys {
	k := keys{k0: 0x12345678, k1: 0x23456789, k2: 0x34567890}
	for i := 0; i < len(password); i++ {
		k.update(password[i])
	}
	return k
}

// update folds one plaintext byte into the key registers, per spec.md
// §4.B's update_keys.
func (k *keys) update(b byte) {
	k.k0 = zipcrc.UpdateByte(k.k0, b)
	k.k1 = (k.k1 + (k.k0 & 0xFF)) * 0x08088405
	k.k1++
	k.k2 = zipcrc.UpdateByte(k.k2, byte(k.k1>>24))
}

// streamByte produces the next keystream byte from the current key state,
// without advancing it.
func (k *keys) streamByte() byte {
	t := uint16(k.k2|2) & 0xFFFF
	return byte((uint32(t) * uint32(t^1)) >> 8)
}

// Decryptor decrypts a ZipCrypto-encrypted entry payload.
type Decryptor struct {
	k keys
}

// NewDecryptor initializes a decryptor from password and the entry's
// 12-byte crypt header (the encrypted prefix read from the archive).
//
// The final byte of the decrypted header is an informational check byte;
// callers that want to verify the password before committing to a full
// inflate may compare it against the high byte of the expected CRC-32 or
// (for entries with a trailing data descriptor) the high byte of the
// modification time, but the pipeline in this module always verifies via
// CRC-32 of the inflated output instead (spec.md §4.B, §4.D step 4).
func NewDecryptor(password string, cryptHeader [CryptHeaderLen]byte) *Decryptor {
	d := &Decryptor{k: newKeys(password)}
	for _, c := range cryptHeader {
		d.decryptByte(c)
	}
	return d
}

func (d *Decryptor) decryptByte(c byte) byte {
	p := c ^ d.k.streamByte()
	d.k.update(p)
	return p
}

// DecryptBytes decrypts ciphertext in place and also returns it.
func (d *Decryptor) DecryptBytes(ciphertext []byte) []byte {
	for i, c := range ciphertext {
		ciphertext[i] = d.decryptByte(c)
	}
	return ciphertext
}

// Encryptor encrypts a plaintext entry payload, producing a fresh random
// 12-byte crypt header each time it is constructed.
type Encryptor struct {
	k keys
}

// NewEncryptor initializes an encryptor from password and the entry's
// plaintext CRC-32, returning the encryptor and the 12-byte crypt header to
// prepend to the ciphertext. The crypt header is randomized, so encrypting
// the same plaintext twice with the same password produces different
// ciphertext (spec.md §4.B, §8 "Cipher laws").
func NewEncryptor(password string, crc32 uint32) (*Encryptor, [CryptHeaderLen]byte, error) {
	var header [CryptHeaderLen]byte
	if _, err := io.ReadFull(rand.Reader, header[:CryptHeaderLen-1]); err != nil {
		return nil, header, err
	}
	// The last byte of the crypt header is a check byte derived from the
	// plaintext CRC-32's high-order byte, per spec.md §4.B.
	header[CryptHeaderLen-1] = byte(crc32 >> 24)

	e := &Encryptor{k: newKeys(password)}
	for i, p := range header {
		header[i] = e.encryptByte(p)
	}
	return e, header, nil
}

func (e *Encryptor) encryptByte(p byte) byte {
	s := e.k.streamByte()
	e.k.update(p)
	return p ^ s
}

// EncryptBytes encrypts plaintext in place and also returns it.
func (e *Encryptor) EncryptBytes(plaintext []byte) []byte {
	for i, p := range plaintext {
		plaintext[i] = e.encryptByte(p)
	}
	return plaintext
}
