// Package pipeline implements the per-entry decrypt -> inflate ->
// recompress -> encrypt pipeline (spec.md §4.D). Process is a pure
// function of its inputs: it touches no shared state and performs no I/O,
// so the bounded worker pool (internal/workerpool) can run many of these
// concurrently without coordination (spec.md §9, "Parallelism without
// shared mutation").
package pipeline

import (
	"errors"
	"fmt"

	"github.com/zopflizip/zopflizip/internal/deflate"
	"github.com/zopflizip/zopflizip/internal/zipcrc"
	"github.com/zopflizip/zopflizip/internal/zipcrypto"
	"github.com/zopflizip/zopflizip/internal/zipformat"
)

// Options configures one archive's worth of entry processing.
type Options struct {
	// Password enables ZipCrypto decrypt/encrypt for entries whose LFH has
	// the Encrypted flag set. Empty means no password was supplied.
	Password string

	// ForceReplace adopts the recompressed bytes even when they are not
	// smaller than the original (spec.md §4.D step 6, -r/--replace-force).
	ForceReplace bool

	// Deflate is passed through verbatim to the re-encoder (spec.md §4.G).
	Deflate deflate.Options
}

// Outcome records what Process did with one entry, for the rewriter's
// per-archive summary counters (SPEC_FULL.md "Supplemented features").
type Outcome int

const (
	// OutcomeRecompressed means the recompressed bytes were adopted.
	OutcomeRecompressed Outcome = iota
	// OutcomeKeptOriginal means recompression ran but did not improve on
	// the original compressed bytes, so they were kept (spec.md §4.D step
	// 6, the "<" not "<=" policy).
	OutcomeKeptOriginal
	// OutcomePassThroughMethod means the entry's compression method was
	// not Deflate, so it was never a pipeline candidate.
	OutcomePassThroughMethod
	// OutcomePassThroughNoPassword means the entry is encrypted but no
	// password was supplied.
	OutcomePassThroughNoPassword
	// OutcomePassThroughDecryptFailure means the ciphertext was shorter
	// than a crypt header.
	OutcomePassThroughDecryptFailure
	// OutcomePassThroughInflateFailure means the raw-DEFLATE decoder
	// rejected the payload, or produced the wrong length.
	OutcomePassThroughInflateFailure
	// OutcomePassThroughCRCMismatch means the inflated bytes' CRC-32
	// disagreed with the header.
	OutcomePassThroughCRCMismatch
	// OutcomePassThroughEncodeFailure means the re-encoder itself failed.
	OutcomePassThroughEncodeFailure
	// OutcomePassThroughEncryptFailure means re-encryption (after a
	// successful recompression decision) failed, e.g. reading randomness
	// for the crypt header failed.
	OutcomePassThroughEncryptFailure
)

// String renders an Outcome for logging.
func (o Outcome) String() string {
	switch o {
	case OutcomeRecompressed:
		return "recompressed"
	case OutcomeKeptOriginal:
		return "kept-original"
	case OutcomePassThroughMethod:
		return "pass-through-method"
	case OutcomePassThroughNoPassword:
		return "pass-through-no-password"
	case OutcomePassThroughDecryptFailure:
		return "pass-through-decrypt-failure"
	case OutcomePassThroughInflateFailure:
		return "pass-through-inflate-failure"
	case OutcomePassThroughCRCMismatch:
		return "pass-through-crc-mismatch"
	case OutcomePassThroughEncodeFailure:
		return "pass-through-encode-failure"
	case OutcomePassThroughEncryptFailure:
		return "pass-through-encrypt-failure"
	default:
		return "unknown"
	}
}

// Recompressed reports whether the entry's compressed bytes actually
// changed.
func (o Outcome) Recompressed() bool {
	return o == OutcomeRecompressed
}

// Result is the outcome of processing one entry: a possibly-modified
// header and a possibly-new payload (spec.md §4.D).
type Result struct {
	Header  *zipformat.LocalFileHeader
	Payload []byte
	Outcome Outcome
	// Warning is non-nil for any pass-through caused by a recoverable
	// failure (spec.md §7 kind 2); callers should log it, not abort.
	Warning error
}

// Process runs the entry pipeline for one Local File Header and its raw
// payload bytes, as read from the archive (spec.md §4.D).
func Process(h *zipformat.LocalFileHeader, payload []byte, opts Options) *Result {
	if h.Method != zipformat.MethodDeflate {
		return passThrough(h, payload, OutcomePassThroughMethod, nil)
	}

	working := payload
	encrypted := h.Encrypted()
	if encrypted {
		if opts.Password == "" {
			return passThrough(h, payload, OutcomePassThroughNoPassword, nil)
		}
		decrypted, err := decrypt(opts.Password, payload)
		if err != nil {
			return passThrough(h, payload, OutcomePassThroughDecryptFailure, err)
		}
		working = decrypted
	}

	plain, err := deflate.Inflate(working, int(h.UncompressedLength))
	if err != nil {
		return passThrough(h, payload, OutcomePassThroughInflateFailure, err)
	}
	if uint32(len(plain)) != h.UncompressedLength {
		return passThrough(h, payload, OutcomePassThroughInflateFailure,
			fmt.Errorf("inflated to %d bytes, header declares %d", len(plain), h.UncompressedLength))
	}

	if got := zipcrc.Checksum(plain); got != h.CRC32 {
		return passThrough(h, payload, OutcomePassThroughCRCMismatch,
			fmt.Errorf("crc32 %#08x does not match header %#08x", got, h.CRC32))
	}

	recompressed, err := deflate.Encode(plain, opts.Deflate)
	if err != nil {
		return passThrough(h, payload, OutcomePassThroughEncodeFailure, err)
	}

	chosen := working
	outcome := OutcomeKeptOriginal
	if opts.ForceReplace || len(recompressed) < len(working) {
		chosen = recompressed
		outcome = OutcomeRecompressed
	}

	finalPayload := chosen
	if encrypted {
		encryptedPayload, err := encrypt(opts.Password, h.CRC32, chosen)
		if err != nil {
			return passThrough(h, payload, OutcomePassThroughEncryptFailure, err)
		}
		finalPayload = encryptedPayload
	}

	newHeader := *h
	newHeader.CompressedLength = uint32(len(finalPayload))

	return &Result{Header: &newHeader, Payload: finalPayload, Outcome: outcome}
}

func passThrough(h *zipformat.LocalFileHeader, payload []byte, outcome Outcome, warning error) *Result {
	return &Result{Header: h, Payload: payload, Outcome: outcome, Warning: warning}
}

func decrypt(password string, payload []byte) ([]byte, error) {
	if len(payload) < zipcrypto.CryptHeaderLen {
		return nil, errors.New("payload shorter than crypt header")
	}
	var header [zipcrypto.CryptHeaderLen]byte
	copy(header[:], payload[:zipcrypto.CryptHeaderLen])

	ciphertext := append([]byte(nil), payload[zipcrypto.CryptHeaderLen:]...)
	dec := zipcrypto.NewDecryptor(password, header)
	return dec.DecryptBytes(ciphertext), nil
}

func encrypt(password string, crc32 uint32, plain []byte) ([]byte, error) {
	enc, header, err := zipcrypto.NewEncryptor(password, crc32)
	if err != nil {
		return nil, err
	}
	ciphertext := append([]byte(nil), plain...)
	enc.EncryptBytes(ciphertext)

	out := make([]byte, 0, zipcrypto.CryptHeaderLen+len(ciphertext))
	out = append(out, header[:]...)
	out = append(out, ciphertext...)
	return out, nil
}
