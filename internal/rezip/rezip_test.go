package rezip

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zopflizip/zopflizip/internal/deflate"
	"github.com/zopflizip/zopflizip/internal/zipcrc"
	"github.com/zopflizip/zopflizip/internal/zipcrypto"
	"github.com/zopflizip/zopflizip/internal/zipformat"
)

type testEntry struct {
	name       string
	plain      []byte
	method     uint16
	password   string // non-empty enables ZipCrypto
	compressed []byte // precomputed compressed (pre-encryption) bytes, method-dependent
}

func buildArchive(t *testing.T, entries []testEntry) []byte {
	t.Helper()
	var buf bytes.Buffer

	type placed struct {
		lfh    *zipformat.LocalFileHeader
		offset int64
	}
	var placedEntries []placed

	for _, e := range entries {
		var compressed []byte
		if e.compressed != nil {
			compressed = e.compressed
		} else if e.method == zipformat.MethodDeflate {
			c, err := deflate.Encode(e.plain, deflate.Options{NumIterations: 1, BlockSplitting: false})
			require.NoError(t, err)
			compressed = c
		} else {
			compressed = e.plain
		}

		flags := uint16(0)
		payload := compressed
		if e.password != "" {
			flags |= zipformat.FlagEncrypted
			enc, header, err := zipcrypto.NewEncryptor(e.password, zipcrc.Checksum(e.plain))
			require.NoError(t, err)
			ciphertext := append([]byte(nil), compressed...)
			enc.EncryptBytes(ciphertext)
			payload = append(append([]byte{}, header[:]...), ciphertext...)
		}

		lfh := &zipformat.LocalFileHeader{
			Flags:              flags,
			Method:             e.method,
			CRC32:              zipcrc.Checksum(e.plain),
			CompressedLength:   uint32(len(payload)),
			UncompressedLength: uint32(len(e.plain)),
			Name:               e.name,
		}

		offset := int64(buf.Len())
		require.NoError(t, zipformat.WriteLocalFileHeader(&buf, lfh))
		_, err := buf.Write(payload)
		require.NoError(t, err)

		placedEntries = append(placedEntries, placed{lfh: lfh, offset: offset})
	}

	cdStart := int64(buf.Len())
	for _, p := range placedEntries {
		cdfh := &zipformat.CentralDirectoryHeader{
			Flags:              p.lfh.Flags,
			Method:             p.lfh.Method,
			CRC32:              p.lfh.CRC32,
			CompressedLength:   p.lfh.CompressedLength,
			UncompressedLength: p.lfh.UncompressedLength,
			LocalHeaderOffset:  uint32(p.offset),
			Name:               p.lfh.Name,
		}
		require.NoError(t, zipformat.WriteCentralDirectoryHeader(&buf, cdfh))
	}
	cdSize := int64(buf.Len()) - cdStart

	eocd := &zipformat.EndOfCentralDirectory{
		NumRecordsThisDisk: uint16(len(placedEntries)),
		TotalRecords:       uint16(len(placedEntries)),
		CDSize:             uint32(cdSize),
		CDOffset:           uint32(cdStart),
	}
	require.NoError(t, zipformat.WriteEndOfCentralDirectory(&buf, eocd))

	return buf.Bytes()
}

func writeTempArchive(t *testing.T, data []byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "input.zip")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func parseArchive(t *testing.T, data []byte) ([]*zipformat.LocalFileHeader, [][]byte, []*zipformat.CentralDirectoryHeader, *zipformat.EndOfCentralDirectory) {
	t.Helper()
	r := bytes.NewReader(data)

	var lfhs []*zipformat.LocalFileHeader
	var payloads [][]byte
	var sig zipformat.Signature
	for {
		var err error
		sig, err = zipformat.ReadSignature(r)
		require.NoError(t, err)
		if sig != zipformat.SignatureLocalFileHeader {
			break
		}
		lfh, err := zipformat.ReadLocalFileHeader(r)
		require.NoError(t, err)
		payload := make([]byte, lfh.CompressedLength)
		_, err = io.ReadFull(r, payload)
		require.NoError(t, err)
		lfhs = append(lfhs, lfh)
		payloads = append(payloads, payload)
	}

	var cdfhs []*zipformat.CentralDirectoryHeader
	for i := 0; i < len(lfhs); i++ {
		if i > 0 {
			var err error
			sig, err = zipformat.ReadSignature(r)
			require.NoError(t, err)
		}
		require.Equal(t, zipformat.SignatureCentralDirectoryFileHeader, sig)
		cdfh, err := zipformat.ReadCentralDirectoryHeader(r)
		require.NoError(t, err)
		cdfhs = append(cdfhs, cdfh)
	}

	// A zero-entry archive's only signature is already the EOCD's, read
	// above by the LFH loop; otherwise it's still ahead on the stream.
	if len(lfhs) > 0 {
		var err error
		sig, err = zipformat.ReadSignature(r)
		require.NoError(t, err)
	}
	require.Equal(t, zipformat.SignatureEndOfCentralDirectory, sig)
	eocd, err := zipformat.ReadEndOfCentralDirectory(r)
	require.NoError(t, err)

	return lfhs, payloads, cdfhs, eocd
}

func TestRewriteStoredEntryIsByteIdentical(t *testing.T) {
	data := buildArchive(t, []testEntry{
		{name: "hello.txt", plain: []byte("hello\n"), method: zipformat.MethodStore},
	})
	path := writeTempArchive(t, data)

	result, err := RewriteArchive(path, Options{Deflate: deflate.DefaultOptions()})
	require.NoError(t, err)
	require.Equal(t, 1, result.EntriesTotal)
	require.Equal(t, 0, result.Recompressed)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestRewriteEmptyArchiveIsAccepted(t *testing.T) {
	data := buildArchive(t, nil)
	path := writeTempArchive(t, data)

	result, err := RewriteArchive(path, Options{Deflate: deflate.DefaultOptions()})
	require.NoError(t, err)
	require.Equal(t, 0, result.EntriesTotal)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	lfhs, _, cdfhs, eocd := parseArchive(t, got)
	require.Len(t, lfhs, 0)
	require.Len(t, cdfhs, 0)
	require.Equal(t, uint16(0), eocd.TotalRecords)
	require.Equal(t, uint32(0), eocd.CDOffset)
}

func TestRewriteDeflateEntryShrinksOrKeeps(t *testing.T) {
	plain := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 3000)
	data := buildArchive(t, []testEntry{
		{name: "big.txt", plain: plain, method: zipformat.MethodDeflate},
	})
	path := writeTempArchive(t, data)

	result, err := RewriteArchive(path, Options{Deflate: deflate.DefaultOptions()})
	require.NoError(t, err)
	require.Equal(t, 1, result.EntriesTotal)
	require.Equal(t, 1, result.Recompressed+result.KeptOriginal)
	require.LessOrEqual(t, result.BytesAfter, result.BytesBefore)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	lfhs, payloads, cdfhs, eocd := parseArchive(t, got)
	require.Len(t, lfhs, 1)
	require.Len(t, cdfhs, 1)
	require.Equal(t, uint16(1), eocd.TotalRecords)

	inflated, err := deflate.Inflate(payloads[0], len(plain))
	require.NoError(t, err)
	require.Equal(t, plain, inflated)
	require.Equal(t, lfhs[0].CompressedLength, cdfhs[0].CompressedLength)
}

func TestRewriteTwoEntriesPreservesOrderAndOffsets(t *testing.T) {
	plainA := bytes.Repeat([]byte("aaaa"), 1000)
	plainB := bytes.Repeat([]byte("bbbb"), 1000)
	data := buildArchive(t, []testEntry{
		{name: "a.txt", plain: plainA, method: zipformat.MethodDeflate},
		{name: "b.txt", plain: plainB, method: zipformat.MethodDeflate},
	})
	path := writeTempArchive(t, data)

	result, err := RewriteArchive(path, Options{Deflate: deflate.DefaultOptions(), Concurrency: 4})
	require.NoError(t, err)
	require.Equal(t, 2, result.EntriesTotal)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	lfhs, _, cdfhs, eocd := parseArchive(t, got)
	require.Equal(t, []string{"a.txt", "b.txt"}, []string{lfhs[0].Name, lfhs[1].Name})
	require.Equal(t, uint16(2), eocd.TotalRecords)

	wantSecondOffset := int64(30+len("a.txt")) + int64(lfhs[0].CompressedLength)
	require.Equal(t, uint32(wantSecondOffset), cdfhs[1].LocalHeaderOffset)
	require.Equal(t, uint32(0), cdfhs[0].LocalHeaderOffset)
}

func TestRewriteEncryptedEntryRoundTripsWithPassword(t *testing.T) {
	plain := []byte("abcabcabcabc")
	data := buildArchive(t, []testEntry{
		{name: "secret.txt", plain: plain, method: zipformat.MethodDeflate, password: "pw"},
	})
	path := writeTempArchive(t, data)

	_, err := RewriteArchive(path, Options{Password: "pw", Deflate: deflate.DefaultOptions()})
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	lfhs, payloads, _, _ := parseArchive(t, got)
	require.True(t, lfhs[0].Encrypted())

	var header [zipcrypto.CryptHeaderLen]byte
	copy(header[:], payloads[0][:zipcrypto.CryptHeaderLen])
	dec := zipcrypto.NewDecryptor("pw", header)
	decrypted := dec.DecryptBytes(append([]byte(nil), payloads[0][zipcrypto.CryptHeaderLen:]...))
	inflated, err := deflate.Inflate(decrypted, len(plain))
	require.NoError(t, err)
	require.Equal(t, plain, inflated)
}

func TestRewriteEncryptedEntryWithoutPasswordIsUnchanged(t *testing.T) {
	data := buildArchive(t, []testEntry{
		{name: "secret.txt", plain: []byte("abcabcabcabc"), method: zipformat.MethodDeflate, password: "pw"},
	})
	path := writeTempArchive(t, data)

	_, err := RewriteArchive(path, Options{Deflate: deflate.DefaultOptions()})
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestRewriteDryRunLeavesInputUnchanged(t *testing.T) {
	plain := bytes.Repeat([]byte("compress me please "), 2000)
	data := buildArchive(t, []testEntry{
		{name: "x.txt", plain: plain, method: zipformat.MethodDeflate},
	})
	path := writeTempArchive(t, data)

	result, err := RewriteArchive(path, Options{Deflate: deflate.DefaultOptions(), DryRun: true})
	require.NoError(t, err)
	require.Equal(t, 1, result.EntriesTotal)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestRewriteNoOverwriteWritesSiblingFile(t *testing.T) {
	data := buildArchive(t, []testEntry{
		{name: "x.txt", plain: []byte("hello\n"), method: zipformat.MethodStore},
	})
	path := writeTempArchive(t, data)

	result, err := RewriteArchive(path, Options{Deflate: deflate.DefaultOptions(), NoOverwrite: true})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(filepath.Dir(path), "input.zopfli.zip"), result.OutputPath)

	original, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, data, original)

	_, err = os.Stat(result.OutputPath)
	require.NoError(t, err)
}

func TestRewriteForceReplaceAdoptsEvenWhenNotSmaller(t *testing.T) {
	plain := []byte("x")
	weak, err := deflate.Encode(plain, deflate.DefaultOptions())
	require.NoError(t, err)
	data := buildArchive(t, []testEntry{
		{name: "tiny.txt", plain: plain, method: zipformat.MethodDeflate, compressed: weak},
	})
	path := writeTempArchive(t, data)

	result, err := RewriteArchive(path, Options{Deflate: deflate.DefaultOptions(), ForceReplace: true})
	require.NoError(t, err)
	require.Equal(t, 1, result.Recompressed)
	require.Equal(t, 0, result.KeptOriginal)
}

func TestRewriteFatalErrorOnUnexpectedSignatureLeavesOriginalInPlace(t *testing.T) {
	data := buildArchive(t, []testEntry{
		{name: "x.txt", plain: []byte("hello\n"), method: zipformat.MethodStore},
	})
	// Corrupt the end of central directory signature (the first byte of the
	// fixed-size 22-byte EOCD record) to trigger a fatal parse error.
	corrupted := append([]byte(nil), data...)
	corrupted[len(corrupted)-22] ^= 0xFF
	path := writeTempArchive(t, corrupted)

	_, err := RewriteArchive(path, Options{Deflate: deflate.DefaultOptions()})
	require.Error(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, corrupted, got, "original file must be untouched when the rewrite aborts")
}
