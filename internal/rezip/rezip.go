// Package rezip drives the archive rewriter state machine (spec.md §4.F):
// it walks an input ZIP's record stream from its first byte (no seeking, no
// backward scan for the end-of-central-directory record — this format's
// records are read in the order they occur), submits one pipeline task per
// Local File Header, then mirrors the Central Directory and
// End-of-Central-Directory records with their offsets and sizes patched to
// match whatever the pipeline produced.
package rezip

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/zopflizip/zopflizip/internal/deflate"
	"github.com/zopflizip/zopflizip/internal/logx"
	"github.com/zopflizip/zopflizip/internal/pipeline"
	"github.com/zopflizip/zopflizip/internal/workerpool"
	"github.com/zopflizip/zopflizip/internal/zipformat"
)

// Options configures one archive rewrite (spec.md §6's CLI flags, minus
// the positional paths).
type Options struct {
	Password     string
	ForceReplace bool
	Concurrency  int
	Deflate      deflate.Options
	DryRun       bool
	NoOverwrite  bool
}

// ErrUnexpectedSignature is a fatal parse error: a record boundary held a
// signature the state machine did not expect in its current state
// (spec.md §4.F: "Any signature in an unexpected state is a fatal parse
// error").
var ErrUnexpectedSignature = errors.New("rezip: unexpected signature at record boundary")

// Result summarizes one archive's rewrite (SPEC_FULL.md "per-archive
// summary counters").
type Result struct {
	InputPath  string
	OutputPath string

	EntriesTotal int
	Recompressed int
	KeptOriginal int
	PassThrough  map[pipeline.Outcome]int

	BytesBefore int64
	BytesAfter  int64
}

// BytesSaved is BytesBefore - BytesAfter; negative when --replace-force
// adopted entries that grew.
func (r *Result) BytesSaved() int64 {
	return r.BytesBefore - r.BytesAfter
}

type pendingEntry struct {
	handle            *workerpool.Handle[*pipeline.Result]
	hasDataDescriptor bool
}

type writtenEntry struct {
	compressedLength   uint32
	uncompressedLength uint32
	offset             int64
}

// OutputPath computes where RewriteArchive will write its result for
// inputPath, without actually running the rewrite (spec.md §6:
// "--no-overwrite: same directory, filename stem + .zopfli.zip").
func OutputPath(inputPath string, noOverwrite bool) string {
	if !noOverwrite {
		return inputPath
	}
	dir := filepath.Dir(inputPath)
	base := filepath.Base(inputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, stem+".zopfli.zip")
}

// RewriteArchive rewrites one ZIP archive at inputPath according to opts.
// On any fatal parse or I/O error it returns that error; a partially
// written output file, if one was created, is left on disk for inspection
// rather than deleted (spec.md §7 kind 1).
func RewriteArchive(inputPath string, opts Options) (*Result, error) {
	in, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("rezip: open %s: %w", inputPath, err)
	}
	defer in.Close()

	inInfo, err := in.Stat()
	if err != nil {
		return nil, fmt.Errorf("rezip: stat %s: %w", inputPath, err)
	}

	result := &Result{
		InputPath:   inputPath,
		OutputPath:  OutputPath(inputPath, opts.NoOverwrite),
		PassThrough: map[pipeline.Outcome]int{},
		BytesBefore: inInfo.Size(),
	}

	var outFile *os.File
	var tempPath string
	switch {
	case opts.DryRun:
		// no output file at all
	case opts.NoOverwrite:
		outFile, err = os.Create(result.OutputPath)
	default:
		tempPath = inputPath + ".zopflizip.tmp"
		outFile, err = os.Create(tempPath)
	}
	if err != nil {
		return nil, fmt.Errorf("rezip: create output for %s: %w", inputPath, err)
	}

	var w io.Writer = io.Discard
	var bw *bufio.Writer
	if outFile != nil {
		bw = bufio.NewWriter(outFile)
		w = bw
	}

	rewriteErr := rewrite(bufio.NewReader(in), w, opts, result)

	if bw != nil {
		if ferr := bw.Flush(); ferr != nil && rewriteErr == nil {
			rewriteErr = fmt.Errorf("rezip: flush output for %s: %w", inputPath, ferr)
		}
	}
	if outFile != nil {
		if cerr := outFile.Close(); cerr != nil && rewriteErr == nil {
			rewriteErr = fmt.Errorf("rezip: close output for %s: %w", inputPath, cerr)
		}
	}

	if rewriteErr != nil {
		return nil, rewriteErr
	}

	if tempPath != "" {
		if err := os.Rename(tempPath, inputPath); err != nil {
			return nil, fmt.Errorf("rezip: rename %s to %s: %w", tempPath, inputPath, err)
		}
	}

	if opts.DryRun {
		// nothing was written; keep the size rewrite counted
	} else if outInfo, err := os.Stat(result.OutputPath); err == nil {
		result.BytesAfter = outInfo.Size()
	} else {
		result.BytesAfter = result.BytesBefore
	}

	return result, nil
}

// rewrite runs the start -> LFH* -> CDFH* -> EOCD state machine (spec.md
// §4.F) reading r and writing w.
func rewrite(r *bufio.Reader, w io.Writer, opts Options, result *Result) error {
	pool := workerpool.New(opts.Concurrency)
	pipeOpts := pipeline.Options{
		Password:     opts.Password,
		ForceReplace: opts.ForceReplace,
		Deflate:      opts.Deflate,
	}

	var pending []pendingEntry

	var sig zipformat.Signature
	for {
		var err error
		sig, err = zipformat.ReadSignature(r)
		if err != nil {
			return fmt.Errorf("rezip: read record signature: %w", err)
		}
		if sig != zipformat.SignatureLocalFileHeader {
			break
		}

		lfh, err := zipformat.ReadLocalFileHeader(r)
		if err != nil {
			return fmt.Errorf("rezip: read local file header: %w", err)
		}

		if lfh.HasDataDescriptor() && lfh.CompressedLength == 0 && lfh.UncompressedLength == 0 {
			return fmt.Errorf("rezip: entry %q: %w", lfh.Name, zipformat.ErrUnsupportedDataDescriptor)
		}

		payload := make([]byte, lfh.CompressedLength)
		if _, err := io.ReadFull(r, payload); err != nil {
			return fmt.Errorf("rezip: read payload for %q: %w", lfh.Name, err)
		}

		hasDataDescriptor := lfh.HasDataDescriptor()
		if hasDataDescriptor {
			if _, err := zipformat.ReadDataDescriptor(r); err != nil {
				return fmt.Errorf("rezip: read data descriptor for %q: %w", lfh.Name, err)
			}
		}

		h := workerpool.Submit(pool, func() (*pipeline.Result, error) {
			return pipeline.Process(lfh, payload, pipeOpts), nil
		})
		pending = append(pending, pendingEntry{handle: h, hasDataDescriptor: hasDataDescriptor})
		result.EntriesTotal++
	}

	// A zero-entry archive goes straight from start to EOCD; CDFH* permits
	// N=0, so this is expected, not a fatal signature mismatch.
	emptyArchive := len(pending) == 0 && sig == zipformat.SignatureEndOfCentralDirectory
	if !emptyArchive && sig != zipformat.SignatureCentralDirectoryFileHeader {
		return fmt.Errorf("rezip: %w: expected central directory file header, got %#08x", ErrUnexpectedSignature, uint32(sig))
	}

	written := make([]writtenEntry, len(pending))
	var outPos int64
	for i, e := range pending {
		pr, _ := e.handle.Wait() // pipeline.Process never returns an error
		recordOutcome(result, pr)

		offset := outPos
		if err := zipformat.WriteLocalFileHeader(w, pr.Header); err != nil {
			return fmt.Errorf("rezip: write local file header for %q: %w", pr.Header.Name, err)
		}
		outPos += localFileHeaderLen(pr.Header)

		if _, err := w.Write(pr.Payload); err != nil {
			return fmt.Errorf("rezip: write payload for %q: %w", pr.Header.Name, err)
		}
		outPos += int64(len(pr.Payload))

		if e.hasDataDescriptor {
			dd := &zipformat.DataDescriptor{
				CRC32:              pr.Header.CRC32,
				CompressedLength:   pr.Header.CompressedLength,
				UncompressedLength: pr.Header.UncompressedLength,
			}
			if err := zipformat.WriteDataDescriptor(w, dd); err != nil {
				return fmt.Errorf("rezip: write data descriptor for %q: %w", pr.Header.Name, err)
			}
			outPos += dataDescriptorLen
		}

		written[i] = writtenEntry{
			compressedLength:   pr.Header.CompressedLength,
			uncompressedLength: pr.Header.UncompressedLength,
			offset:             offset,
		}
	}

	centralDirectoryOffset := outPos

	for i := range pending {
		if i > 0 {
			nextSig, err := zipformat.ReadSignature(r)
			if err != nil {
				return fmt.Errorf("rezip: read record signature: %w", err)
			}
			sig = nextSig
		}
		if sig != zipformat.SignatureCentralDirectoryFileHeader {
			return fmt.Errorf("rezip: %w: expected central directory file header, got %#08x", ErrUnexpectedSignature, uint32(sig))
		}

		cdfh, err := zipformat.ReadCentralDirectoryHeader(r)
		if err != nil {
			return fmt.Errorf("rezip: read central directory header: %w", err)
		}

		we := written[i]
		cdfh.CompressedLength = we.compressedLength
		cdfh.UncompressedLength = we.uncompressedLength
		cdfh.LocalHeaderOffset = uint32(we.offset)

		if err := zipformat.WriteCentralDirectoryHeader(w, cdfh); err != nil {
			return fmt.Errorf("rezip: write central directory header for %q: %w", cdfh.Name, err)
		}
		outPos += centralDirectoryHeaderLen(cdfh)
	}

	var eocdSig zipformat.Signature
	if emptyArchive {
		eocdSig = sig
	} else {
		var err error
		eocdSig, err = zipformat.ReadSignature(r)
		if err != nil {
			return fmt.Errorf("rezip: read record signature: %w", err)
		}
	}
	if eocdSig != zipformat.SignatureEndOfCentralDirectory {
		return fmt.Errorf("rezip: %w: expected end of central directory, got %#08x", ErrUnexpectedSignature, uint32(eocdSig))
	}

	eocd, err := zipformat.ReadEndOfCentralDirectory(r)
	if err != nil {
		return fmt.Errorf("rezip: read end of central directory: %w", err)
	}
	eocd.CDOffset = uint32(centralDirectoryOffset)
	eocd.TotalRecords = uint16(len(pending))
	eocd.NumRecordsThisDisk = uint16(len(pending))

	if err := zipformat.WriteEndOfCentralDirectory(w, eocd); err != nil {
		return fmt.Errorf("rezip: write end of central directory: %w", err)
	}
	outPos += 22 + int64(len(eocd.Comment))

	// The size of the rewritten archive, counted the same way whether it
	// went to a file or (in a dry run) was discarded.
	result.BytesAfter = outPos

	return nil
}

func recordOutcome(result *Result, pr *pipeline.Result) {
	switch pr.Outcome {
	case pipeline.OutcomeRecompressed:
		result.Recompressed++
	case pipeline.OutcomeKeptOriginal:
		result.KeptOriginal++
	default:
		result.PassThrough[pr.Outcome]++
	}
	if pr.Warning != nil {
		logx.Log.WithField("entry", pr.Header.Name).WithField("outcome", pr.Outcome.String()).Warn(pr.Warning)
	}
}

const dataDescriptorLen = 16

func localFileHeaderLen(h *zipformat.LocalFileHeader) int64 {
	return 30 + int64(len(h.Name)) + int64(len(h.Extra))
}

func centralDirectoryHeaderLen(h *zipformat.CentralDirectoryHeader) int64 {
	return 46 + int64(len(h.Name)) + int64(len(h.Extra)) + int64(len(h.Comment))
}
