// Command zopflizip recompresses the Deflate entries of one or more ZIP
// archives in place, using a slower, more thorough encoder than a typical
// ZIP writer in exchange for smaller output (spec.md §1, §6).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zopflizip/zopflizip/internal/deflate"
	"github.com/zopflizip/zopflizip/internal/logx"
	"github.com/zopflizip/zopflizip/internal/rezip"
)

type flags struct {
	blockSplitMax uint32
	numIterations uint32
	numThreads    int
	replaceForce  bool
	dryRun        bool
	verbose       bool
	verboseMore   bool
	noBlockSplit  bool
	noOverwrite   bool
	password      string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:   "zopflizip PATH [PATH...]",
		Short: "Recompress the Deflate entries of ZIP archives with a slower, smaller encoder",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args, f)
		},
		SilenceUsage: true,
	}

	flagSet := cmd.Flags()
	flagSet.Uint32VarP(&f.blockSplitMax, "block-split-max", "b", 15, "maximum number of blocks to split each entry into (0 = unlimited)")
	flagSet.Uint32VarP(&f.numIterations, "num-iteration", "i", 15, "number of block-count candidates to try per entry")
	flagSet.IntVarP(&f.numThreads, "num-thread", "n", 0, "worker pool size; <= 0 means unlimited")
	flagSet.BoolVarP(&f.replaceForce, "replace-force", "r", false, "adopt recompressed data even when it is not smaller")
	flagSet.BoolVarP(&f.dryRun, "dry-run", "d", false, "process archives but write no files")
	flagSet.BoolVarP(&f.verbose, "verbose", "v", false, "log informational per-entry messages")
	flagSet.BoolVarP(&f.verboseMore, "verbose-more", "V", false, "log debug per-entry messages")
	flagSet.BoolVar(&f.noBlockSplit, "no-block-split", false, "disable block splitting entirely")
	flagSet.BoolVar(&f.noOverwrite, "no-overwrite", false, "write a new *.zopfli.zip file instead of replacing the input")
	flagSet.StringVar(&f.password, "password", "", "ZipCrypto password for encrypted entries")

	return cmd
}

func run(paths []string, f *flags) error {
	logx.SetVerbosity(f.verbose, f.verboseMore)

	deflateOpts := deflate.Options{
		NumIterations:     f.numIterations,
		BlockSplitting:    !f.noBlockSplit,
		BlockSplittingMax: f.blockSplitMax,
		Verbose:           f.verbose,
		VerboseMore:       f.verboseMore,
	}

	concurrency := f.numThreads
	if concurrency < 1 {
		logx.Log.WithField("num-thread", f.numThreads).Info("using an unbounded worker pool")
		concurrency = 0
	}

	opts := rezip.Options{
		Password:     f.password,
		ForceReplace: f.replaceForce,
		Concurrency:  concurrency,
		Deflate:      deflateOpts,
		DryRun:       f.dryRun,
		NoOverwrite:  f.noOverwrite,
	}

	var failures int
	for _, path := range paths {
		result, err := rezip.RewriteArchive(path, opts)
		if err != nil {
			logx.Log.WithField("archive", path).Error(err)
			failures++
			continue
		}
		logx.Log.WithFields(summaryFields(result)).Info("rewrote archive")
	}

	if failures > 0 {
		return fmt.Errorf("zopflizip: %d of %d archives failed", failures, len(paths))
	}
	return nil
}

func summaryFields(r *rezip.Result) map[string]interface{} {
	return map[string]interface{}{
		"path":          r.OutputPath,
		"entries":       r.EntriesTotal,
		"recompressed":  r.Recompressed,
		"kept_original": r.KeptOriginal,
		"bytes_before":  r.BytesBefore,
		"bytes_after":   r.BytesAfter,
		"bytes_saved":   r.BytesSaved(),
	}
}
