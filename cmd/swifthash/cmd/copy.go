package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/gordian-engine/swift"
	"github.com/gordian-engine/swift/sbin"
	"github.com/gordian-engine/swift/spubsub"
	"github.com/gordian-engine/swift/swire"
	"github.com/spf13/cobra"
)

func (c *command) initCopyCmd() {
	cmd := &cobra.Command{
		Use:   "copy <src> <dst>",
		Short: "Copy a file chunk by chunk, verifying every chunk",
		Long: `Copy src to dst the way a peer would transfer it:
peak hashes first, then each chunk preceded by the hashes needed to verify it.
Chunks already verified at dst are skipped, so an interrupted copy resumes.

The copy is checkpointed on completion.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			log, err := c.newLogger(cmd)
			if err != nil {
				return err
			}

			srcCfg, err := c.treeConfig(args[0])
			if err != nil {
				return err
			}
			src, err := swift.New(log.With("side", "src"), srcCfg)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := src.Close(); err == nil {
					err = cerr
				}
			}()
			if src.Size() == 0 {
				return fmt.Errorf("%s is empty", srcCfg.ContentPath)
			}

			dstCfg, err := c.treeConfig(args[1])
			if err != nil {
				return err
			}
			dstCfg.RootHash = src.RootHash()
			dstCfg.ChunkSize = uint32(src.ChunkSize())
			dst, err := swift.New(log.With("side", "dst"), dstCfg)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := dst.Close(); err == nil {
					err = cerr
				}
			}()

			sendPeaks := dst.Size() == 0
			var missing []sbin.Bin
			for i := range src.ChunkCount() {
				leaf := sbin.Leaf(i)
				if sendPeaks || !dst.HasChunk(leaf) {
					missing = append(missing, leaf)
				}
			}
			log.Info(
				"Starting copy",
				"missing_chunks", len(missing),
				"send_peaks", sendPeaks,
			)

			sdst := swift.NewSynchronized(dst)

			ctx, cancel := context.WithCancel(cmd.Context())
			progressDone := make(chan struct{})
			go func() {
				defer close(progressDone)
				reportProgress(ctx, log, sdst.Haves(), len(missing))
			}()

			pr, pw := io.Pipe()
			go func() {
				pw.CloseWithError(send(pw, src, sendPeaks, missing))
			}()

			st, err := swire.Receive(ctx, log, pr, uint32(src.ChunkSize()), sdst)
			_ = pr.Close()
			cancel()
			<-progressDone
			if err != nil {
				return err
			}

			if err := dst.WriteCheckpointFile(); err != nil {
				return err
			}

			fmt.Fprintf(
				cmd.OutOrStdout(),
				"%s: received %s chunks (%s rejected), %s of %s complete\n",
				dstCfg.ContentPath,
				humanize.Comma(int64(st.Chunks)),
				humanize.Comma(int64(st.RejectedChunks)),
				humanize.IBytes(dst.Complete()),
				humanize.IBytes(dst.Size()),
			)

			if err := c.printMetrics(cmd); err != nil {
				return err
			}
			if !dst.IsComplete() {
				return errIncomplete
			}
			return nil
		},
	}

	c.root.AddCommand(cmd)
}

// send writes the peaks of src if requested,
// then each listed chunk with its uncle hashes.
func send(w io.Writer, src *swift.Tree, peaks bool, leaves []sbin.Bin) error {
	if peaks {
		if err := swire.WritePeaks(w, src); err != nil {
			return err
		}
	}
	for _, leaf := range leaves {
		if err := swire.WriteChunk(w, src, leaf); err != nil {
			return err
		}
	}
	return nil
}

// reportProgress logs each chunk published to haves,
// until ctx is canceled.
func reportProgress(ctx context.Context, log *slog.Logger, haves *spubsub.Stream[sbin.Bin], want int) {
	var n int
	for {
		leaf, next, err := haves.Wait(ctx)
		if err != nil {
			return
		}
		haves = next
		n++
		log.Debug("Chunk verified", "chunk", leaf.BaseOffset(), "received", n, "wanted", want)
	}
}
