package swift

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gordian-engine/swift/sbin"
	"github.com/gordian-engine/swift/sbinmap"
	"github.com/gordian-engine/swift/shash"
)

const checkpointVersion = 1

// SaveCheckpoint writes the tree's verification progress to w.
//
// The format is five text lines,
//
//	version 1
//	root hash <40 hex digits>
//	chunk size <bytes>
//	complete <bytes>
//	completec <chunks>
//
// followed immediately by the serialized acknowledgment set.
func (t *Tree) SaveCheckpoint(w io.Writer) error {
	bw := bufio.NewWriter(w)

	// Errors from the buffered writer are sticky,
	// so checking once at Flush is sufficient for the text part.
	fmt.Fprintf(bw, "version %d\n", checkpointVersion)
	fmt.Fprintf(bw, "root hash %s\n", t.rootHash.Hex())
	fmt.Fprintf(bw, "chunk size %d\n", t.chunkSize)
	fmt.Fprintf(bw, "complete %d\n", t.complete)
	fmt.Fprintf(bw, "completec %d\n", t.completec)

	if _, err := t.ackOut.WriteTo(bw); err != nil {
		return fmt.Errorf("failed to write acknowledgment set: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint replaces the tree's state with a checkpoint
// written by [*Tree.SaveCheckpoint],
// re-deriving the peaks from the hash file instead of rereading content.
//
// A malformed checkpoint returns a [*CheckpointError].
// If the hash file does not hold peaks matching the checkpoint's root,
// an error is returned and the tree is left shapeless with no acknowledged chunks.
func (t *Tree) LoadCheckpoint(r io.Reader) error {
	br := bufio.NewReader(r)

	version, err := readCheckpointUint(br, "version")
	if err != nil {
		return err
	}
	if version != checkpointVersion {
		return &CheckpointError{
			Field: "version",
			Err:   fmt.Errorf("unsupported version %d", version),
		}
	}

	rootHex, err := readCheckpointField(br, "root hash")
	if err != nil {
		return err
	}
	root, err := shash.ParseHex(rootHex)
	if err != nil {
		return &CheckpointError{Field: "root hash", Err: err}
	}
	if !t.configuredRoot.IsZero() && root != t.configuredRoot {
		return &CheckpointError{
			Field: "root hash",
			Err:   fmt.Errorf("checkpoint is for root %s, expected %s", root, t.configuredRoot),
		}
	}

	chunkSize, err := readCheckpointUint(br, "chunk size")
	if err != nil {
		return err
	}
	if chunkSize == 0 {
		return &CheckpointError{Field: "chunk size", Err: errors.New("must be positive")}
	}

	complete, err := readCheckpointUint(br, "complete")
	if err != nil {
		return err
	}
	completec, err := readCheckpointUint(br, "completec")
	if err != nil {
		return err
	}

	// Parse the acknowledgment set into a scratch set first,
	// so a truncated checkpoint leaves the current one alone.
	acks := sbinmap.New()
	if _, err := acks.ReadFrom(br); err != nil {
		return &CheckpointError{Err: err}
	}

	t.log.Info(
		"Restoring checkpoint",
		"root", root,
		"chunk_size", chunkSize,
		"complete", complete,
		"complete_chunks", completec,
	)

	prevChunkSize := t.chunkSize
	t.resetShape()
	t.rootHash = root
	t.chunkSize = chunkSize

	fail := func(err error) error {
		t.rootHash = t.configuredRoot
		t.chunkSize = prevChunkSize
		t.resetShape()
		return err
	}

	ok, err := t.recoverPeakHashes()
	if err == nil && !ok {
		err = errors.New("hash file peaks do not match checkpoint root")
	}
	if err != nil {
		return fail(fmt.Errorf("failed to recover peak hashes: %w", err))
	}

	// Recovering peaks rounded the size up to whole chunks;
	// take the exact size from the content file.
	size, err := t.contentSize()
	if err != nil {
		return fail(err)
	}
	sizec := (size + chunkSize - 1) / chunkSize
	if err := checkCheckpointCounts(acks, sizec, size, chunkSize, complete, completec); err != nil {
		return fail(err)
	}

	// Restore the acknowledged chunks into the configured set.
	var buf bytes.Buffer
	if _, err := acks.WriteTo(&buf); err != nil {
		return fail(fmt.Errorf("failed to copy acknowledgment set: %w", err))
	}
	if _, err := t.ackOut.ReadFrom(&buf); err != nil {
		return fail(fmt.Errorf("failed to copy acknowledgment set: %w", err))
	}

	t.complete = complete
	t.completec = completec
	t.size = size
	t.sizec = sizec

	t.metrics.setComplete(t.complete)
	return nil
}

// WriteCheckpointFile syncs the hash file
// and writes a checkpoint to the configured checkpoint path,
// so that a later [New] can resume without rehashing content.
func (t *Tree) WriteCheckpointFile() error {
	if err := t.hashes.Sync(); err != nil {
		return err
	}

	f, err := t.fs.OpenFile(t.checkpointPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint file: %w", err)
	}

	if err := t.SaveCheckpoint(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}
	return nil
}

func (t *Tree) loadCheckpointFile() error {
	f, err := t.fs.Open(t.checkpointPath)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer f.Close()

	return t.LoadCheckpoint(f)
}

// checkCheckpointCounts reports a [*CheckpointError]
// if the saved counters disagree with the acknowledgment set,
// or if the set marks chunks past the end of the content.
func checkCheckpointCounts(acks *sbinmap.Binmap, sizec, size, chunkSize, complete, completec uint64) error {
	n := acks.Count()
	if acks.CountBelow(sizec) != n {
		return &CheckpointError{
			Err: fmt.Errorf("acknowledgment set extends past %d chunks", sizec),
		}
	}
	if n != completec {
		return &CheckpointError{
			Field: "completec",
			Err:   fmt.Errorf("%d chunks counted, %d acknowledged", completec, n),
		}
	}

	want := n * chunkSize
	if n > 0 && acks.IsFilled(sbin.Leaf(sizec-1)) {
		// The last chunk may be short.
		want -= sizec*chunkSize - size
	}
	if complete != want {
		return &CheckpointError{
			Field: "complete",
			Err:   fmt.Errorf("%d bytes counted, %d acknowledged", complete, want),
		}
	}
	return nil
}

// readCheckpointField reads one line and returns what follows
// the exact prefix name + " ".
func readCheckpointField(br *bufio.Reader, name string) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return "", &CheckpointError{Field: name, Err: err}
	}
	line = strings.TrimSuffix(line, "\n")

	rest, ok := strings.CutPrefix(line, name+" ")
	if !ok {
		return "", &CheckpointError{
			Field: name,
			Err:   fmt.Errorf("line %q does not start with %q", line, name+" "),
		}
	}
	return rest, nil
}

func readCheckpointUint(br *bufio.Reader, name string) (uint64, error) {
	s, err := readCheckpointField(br, name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, &CheckpointError{Field: name, Err: err}
	}
	return v, nil
}
