package cmd

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/gordian-engine/swift"
	"github.com/gordian-engine/swift/shash"
	"github.com/spf13/cobra"
)

// errIncomplete is returned from verify when the file is not fully verified.
var errIncomplete = errors.New("content incomplete")

func (c *command) initVerifyCmd() {
	cmd := &cobra.Command{
		Use:   "verify <file>",
		Short: "Report how much of a file verifies against a root hash",
		Long: `Recover verification progress for a file against a known root hash,
using its stored hash tree and checkpoint, and report the result.

The command fails if any chunk is missing or does not verify.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			log, err := c.newLogger(cmd)
			if err != nil {
				return err
			}

			root, err := shash.ParseHex(c.config.GetString(optionNameRoot))
			if err != nil {
				return fmt.Errorf("invalid %s: %w", optionNameRoot, err)
			}

			cfg, err := c.treeConfig(args[0])
			if err != nil {
				return err
			}
			cfg.RootHash = root

			t, err := swift.New(log, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := t.Close(); err == nil {
					err = cerr
				}
			}()

			if t.RootHash() != root {
				return fmt.Errorf("content has root %s, want %s", t.RootHash(), root)
			}

			fmt.Fprintf(
				cmd.OutOrStdout(),
				"%s of %s verified (%s chunks), %s contiguous from start\n",
				humanize.IBytes(t.Complete()),
				humanize.IBytes(t.Size()),
				humanize.Comma(int64(t.CompleteChunks())),
				humanize.IBytes(t.SeqComplete()),
			)

			if err := c.printMetrics(cmd); err != nil {
				return err
			}
			if !t.IsComplete() {
				return errIncomplete
			}
			return nil
		},
	}

	cmd.Flags().String(optionNameRoot, "", "expected root hash, in hex")

	c.root.AddCommand(cmd)
}
