package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/gordian-engine/swift"
	"github.com/spf13/cobra"
)

func (c *command) initHashCmd() {
	cmd := &cobra.Command{
		Use:   "hash <file>",
		Short: "Hash a file and print its root hash",
		Long: `Hash a file, store its hash tree next to it, and print the root hash.

Unless --checkpoint=false, a checkpoint is also written,
so that seeding the file later does not require rehashing it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			log, err := c.newLogger(cmd)
			if err != nil {
				return err
			}

			cfg, err := c.treeConfig(args[0])
			if err != nil {
				return err
			}
			cfg.CheckHashes = c.config.GetBool(optionNameCheckHashes)

			t, err := swift.New(log, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := t.Close(); err == nil {
					err = cerr
				}
			}()

			if t.Size() == 0 {
				return fmt.Errorf("%s is empty", cfg.ContentPath)
			}

			if c.config.GetBool(optionNameCheckpoint) {
				if err := t.WriteCheckpointFile(); err != nil {
					return err
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), t.RootHash().Hex())
			fmt.Fprintf(
				cmd.ErrOrStderr(),
				"%s in %s chunks of %s\n",
				humanize.IBytes(t.Size()),
				humanize.Comma(int64(t.ChunkCount())),
				humanize.IBytes(t.ChunkSize()),
			)

			return c.printMetrics(cmd)
		},
	}

	cmd.Flags().Bool(optionNameCheckHashes, false, "rehash the content even if a checkpoint exists")
	cmd.Flags().Bool(optionNameCheckpoint, true, "write a checkpoint after hashing")

	c.root.AddCommand(cmd)
}
