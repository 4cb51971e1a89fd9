// Command swifthash builds and checks the hash trees
// that peers use to verify content chunk by chunk.
package main

import (
	"fmt"
	"os"

	"github.com/gordian-engine/swift/cmd/swifthash/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
