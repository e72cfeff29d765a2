// Command annotext is the text library service: it stores articles and
// anchored comments and keeps a search index in step with them.
package main

import (
	"os"

	"github.com/custodia-labs/annotext/internal/adapters/driving/cli"
)

func main() {
	cli.SetBootstrap(bootstrap)
	os.Exit(cli.Execute())
}
