// Command gixflow is a NetFlow v9/IPFIX collector with ASN enrichment.
package main

import (
	"os"

	"gixflow/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:]))
}
