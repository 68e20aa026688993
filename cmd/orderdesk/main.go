// Command orderdesk runs the order desk: the web service, schema creation,
// a table view of orders, and copying orders between backends.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
