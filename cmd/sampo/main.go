// Command sampo plans and applies releases for polyglot monorepos.
package main

import "github.com/bruits/sampo/cmd"

func main() {
	cmd.Execute()
}
