// Command keyforge runs the API key issuance and validation service.
package main

import "github.com/keyforge/keyforge/cmd/keyforge/cmd"

func main() {
	cmd.Execute()
}
