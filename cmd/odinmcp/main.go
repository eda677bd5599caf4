// Command odinmcp runs the OdinMCP server tiers: the stateless HTTP
// frontend (serve) and the asynchronous worker plane (work).
package main

import "github.com/theNullP0inter/odinmcp/cmd/odinmcp/cmd"

func main() {
	cmd.Execute()
}
