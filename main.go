// Command creator-discovery runs the creator discovery API and its tooling.
package main

import "github.com/JakeFAU/creator-discovery/cmd"

func main() {
	cmd.Execute()
}
