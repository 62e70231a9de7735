// The main package for the progress executable.
package main

import (
	"github.com/JakeFAU/game-progress/cmd"
)

func main() {
	cmd.Execute()
}
