// The main package for the roastd executable.
package main

import "github.com/JakeFAU/roastd/cmd"

func main() {
	cmd.Execute()
}
