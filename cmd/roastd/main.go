package main

import "github.com/JakeFAU/roastd/cmd"

func main() {
	cmd.Execute()
}
