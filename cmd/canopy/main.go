package main

import cmd "github.com/rohmanhakim/canopy-go/internal/cli"

func main() {
	cmd.Execute()
}
