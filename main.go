package main

import (
	"github.com/ColonelBlimp/voxctl/cmd"
	"github.com/ColonelBlimp/voxctl/internal/recovery"
)

func main() {
	defer recovery.HandlePanic()
	cmd.Execute()
}
