package main

import (
	"github.com/raidmeter/encounters/internal/cmd"
)

func main() {
	cmd.Execute()
}
