package main

import (
	"github.com/SakaMax/nodule-ngs2/cmd"
)

func main() {
	cmd.Execute() // initialize cobra commands
}
