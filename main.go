package main

import (
	"github/fastauth/go-migrate/cmd"
)

func main() {
	cmd.Execute()
}
