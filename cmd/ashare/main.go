package main

import (
	// Embedded zone data so Asia/Shanghai resolves on hosts without tzdata.
	_ "time/tzdata"

	"github.com/rustyeddy/ashare/internal/cli"
)

func main() {
	cli.Execute()
}
