// Package main is the entry point of the Lumen retrieval service.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/lumenkb/lumen/cmd/lumen-retrieval/app"
)

func main() {
	app.NewApp().Run()
}
