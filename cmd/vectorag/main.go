// Package main is the entry point for the vectorag retrieval service.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/vectorag/cmd/vectorag/app"
)

func main() {
	app.NewApp().Run()
}
