package app

import (
	"github.com/kart-io/vectorag/pkg/app/cliflag"
)

// CliOptions abstracts configuration options for reading parameters from the
// command line.
type CliOptions interface {
	// Flags returns flags grouped into named flag sets.
	Flags() cliflag.NamedFlagSets

	// Complete fills in any fields not set that are required to have valid data.
	Complete() error

	// Validate validates all the options, returning the first error found.
	Validate() error
}
