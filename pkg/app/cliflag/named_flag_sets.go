// Package cliflag provides grouped flag sets for command-line applications.
package cliflag

import (
	"github.com/spf13/pflag"
)

// NamedFlagSets stores named flag sets in the order they were added.
type NamedFlagSets struct {
	// Order is an ordered list of flag set names.
	Order []string

	// FlagSets stores the flag sets by name.
	FlagSets map[string]*pflag.FlagSet
}

// FlagSet returns the flag set with the given name, creating it if needed.
func (nfs *NamedFlagSets) FlagSet(name string) *pflag.FlagSet {
	if nfs.FlagSets == nil {
		nfs.FlagSets = map[string]*pflag.FlagSet{}
	}
	if _, ok := nfs.FlagSets[name]; !ok {
		nfs.FlagSets[name] = pflag.NewFlagSet(name, pflag.ExitOnError)
		nfs.Order = append(nfs.Order, name)
	}
	return nfs.FlagSets[name]
}
