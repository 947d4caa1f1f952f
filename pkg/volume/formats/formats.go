// Package formats wires the built-in decoders into a volume.Registry.
package formats

import (
	"github.com/marmos91/emingest/pkg/volume"
	"github.com/marmos91/emingest/pkg/volume/dm3"
	"github.com/marmos91/emingest/pkg/volume/mrc"
	"github.com/marmos91/emingest/pkg/volume/ser"
)

// NewRegistry returns a registry with MRC, DM3 and SER decoders installed.
func NewRegistry() *volume.Registry {
	reg := volume.NewRegistry()
	reg.Register(volume.FormatMRC, mrc.Decoder{}, mrc.Extensions...)
	reg.Register(volume.FormatDM3, dm3.Decoder{}, dm3.Extensions...)
	reg.Register(volume.FormatSER, ser.Decoder{}, ser.Extensions...)
	return reg
}
