package formats

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/marmos91/emingest/pkg/volume"
	"github.com/marmos91/emingest/pkg/volume/mrc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()

	assert.Equal(t, []volume.Format{volume.FormatDM3, volume.FormatMRC, volume.FormatSER}, reg.Formats())

	for path, want := range map[string]volume.Format{
		"a.mrc": volume.FormatMRC,
		"a.MAP": volume.FormatMRC,
		"b.dm3": volume.FormatDM3,
		"c.ser": volume.FormatSER,
	} {
		got, err := reg.FormatForPath(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}
	assert.False(t, reg.Supports("d.tiff"))
}

func TestNewRegistry_DecodesSingleSectionMRCAs2D(t *testing.T) {
	reg := NewRegistry()
	path := filepath.Join(t.TempDir(), "one.mrc")
	require.NoError(t, mrc.WriteFile(path, volume.New(volume.Float32, 1, 6, 7)))

	vol, format, err := reg.DecodeFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, volume.FormatMRC, format)
	assert.Equal(t, []int{6, 7}, vol.Shape)
}
