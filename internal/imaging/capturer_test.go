package imaging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"redcube/internal/config"
)

func TestCapture_EmptyInputIsNoOp(t *testing.T) {
	c := NewCapturer(config.DefaultConfig().Imaging)
	defer c.Close()

	results, err := c.Capture(context.Background(), nil, t.TempDir())
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestPngName(t *testing.T) {
	require.Equal(t, "page_01.png", pngName("/out/page_01.html", 0))
	require.Equal(t, "cover.png", pngName("cover.html", 3))
	require.Equal(t, "page_05.png", pngName(".html", 4))
}

func TestDefaultImagingConfigMatchesCardFormat(t *testing.T) {
	cfg := config.DefaultConfig().Imaging
	require.Equal(t, 1242, cfg.ViewportWidth)
	require.Equal(t, 1660, cfg.ViewportHeight)
	require.Equal(t, 2.0, cfg.DeviceScale)
	require.Equal(t, ".page-to-screenshot", cfg.PageSelector)
}
