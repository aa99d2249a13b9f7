package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanBlocksExecutables(t *testing.T) {
	s := NewBasicScanner()

	res, err := s.ScanForThreats(File{Name: "invoice.EXE", Size: 1024, Mime: "application/x-msdownload"})
	require.NoError(t, err)
	assert.False(t, res.Safe)
	assert.NotEmpty(t, res.Threats)
}

func TestScanBlocksOversizedFiles(t *testing.T) {
	s := NewBasicScanner()

	res, err := s.ScanForThreats(File{Name: "video.mp4", Size: maxFileSize + 1, Mime: "video/mp4"})
	require.NoError(t, err)
	assert.False(t, res.Safe)
}

func TestScanAllowsOrdinaryMedia(t *testing.T) {
	s := NewBasicScanner()

	res, err := s.ScanForThreats(File{Name: "photo.jpg", Size: 2 << 20, Mime: "image/jpeg"})
	require.NoError(t, err)
	assert.True(t, res.Safe)
	assert.Empty(t, res.Threats)
}

func TestModerationFlagsUnidentifiableContent(t *testing.T) {
	s := NewBasicScanner()

	res, err := s.ModerateContent(File{Name: "blob", Size: 10, Mime: "application/octet-stream"})
	require.NoError(t, err)
	assert.False(t, res.Safe)

	res, err = s.ModerateContent(File{Name: "doc.pdf", Size: 10, Mime: "application/pdf"})
	require.NoError(t, err)
	assert.True(t, res.Safe)
}
