package texture

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTextures(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, Dir)
	require.NoError(t, os.MkdirAll(dir, 0755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return root
}

// upperCodec stands in for a real image codec.
type upperCodec struct{}

func (upperCodec) Ext() string { return ".png" }

func (upperCodec) Convert(dst io.Writer, src io.Reader) error {
	data, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	_, err = dst.Write([]byte(strings.ToUpper(string(data))))
	return err
}

type brokenCodec struct{ err error }

func (brokenCodec) Ext() string { return ".png" }

func (b brokenCodec) Convert(io.Writer, io.Reader) error { return b.err }

func TestConvert_CopiesRecognizedAndSkipsOthers(t *testing.T) {
	root := writeTextures(t, map[string]string{
		"a.png":     "png",
		"b.JPG":     "jpg",
		"c.jpeg":    "jpeg",
		"notes.txt": "skip",
		"d.tga":     "skip",
	})
	require.NoError(t, os.MkdirAll(filepath.Join(root, Dir, "nested"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, Dir, "nested", "e.png"), []byte("nested"), 0644))

	out := t.TempDir()
	produced, err := NewConverter(nil).Convert(root, out)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.png", "b.JPG", "c.jpeg"}, produced)

	data, err := os.ReadFile(filepath.Join(out, Dir, "a.png"))
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))

	_, err = os.Stat(filepath.Join(out, Dir, "notes.txt"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(out, Dir, "nested"))
	assert.True(t, os.IsNotExist(err))
}

func TestConvert_NoTexturesDir(t *testing.T) {
	out := t.TempDir()
	produced, err := NewConverter(nil).Convert(t.TempDir(), out)
	require.NoError(t, err)
	assert.Empty(t, produced)
	_, err = os.Stat(filepath.Join(out, Dir))
	assert.True(t, os.IsNotExist(err))
}

func TestConvert_WebPThroughCodec(t *testing.T) {
	root := writeTextures(t, map[string]string{"sky.WEBP": "webp"})
	c := NewConverter(nil)
	c.Codecs[".webp"] = upperCodec{}

	out := t.TempDir()
	produced, err := c.Convert(root, out)
	require.NoError(t, err)
	assert.Equal(t, []string{"sky.png"}, produced)

	data, err := os.ReadFile(filepath.Join(out, Dir, "sky.png"))
	require.NoError(t, err)
	assert.Equal(t, "WEBP", string(data))
}

func TestConvert_ConvertedNameCollision(t *testing.T) {
	root := writeTextures(t, map[string]string{
		"a.png":  "png",
		"a.webp": "webp",
		"b.webp": "webp",
	})
	c := NewConverter(nil)
	c.Codecs[".webp"] = upperCodec{}

	out := t.TempDir()
	produced, err := c.Convert(root, out)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.png", "a.webp", "b.png"}, produced)

	data, err := os.ReadFile(filepath.Join(out, Dir, "a.png"))
	require.NoError(t, err)
	assert.Equal(t, "png", string(data), "the original png is not overwritten")

	data, err = os.ReadFile(filepath.Join(out, Dir, "a.webp"))
	require.NoError(t, err)
	assert.Equal(t, "webp", string(data))
}

func TestConvert_UndecodableWebPFallsBackToCopy(t *testing.T) {
	root := writeTextures(t, map[string]string{"sky.webp": "definitely not a webp"})

	out := t.TempDir()
	produced, err := NewConverter(nil).Convert(root, out)
	require.NoError(t, err)
	assert.Equal(t, []string{"sky.webp"}, produced)

	data, err := os.ReadFile(filepath.Join(out, Dir, "sky.webp"))
	require.NoError(t, err)
	assert.Equal(t, "definitely not a webp", string(data))

	_, err = os.Stat(filepath.Join(out, Dir, "sky.png"))
	assert.True(t, os.IsNotExist(err), "partial png should be removed")
}

func TestConvert_MissingCodecCopies(t *testing.T) {
	root := writeTextures(t, map[string]string{"sky.webp": "raw"})
	c := NewConverter(nil)
	delete(c.Codecs, ".webp")

	out := t.TempDir()
	produced, err := c.Convert(root, out)
	require.NoError(t, err)
	assert.Equal(t, []string{"sky.webp"}, produced)
}

func TestConvert_CodecHardFailureAborts(t *testing.T) {
	root := writeTextures(t, map[string]string{"sky.webp": "raw"})
	c := NewConverter(nil)
	c.Codecs[".webp"] = brokenCodec{err: errors.New("disk full")}

	_, err := c.Convert(root, t.TempDir())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCodecUnavailable))
}

func TestRecognized(t *testing.T) {
	assert.True(t, Recognized("a.PNG"))
	assert.True(t, Recognized("a.jpeg"))
	assert.True(t, Recognized("a.webp"))
	assert.False(t, Recognized("a.gif"))
	assert.False(t, Recognized("png"))
}
