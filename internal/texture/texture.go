// Package texture copies lens textures into the OBS asset tree, converting
// formats OBS cannot load.
package texture

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/image/webp"
)

// Dir is the texture directory name, both in the lens and under obs_assets.
const Dir = "textures"

// ErrCodecUnavailable means the image could not be converted and is copied as-is.
var ErrCodecUnavailable = errors.New("image codec unavailable")

// Extensions are the recognized texture extensions (compared lower-case).
var Extensions = []string{".png", ".jpg", ".jpeg", ".webp"}

// Codec converts one image format into one OBS can load.
type Codec interface {
	// Ext is the output extension, including the dot.
	Ext() string
	// Convert reads the source image and writes the converted image.
	// Failures that should fall back to a raw copy wrap ErrCodecUnavailable.
	Convert(dst io.Writer, src io.Reader) error
}

// WebPCodec decodes webp with golang.org/x/image/webp and encodes png.
type WebPCodec struct{}

func (WebPCodec) Ext() string { return ".png" }

func (WebPCodec) Convert(dst io.Writer, src io.Reader) error {
	img, err := webp.Decode(src)
	if err != nil {
		return fmt.Errorf("%w: webp: %v", ErrCodecUnavailable, err)
	}
	return encodePNG(dst, img)
}

func encodePNG(dst io.Writer, img image.Image) error {
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	return enc.Encode(dst, img)
}

// Converter copies textures. Codecs maps a lower-case source extension to
// the codec used for it; extensions without a codec are copied verbatim.
type Converter struct {
	Codecs map[string]Codec
	Log    *zap.Logger
}

// NewConverter returns a converter with the webp codec installed.
func NewConverter(log *zap.Logger) *Converter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Converter{
		Codecs: map[string]Codec{".webp": WebPCodec{}},
		Log:    log,
	}
}

// Recognized reports whether name has a texture extension.
func Recognized(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Convert processes root/textures into outDir/textures and returns the
// produced file names. A missing textures directory yields no files and no
// error. Subdirectories are not visited.
func (c *Converter) Convert(root, outDir string) ([]string, error) {
	srcDir := filepath.Join(root, Dir)
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", srcDir, err)
	}

	dstDir := filepath.Join(outDir, Dir)
	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dstDir, err)
	}

	// reserved holds every output name in use, keyed case-insensitively.
	reserved := map[string]bool{}
	for _, entry := range entries {
		if !entry.IsDir() && Recognized(entry.Name()) {
			reserved[strings.ToLower(entry.Name())] = true
		}
	}

	var produced []string
	for _, entry := range entries {
		if entry.IsDir() || !Recognized(entry.Name()) {
			continue
		}
		name, err := c.convertFile(filepath.Join(srcDir, entry.Name()), dstDir, reserved)
		if err != nil {
			return produced, err
		}
		produced = append(produced, name)
	}
	return produced, nil
}

// convertFile converts or copies a single texture and returns the output name.
// A converted name already in reserved keeps the original file instead.
func (c *Converter) convertFile(srcPath, dstDir string, reserved map[string]bool) (string, error) {
	name := filepath.Base(srcPath)
	ext := strings.ToLower(filepath.Ext(name))

	if codec, ok := c.Codecs[ext]; ok && codec != nil {
		outName := strings.TrimSuffix(name, filepath.Ext(name)) + codec.Ext()
		if key := strings.ToLower(outName); key != strings.ToLower(name) && reserved[key] {
			c.Log.Warn("converted texture name already in use, copying original",
				zap.String("texture", name), zap.String("conflict", outName))
		} else {
			err := convertWith(codec, srcPath, filepath.Join(dstDir, outName))
			if err == nil {
				reserved[key] = true
				c.Log.Info("converted texture", zap.String("from", name), zap.String("to", outName))
				return outName, nil
			}
			if !errors.Is(err, ErrCodecUnavailable) {
				return "", fmt.Errorf("failed to convert %s: %w", name, err)
			}
			c.Log.Warn("texture conversion unavailable, copying original", zap.String("texture", name), zap.Error(err))
		}
	}

	if err := copyFile(srcPath, filepath.Join(dstDir, name)); err != nil {
		return "", fmt.Errorf("failed to copy %s: %w", name, err)
	}
	return name, nil
}

// convertWith runs the codec, removing partial output on failure.
func convertWith(codec Codec, srcPath, dstPath string) error {
	in, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	if err := codec.Convert(out, in); err != nil {
		out.Close()
		os.Remove(dstPath)
		return err
	}
	return out.Close()
}

// copyFile copies bytes and the source modification time.
func copyFile(srcPath, dstPath string) error {
	in, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dstPath, info.ModTime(), info.ModTime())
}
