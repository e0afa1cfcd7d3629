// Package metadata resolves the lens.json descriptor of an extracted lens.
package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// DescriptorFile is the descriptor name looked up at the extraction root.
const DescriptorFile = "lens.json"

// Field defaults.
const (
	DefaultName     = "Unknown"
	DefaultVersion  = "1.0"
	DefaultAuthor   = "Unknown"
	DefaultCategory = "general"
)

// ErrMalformedDescriptor wraps any failure to read or decode lens.json.
var ErrMalformedDescriptor = errors.New("malformed lens descriptor")

// Metadata is the canonical description of a lens.
type Metadata struct {
	Name         string `json:"name" yaml:"name"`
	Description  string `json:"description" yaml:"description"`
	Version      string `json:"version" yaml:"version"`
	Author       string `json:"author" yaml:"author"`
	Category     string `json:"category" yaml:"category"`
	FaceTracking bool   `json:"face_tracking" yaml:"face_tracking"`
	UsesAudio    bool   `json:"uses_audio" yaml:"uses_audio"`
	Uses3D       bool   `json:"uses_3d" yaml:"uses_3d"`
}

// Default returns a Metadata record with every field at its default.
func Default() Metadata {
	return Metadata{
		Name:     DefaultName,
		Version:  DefaultVersion,
		Author:   DefaultAuthor,
		Category: DefaultCategory,
	}
}

// descriptor mirrors lens.json; nil means absent or null.
type descriptor struct {
	Name         *string `json:"name"`
	Description  *string `json:"description"`
	Version      *string `json:"version"`
	Author       *string `json:"author"`
	Category     *string `json:"category"`
	FaceTracking *bool   `json:"face_tracking"`
	UsesAudio    *bool   `json:"uses_audio"`
	Uses3D       *bool   `json:"uses_3d"`
}

// Parse decodes a descriptor, applying defaults to absent fields.
// Unknown keys are ignored. A value of the wrong JSON type is an error;
// no coercion is attempted. The top level must be a JSON object.
func Parse(data []byte) (Metadata, error) {
	var d *descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrMalformedDescriptor, err)
	}
	if d == nil {
		return Metadata{}, fmt.Errorf("%w: descriptor is not an object", ErrMalformedDescriptor)
	}

	m := Default()
	setString(&m.Name, d.Name)
	setString(&m.Description, d.Description)
	setString(&m.Version, d.Version)
	setString(&m.Author, d.Author)
	setString(&m.Category, d.Category)
	setBool(&m.FaceTracking, d.FaceTracking)
	setBool(&m.UsesAudio, d.UsesAudio)
	setBool(&m.Uses3D, d.Uses3D)
	return m, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// Load reads and parses root/lens.json. A missing file returns
// os.ErrNotExist; anything else that goes wrong wraps ErrMalformedDescriptor.
func Load(root string) (Metadata, error) {
	data, err := os.ReadFile(filepath.Join(root, DescriptorFile))
	if err != nil {
		if os.IsNotExist(err) {
			return Metadata{}, err
		}
		return Metadata{}, fmt.Errorf("%w: %v", ErrMalformedDescriptor, err)
	}
	return Parse(data)
}

// Fallback is the metadata used when no usable descriptor exists.
func Fallback(root string) Metadata {
	m := Default()
	m.Name = filepath.Base(filepath.Clean(root))
	return m
}

// Resolve never fails: it returns the parsed descriptor, or Fallback(root)
// when the descriptor is absent or malformed.
func Resolve(root string, log *zap.Logger) Metadata {
	if log == nil {
		log = zap.NewNop()
	}
	m, err := Load(root)
	switch {
	case err == nil:
		return m
	case os.IsNotExist(err):
		log.Debug("no lens descriptor, using directory name", zap.String("root", root))
	default:
		log.Warn("ignoring lens descriptor", zap.String("root", root), zap.Error(err))
	}
	return Fallback(root)
}
