package metadata

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	tests := []struct {
		name string
		json string
		want Metadata
	}{
		{
			name: "empty object",
			json: `{}`,
			want: Default(),
		},
		{
			name: "name and face tracking only",
			json: `{"name":"Glow","face_tracking":true}`,
			want: Metadata{
				Name:         "Glow",
				Version:      "1.0",
				Author:       "Unknown",
				Category:     "general",
				FaceTracking: true,
			},
		},
		{
			name: "null values take defaults",
			json: `{"name":null,"uses_3d":null,"author":"Ann"}`,
			want: Metadata{
				Name:     "Unknown",
				Version:  "1.0",
				Author:   "Ann",
				Category: "general",
			},
		},
		{
			name: "extra keys ignored",
			json: `{"name":"X","preview_image":"p.png","scripts":[1,2]}`,
			want: Metadata{
				Name:     "X",
				Version:  "1.0",
				Author:   "Unknown",
				Category: "general",
			},
		},
		{
			name: "full descriptor",
			json: `{"name":"Test Beauty Filter","description":"A simple beauty filter","version":"2.1",
				"author":"Test Author","category":"beauty","face_tracking":true,"uses_audio":true,"uses_3d":true}`,
			want: Metadata{
				Name:         "Test Beauty Filter",
				Description:  "A simple beauty filter",
				Version:      "2.1",
				Author:       "Test Author",
				Category:     "beauty",
				FaceTracking: true,
				UsesAudio:    true,
				Uses3D:       true,
			},
		},
		{
			name: "empty strings are kept",
			json: `{"name":"","version":""}`,
			want: Metadata{
				Author:   "Unknown",
				Category: "general",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.json))
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	for _, input := range []string{
		`{"name":`,
		`not json`,
		`[1,2,3]`,
		`{"face_tracking":"yes"}`,
		`{"face_tracking":1}`,
		`{"name":42}`,
		`null`,
		` null `,
		`"Glow"`,
		`42`,
		`true`,
	} {
		t.Run(input, func(t *testing.T) {
			_, err := Parse([]byte(input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedDescriptor))
		})
	}
}

func TestResolve_Descriptor(t *testing.T) {
	root := filepath.Join(t.TempDir(), "glow")
	require.NoError(t, os.MkdirAll(root, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, DescriptorFile), []byte(`{"name":"Glow","face_tracking":true}`), 0644))

	m := Resolve(root, nil)
	assert.Equal(t, "Glow", m.Name)
	assert.True(t, m.FaceTracking)
	assert.Equal(t, "general", m.Category)
}

func TestResolve_MissingDescriptorUsesDirName(t *testing.T) {
	root := filepath.Join(t.TempDir(), "my_lens")
	require.NoError(t, os.MkdirAll(root, 0755))

	m := Resolve(root, nil)
	want := Default()
	want.Name = "my_lens"
	assert.Equal(t, want, m)
}

func TestResolve_MalformedDescriptorFallsBack(t *testing.T) {
	root := filepath.Join(t.TempDir(), "broken")
	require.NoError(t, os.MkdirAll(root, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, DescriptorFile), []byte(`{"face_tracking":"true"}`), 0644))

	m := Resolve(root, nil)
	assert.Equal(t, "broken", m.Name)
	assert.False(t, m.FaceTracking)
}

func TestResolve_NullDescriptorFallsBack(t *testing.T) {
	root := filepath.Join(t.TempDir(), "my_lens")
	require.NoError(t, os.MkdirAll(root, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, DescriptorFile), []byte("null"), 0644))

	m := Resolve(root, nil)
	assert.Equal(t, Fallback(root), m)
	assert.Equal(t, "my_lens", m.Name)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.True(t, os.IsNotExist(err))
}
