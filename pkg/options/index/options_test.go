package index

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Options) {}},
		{
			name:    "unknown backend",
			mutate:  func(o *Options) { o.Backend = "ivf" },
			wantErr: true,
		},
		{
			name: "all dimensions disabled",
			mutate: func(o *Options) {
				o.TextDim, o.ImageDim, o.AudioDim = 0, 0, 0
			},
			wantErr: true,
		},
		{
			name: "audio disabled only",
			mutate: func(o *Options) {
				o.AudioDim = 0
			},
		},
		{name: "hnsw defaults", mutate: func(o *Options) { o.Backend = "hnsw" }},
		{
			name: "hnsw m too small",
			mutate: func(o *Options) {
				o.Backend = "hnsw"
				o.HNSWM = 1
			},
			wantErr: true,
		},
		{
			name: "hnsw ef-construction below m",
			mutate: func(o *Options) {
				o.Backend = "hnsw"
				o.HNSWEfConstruction = 4
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOptions()
			tt.mutate(o)
			err := o.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAddFlags(t *testing.T) {
	o := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.AddFlags(fs)

	require.NoError(t, fs.Parse([]string{
		"--index.backend=hnsw",
		"--index.hnsw-ef-search=64",
	}))
	assert.Equal(t, "hnsw", o.Backend)
	assert.Equal(t, 64, o.HNSWEfSearch)
	assert.NoError(t, o.Validate())
}
