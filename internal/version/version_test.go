package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfoString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		info Info
		want string
	}{
		{name: "dev", info: Info{Version: "dev"}, want: "dev"},
		{name: "short hash", info: Info{Version: "v1.0.0", Commit: "abc"}, want: "v1.0.0 (abc)"},
		{name: "long hash", info: Info{Version: "v1.0.0", Commit: "0123456789abcdef"}, want: "v1.0.0 (0123456)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.info.String())
		})
	}
}

func TestGetUsesVersion(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Version, Get().Version)
}
