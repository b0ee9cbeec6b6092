package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShort(t *testing.T) {
	for _, tc := range []struct {
		info Info
		want string
	}{
		{Info{Version: "v1.2.0", Commit: "abc"}, "v1.2.0"},
		{Info{Version: "dev", Commit: "0123456789abcdef"}, "0123456789ab"},
		{Info{Version: "dev", Commit: "0123456789abcdef", Modified: true}, "0123456789ab+dirty"},
		{Info{Version: "dev"}, "dev"},
		{Info{}, "dev"},
	} {
		assert.Equal(t, tc.want, tc.info.Short(), "%+v", tc.info)
	}
}
