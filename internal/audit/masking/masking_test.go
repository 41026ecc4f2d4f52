package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSensitive(t *testing.T) {
	out := MaskSensitive(map[string]any{
		"destination": "acct_1PqRstUvWx",
		"reason":      "manual release",
		"nested":      map[string]any{"connected_account_id": "acct_12"},
	})

	assert.Equal(t, "acct_****UvWx", out["destination"])
	assert.Equal(t, "manual release", out["reason"])
	assert.Equal(t, "acct_****", out["nested"].(map[string]any)["connected_account_id"])
	assert.Nil(t, MaskSensitive(nil))
}
