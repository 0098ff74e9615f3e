package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret("  "))
	assert.Equal(t, "****", MaskSecret("abc"))
	assert.Equal(t, "****wxyz", MaskSecret("abcdefwxyz"))
}

func TestMaskSensitive(t *testing.T) {
	out := MaskSensitive(map[string]any{
		"email": "ada@example.com",
		"token": "tok_0123456789",
		"nested": map[string]any{
			"Secret": "hunter22",
			"role":   "MEMBER",
		},
		" ": "dropped",
	})

	assert.Equal(t, "ada@example.com", out["email"])
	assert.Equal(t, "****6789", out["token"])
	nested := out["nested"].(map[string]any)
	assert.Equal(t, "****er22", nested["Secret"])
	assert.Equal(t, "MEMBER", nested["role"])
	assert.NotContains(t, out, " ")
	assert.Nil(t, MaskSensitive(nil))
}
