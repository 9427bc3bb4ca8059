package envelope

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidex/oci/internal/errors"
)

func TestSuccessShape(t *testing.T) {
	env := Success("index", map[string]interface{}{"files": 3, "symbols": 10})
	text, err := EncodeCompact(env)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text), &decoded))
	assert.Equal(t, true, decoded["ok"])
	assert.Equal(t, "index", decoded["type"])
	assert.Equal(t, float64(3), decoded["files"])
}

func TestSuccessPayloadCannotShadowEnvelope(t *testing.T) {
	env := Success("search", map[string]interface{}{"ok": false, "type": "bogus"})
	assert.Equal(t, true, env["ok"])
	assert.Equal(t, "search", env["type"])
}

func TestErrorShape(t *testing.T) {
	env := Error(errors.InvalidQuery("query must include at least one search term"))
	text, err := EncodeCompact(env)
	require.NoError(t, err)

	var decoded struct {
		OK    bool `json:"ok"`
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &decoded))
	assert.False(t, decoded.OK)
	assert.Equal(t, "invalid_query", decoded.Error.Code)
	assert.NotEmpty(t, decoded.Error.Message)
}

func TestErrorDefaultsToInternal(t *testing.T) {
	env := Error(assert.AnError)
	info := env["error"].(ErrorInfo)
	assert.Equal(t, "internal", info.Code)
}

func TestEncodingDeterministic(t *testing.T) {
	payload := map[string]interface{}{"zeta": 1, "alpha": 2, "mid": 3}
	first, err := EncodeCompact(Success("x", payload))
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := EncodeCompact(Success("x", payload))
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	// encoding/json sorts map keys, so field order is stable.
	assert.Less(t, strings.Index(first, `"alpha"`), strings.Index(first, `"zeta"`))
}
