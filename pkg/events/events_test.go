package events

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionChannelFormat(t *testing.T) {
	assert.Equal(t, "execution:exec-123", ExecutionChannel("exec-123"))
}

func TestTruncateIfNeededPassesThroughSmallPayload(t *testing.T) {
	payload := []byte(`{"execution_id":"e1","status":"completed"}`)
	assert.Equal(t, string(payload), truncateIfNeeded(payload))
}

// TestTruncateIfNeededRewritesOversizedPayload covers the 8000-byte
// PostgreSQL NOTIFY ceiling: a payload exceeding the guard threshold must be
// replaced by a minimal routing-only envelope rather than sent verbatim
// (which pg_notify would reject outright).
func TestTruncateIfNeededRewritesOversizedPayload(t *testing.T) {
	oversized := []byte(`{"data":"` + strings.Repeat("x", notifyLimit+500) + `"}`)
	out := truncateIfNeeded(oversized)

	var envelope struct {
		Truncated bool `json:"truncated"`
		Size      int  `json:"size"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &envelope))
	assert.True(t, envelope.Truncated)
	assert.Equal(t, len(oversized), envelope.Size)
	assert.Less(t, len(out), len(oversized))
}

func TestTruncateIfNeededBoundaryIsInclusive(t *testing.T) {
	exact := []byte(strings.Repeat("a", notifyLimit))
	assert.Equal(t, string(exact), truncateIfNeeded(exact))

	oneOver := []byte(strings.Repeat("a", notifyLimit+1))
	assert.NotEqual(t, string(oneOver), truncateIfNeeded(oneOver))
}
