package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordStageAttemptIncrementsCounterAndHistogram(t *testing.T) {
	before := testutil.ToFloat64(StageAttemptsTotal.WithLabelValues("os_detect", "succeeded"))
	RecordStageAttempt("os_detect", "succeeded", 1.5)
	after := testutil.ToFloat64(StageAttemptsTotal.WithLabelValues("os_detect", "succeeded"))
	assert.Equal(t, before+1, after)
}

func TestRecordExecutionTerminalIncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(ExecutionsTotal.WithLabelValues("completed", ""))
	RecordExecutionTerminal("completed", "")
	after := testutil.ToFloat64(ExecutionsTotal.WithLabelValues("completed", ""))
	assert.Equal(t, before+1, after)
}

func TestRecordLLMUsageAddsInputAndOutputSeparately(t *testing.T) {
	beforeIn := testutil.ToFloat64(LLMTokensTotal.WithLabelValues("sigma_gen", "anthropic", "input"))
	beforeOut := testutil.ToFloat64(LLMTokensTotal.WithLabelValues("sigma_gen", "anthropic", "output"))

	RecordLLMUsage("sigma_gen", "anthropic", 100, 40)

	assert.Equal(t, beforeIn+100, testutil.ToFloat64(LLMTokensTotal.WithLabelValues("sigma_gen", "anthropic", "input")))
	assert.Equal(t, beforeOut+40, testutil.ToFloat64(LLMTokensTotal.WithLabelValues("sigma_gen", "anthropic", "output")))
}

func TestSetQueueDepthOverwritesGauge(t *testing.T) {
	SetQueueDepth(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(QueueDepth))
	SetQueueDepth(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(QueueDepth))
}
