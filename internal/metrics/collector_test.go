package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRouterCollector(t *testing.T) {
	rc := NewRouterCollector()

	rc.RecordRequest(false, 2*time.Millisecond)
	rc.RecordRequest(true, 1*time.Millisecond)
	rc.RecordHandshake(true)
	rc.RecordHandshake(false)
	rc.RecordCommand(true)
	rc.RecordCommand(false)

	snap := rc.Snapshot()
	assert.Equal(t, int64(2), snap.RequestsHandled)
	assert.Equal(t, int64(1), snap.RequestsRejected)
	assert.Equal(t, int64(1), snap.HandshakesCompleted)
	assert.Equal(t, int64(1), snap.HandshakesFailed)
	assert.Equal(t, int64(1), snap.CommandsDispatched)
	assert.Equal(t, int64(1), snap.CommandsFailed)
	assert.InDelta(t, 50.0, snap.RejectionRate(), 0.001)
	assert.InDelta(t, 50.0, snap.HandshakeSuccessRate(), 0.001)

	rc.Reset()
	snap = rc.Snapshot()
	assert.Equal(t, int64(0), snap.RequestsHandled)
	assert.Equal(t, float64(0), snap.RejectionRate())
}
