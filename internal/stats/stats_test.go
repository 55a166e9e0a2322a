package stats

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersSnapshot(t *testing.T) {
	s := New()

	s.RecordGet(true)
	s.RecordGet(false)
	s.RecordGet(true)
	s.RecordSet()
	s.RecordRemove()
	s.RecordError()
	s.RecordExpiration()
	s.RecordCorruptRead()
	s.RecordEvent()
	s.RecordEvent()
	s.RecordListenerPanic()
	s.RecordExternalChange()

	snap := s.Snapshot()
	assert.Equal(t, int64(3), snap.SlotGets)
	assert.Equal(t, int64(2), snap.SlotHits)
	assert.Equal(t, int64(1), snap.SlotMisses)
	assert.Equal(t, int64(1), snap.SlotSets)
	assert.Equal(t, int64(1), snap.SlotRemoves)
	assert.Equal(t, int64(1), snap.SlotErrors)
	assert.Equal(t, int64(1), snap.Expirations)
	assert.Equal(t, int64(1), snap.CorruptReads)
	assert.Equal(t, int64(2), snap.EventsEmitted)
	assert.Equal(t, int64(1), snap.ListenerPanics)
	assert.Equal(t, int64(1), snap.ExternalChanges)
}

func TestLatencyAverage(t *testing.T) {
	s := New()

	s.RecordLatency("get", 10*time.Millisecond)
	s.RecordLatency("get", 30*time.Millisecond)
	s.RecordLatency("set", 5*time.Millisecond)

	snap := s.Snapshot()
	assert.Equal(t, 20*time.Millisecond, snap.LatencyByOp["get"])
	assert.Equal(t, 5*time.Millisecond, snap.LatencyByOp["set"])
}

func TestLatencyRingWraps(t *testing.T) {
	s := New()

	for i := 0; i < latencySamples*2; i++ {
		s.RecordLatency("get", time.Millisecond)
	}

	assert.Equal(t, time.Millisecond, s.Snapshot().LatencyByOp["get"])
}

func TestConcurrentRecording(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.RecordSet()
				s.RecordLatency("set", time.Microsecond)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1000), s.Snapshot().SlotSets)
}

func TestWritePrometheus(t *testing.T) {
	s := New()
	s.RecordGet(true)
	s.RecordSet()
	s.RecordLatency("set", 2*time.Millisecond)

	var buf bytes.Buffer
	require.NoError(t, s.WritePrometheus(&buf))

	out := buf.String()
	assert.Contains(t, out, "# TYPE slotcache_slot_gets_total counter")
	assert.Contains(t, out, "slotcache_slot_gets_total 1")
	assert.Contains(t, out, "slotcache_slot_sets_total 1")
	assert.Contains(t, out, `slotcache_slot_latency_seconds{op="set"} 0.002`)
}
