package stats

import (
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

var Version = "0.1.0"
var Commit = "HEAD"
var BuildDate = "now"

const metricPrefix = "slotcache_"

// Snapshot represents a point-in-time snapshot of all counters
type Snapshot struct {
	SlotGets        int64
	SlotSets        int64
	SlotRemoves     int64
	SlotHits        int64
	SlotMisses      int64
	SlotErrors      int64
	Expirations     int64
	CorruptReads    int64
	EventsEmitted   int64
	ListenerPanics  int64
	ExternalChanges int64
	LatencyByOp     map[string]time.Duration
	Uptime          time.Duration
}

// Stats tracks cache activity with atomic counters so the slot decorator,
// the store and any change-source goroutine can update it without locking.
type Stats struct {
	slotGets        int64
	slotSets        int64
	slotRemoves     int64
	slotHits        int64
	slotMisses      int64
	slotErrors      int64
	expirations     int64
	corruptReads    int64
	eventsEmitted   int64
	listenerPanics  int64
	externalChanges int64

	startTime time.Time

	latencyMu   sync.RWMutex
	latencyByOp map[string]*ringBuffer
}

// ringBuffer is a lock-free circular buffer for latency samples
type ringBuffer struct {
	data   []int64
	size   int
	pos    int64 // atomic position
	filled int64 // atomic filled indicator
}

func newRingBuffer(size int) *ringBuffer {
	return &ringBuffer{
		data: make([]int64, size),
		size: size,
	}
}

func (rb *ringBuffer) add(value time.Duration) {
	pos := atomic.AddInt64(&rb.pos, 1) % int64(rb.size)
	atomic.StoreInt64(&rb.data[pos], int64(value))

	if pos == 0 {
		atomic.StoreInt64(&rb.filled, 1)
	}
}

func (rb *ringBuffer) average() time.Duration {
	count := rb.size
	if atomic.LoadInt64(&rb.filled) == 0 {
		// slots 1..pos are populated before the first wrap
		count = int(atomic.LoadInt64(&rb.pos))
	}
	if count == 0 {
		return 0
	}

	var sum int64
	if count == rb.size {
		for i := range rb.data {
			sum += atomic.LoadInt64(&rb.data[i])
		}
	} else {
		for i := 1; i <= count; i++ {
			sum += atomic.LoadInt64(&rb.data[i])
		}
	}
	return time.Duration(sum / int64(count))
}

const latencySamples = 128

// New creates an empty Stats
func New() *Stats {
	return &Stats{
		startTime:   time.Now(),
		latencyByOp: make(map[string]*ringBuffer),
	}
}

// RecordGet counts one slot read and whether the key was present
func (s *Stats) RecordGet(hit bool) {
	atomic.AddInt64(&s.slotGets, 1)
	if hit {
		atomic.AddInt64(&s.slotHits, 1)
	} else {
		atomic.AddInt64(&s.slotMisses, 1)
	}
}

func (s *Stats) RecordSet()    { atomic.AddInt64(&s.slotSets, 1) }
func (s *Stats) RecordRemove() { atomic.AddInt64(&s.slotRemoves, 1) }
func (s *Stats) RecordError()  { atomic.AddInt64(&s.slotErrors, 1) }

func (s *Stats) RecordExpiration()     { atomic.AddInt64(&s.expirations, 1) }
func (s *Stats) RecordCorruptRead()    { atomic.AddInt64(&s.corruptReads, 1) }
func (s *Stats) RecordEvent()          { atomic.AddInt64(&s.eventsEmitted, 1) }
func (s *Stats) RecordListenerPanic()  { atomic.AddInt64(&s.listenerPanics, 1) }
func (s *Stats) RecordExternalChange() { atomic.AddInt64(&s.externalChanges, 1) }

// RecordLatency adds a latency sample for the named slot operation
func (s *Stats) RecordLatency(op string, d time.Duration) {
	s.latencyMu.RLock()
	rb, ok := s.latencyByOp[op]
	s.latencyMu.RUnlock()

	if !ok {
		s.latencyMu.Lock()
		if rb, ok = s.latencyByOp[op]; !ok {
			rb = newRingBuffer(latencySamples)
			s.latencyByOp[op] = rb
		}
		s.latencyMu.Unlock()
	}
	rb.add(d)
}

// Snapshot returns the current counters
func (s *Stats) Snapshot() Snapshot {
	snap := Snapshot{
		SlotGets:        atomic.LoadInt64(&s.slotGets),
		SlotSets:        atomic.LoadInt64(&s.slotSets),
		SlotRemoves:     atomic.LoadInt64(&s.slotRemoves),
		SlotHits:        atomic.LoadInt64(&s.slotHits),
		SlotMisses:      atomic.LoadInt64(&s.slotMisses),
		SlotErrors:      atomic.LoadInt64(&s.slotErrors),
		Expirations:     atomic.LoadInt64(&s.expirations),
		CorruptReads:    atomic.LoadInt64(&s.corruptReads),
		EventsEmitted:   atomic.LoadInt64(&s.eventsEmitted),
		ListenerPanics:  atomic.LoadInt64(&s.listenerPanics),
		ExternalChanges: atomic.LoadInt64(&s.externalChanges),
		LatencyByOp:     make(map[string]time.Duration),
		Uptime:          time.Since(s.startTime),
	}

	s.latencyMu.RLock()
	for op, rb := range s.latencyByOp {
		snap.LatencyByOp[op] = rb.average()
	}
	s.latencyMu.RUnlock()

	return snap
}

// WritePrometheus renders the counters in the Prometheus text exposition format
func (s *Stats) WritePrometheus(w io.Writer) error {
	for _, mf := range s.families() {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stats) families() []*dto.MetricFamily {
	snap := s.Snapshot()

	families := []*dto.MetricFamily{
		counter("slot_gets_total", "Reads issued to the backing slot.", snap.SlotGets),
		counter("slot_sets_total", "Writes issued to the backing slot.", snap.SlotSets),
		counter("slot_removes_total", "Removals issued to the backing slot.", snap.SlotRemoves),
		counter("slot_hits_total", "Slot reads that found the key.", snap.SlotHits),
		counter("slot_misses_total", "Slot reads that found no value.", snap.SlotMisses),
		counter("slot_errors_total", "Slot operations that failed.", snap.SlotErrors),
		counter("expirations_total", "Payloads cleared because their TTL elapsed.", snap.Expirations),
		counter("corrupt_reads_total", "Reads that found non-JSON text under the key.", snap.CorruptReads),
		counter("events_emitted_total", "Events dispatched to listeners.", snap.EventsEmitted),
		counter("listener_panics_total", "Listener invocations that panicked.", snap.ListenerPanics),
		counter("external_changes_total", "Changes to the key observed from other contexts.", snap.ExternalChanges),
	}

	if len(snap.LatencyByOp) > 0 {
		ops := make([]string, 0, len(snap.LatencyByOp))
		for op := range snap.LatencyByOp {
			ops = append(ops, op)
		}
		sort.Strings(ops)

		latency := &dto.MetricFamily{
			Name: proto.String(metricPrefix + "slot_latency_seconds"),
			Help: proto.String("Average latency of recent slot operations."),
			Type: dto.MetricType_GAUGE.Enum(),
		}
		for _, op := range ops {
			latency.Metric = append(latency.Metric, &dto.Metric{
				Label: []*dto.LabelPair{{Name: proto.String("op"), Value: proto.String(op)}},
				Gauge: &dto.Gauge{Value: proto.Float64(snap.LatencyByOp[op].Seconds())},
			})
		}
		families = append(families, latency)
	}

	return families
}

func counter(name, help string, value int64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(metricPrefix + name),
		Help: proto.String(help),
		Type: dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{
			Counter: &dto.Counter{Value: proto.Float64(float64(value))},
		}},
	}
}
