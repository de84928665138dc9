package metrics

import (
	"bytes"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateDiscardsSamplesOutsideWindow(t *testing.T) {
	c := NewCollector("run", false)
	c.Record(BLOCK_COMMITTED, 500, 0, 10) // warmup
	c.Record(BLOCK_COMMITTED, 1500, 0, 20)
	c.Record(BLOCK_COMMITTED, 2500, 0, 30)
	c.Record(BLOCK_COMMITTED, 3500, 0, 40) // after runtime
	c.Record(TX_COMMITTED, 1200, 1, 100)
	c.Record(TX_COMMITTED, 1300, 1, 300)
	c.Record(MESSAGE_SENT, 999, 0, 80)
	c.Record(MESSAGE_SENT, 1000, 0, 80)
	c.Record(MESSAGE_SENT, 3000, 0, 80)

	s := Aggregate(c, ChainSnapshot{}, Window{Start: 1000, End: 3000})
	assert.Equal(t, 2.0, s.CommittedBlocks)
	assert.InDelta(t, 25.0, s.Throughput, 1e-9) // 50 tx / 2 s
	assert.InDelta(t, 200.0, s.Latency, 1e-9)
	assert.Equal(t, 2.0, s.NumNetworkMessages)
}

func TestAggregateOrphansAndIntervals(t *testing.T) {
	snap := ChainSnapshot{
		Canonical: []BlockInfo{
			{Id: 1, Producer: 0, CreatedAt: 600000, TxCount: 10, Canonical: true},
			{Id: 3, Producer: 1, CreatedAt: 1200000, TxCount: 20, Canonical: true},
			{Id: 4, Producer: 0, CreatedAt: 1700000, TxCount: 30, Canonical: true},
		},
		NumLinks:       12,
		NumMiningNodes: 4,
		MeanPeerCount:  3,
	}
	snap.Produced = append(snap.Produced, snap.Canonical...)
	snap.Produced = append(snap.Produced, BlockInfo{Id: 2, Producer: 1, CreatedAt: 1190000, TxCount: 20})

	s := Aggregate(NewCollector("run", false), snap, Window{Start: 1000000, End: 2000000})
	// blocks 3 and 4 end inside the window: intervals 600 s and 500 s
	assert.InDelta(t, 550.0, s.BlockInterval, 1e-9)
	assert.InDelta(t, 25.0, s.BlockSize, 1e-9)
	assert.Equal(t, 3.0, s.ProducedBlocks)
	assert.InDelta(t, 1.0/3, s.OrphanRate, 1e-9)
	assert.InDelta(t, 2.0/3, s.WinRate, 1e-9)
	assert.InDelta(t, 0.5, s.WinRatePerNode[1], 1e-9)
	assert.InDelta(t, 1.0, s.WinRatePerNode[0], 1e-9)

	v, err := s.Get(METRIC_NUM_LINKS)
	require.NoError(t, err)
	assert.Equal(t, 12.0, v)
}

func TestAggregateBounds(t *testing.T) {
	s := Aggregate(NewCollector("run", false), ChainSnapshot{}, Window{Start: 0, End: 1000})
	assert.Equal(t, 0.0, s.OrphanRate)
	assert.Equal(t, 0.0, s.Throughput)
	assert.Equal(t, 0.0, s.Latency)
}

func TestPropagationPercentile(t *testing.T) {
	c := NewCollector("run", false)
	for i := 1; i <= 10; i++ {
		c.Record(BLOCK_RECEIVED, int64(i), i, float64(i*10))
	}
	s := Aggregate(c, ChainSnapshot{}, Window{Start: 0, End: 100})
	assert.InDelta(t, 55.0, s.BlockPropagationDelay, 1e-9)
	assert.Equal(t, 90.0, s.BlockPropagationDelayP90)
}

func TestGetUnknownMetric(t *testing.T) {
	_, err := (&Summary{}).Get("Nope")
	assert.True(t, eris.Is(err, ErrUnknownMetric))
	for _, name := range MetricNames() {
		_, err := (&Summary{}).Get(name)
		assert.NoError(t, err, name)
	}
}

type recordingSink struct {
	samples []Sample
}

func (s *recordingSink) Publish(_ string, sample Sample) {
	s.samples = append(s.samples, sample)
}

func TestRegistryAndSink(t *testing.T) {
	c := NewCollector("run", true)
	sink := &recordingSink{}
	c.SetSink(sink)
	c.Record(BLOCK_PRODUCED, 10, 2, 5)
	c.Record(BLOCK_PRODUCED, 20, 2, 7)

	assert.Len(t, sink.samples, 2)
	assert.Len(t, c.Series(BLOCK_PRODUCED), 2)

	var buf bytes.Buffer
	c.WriteToFile(&buf)
	assert.Contains(t, buf.String(), "BlockProduced_Counter")
	assert.Contains(t, buf.String(), NameFormat(BLOCK_PRODUCED, 2))
}

func TestChannelSinkNeverBlocks(t *testing.T) {
	sink := NewChannelSink(1)
	sink.Publish("a", Sample{Kind: BLOCK_PRODUCED})
	sink.Publish("a", Sample{Kind: BLOCK_PRODUCED})
	assert.Equal(t, uint64(1), sink.Dropped())
	got := <-sink.C
	assert.Equal(t, "a", got.Run)
}
