package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/chain-sentinel/internal/calibration"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/risk"
)

const tokenAddr = "0xdAC17F958D2ee523a2206206994597C13D831ec7"

func sampleEntry(prob float64) Entry {
	actx := risk.NewAnalysisContext(tokenAddr, 1, "", nil)
	out := risk.RiskOutput{
		Probability:    prob,
		RiskLevel:      risk.RiskHigh,
		Archetype:      risk.ArchetypeHoneypot,
		CriticalFlags:  []string{"Honeypot confirmed"},
		Confidence:     0.8,
		CategoryScores: map[string]float64{"honeypot": 100},
		PolicyMode:     "BALANCED",
	}
	return NewEntry("token", actx, out, "BLOCK")
}

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreRecordAndGet(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	e := sampleEntry(88)
	require.NoError(t, s.Record(ctx, e))

	got, err := s.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "token", got.ScanType)
	assert.Equal(t, normalize(tokenAddr), got.Target)
	assert.Equal(t, risk.RiskHigh, got.RiskLevel)
	assert.Equal(t, risk.ArchetypeHoneypot, got.Archetype)
	assert.Equal(t, []string{"Honeypot confirmed"}, got.CriticalFlags)
	assert.Equal(t, 100.0, got.CategoryScores["honeypot"])
	assert.Equal(t, "BLOCK", got.Decision)
	assert.WithinDuration(t, e.CreatedAt, got.CreatedAt, time.Second)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreRecent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		e := sampleEntry(float64(10 * i))
		e.CreatedAt = time.Date(2026, 1, 1, 0, i, 0, 0, time.UTC)
		require.NoError(t, s.Record(ctx, e))
	}

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, 20.0, recent[0].Probability)
	assert.Equal(t, 10.0, recent[1].Probability)
}

func TestOutcomesFeedLabeledSamples(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	old := sampleEntry(40)
	old.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := sampleEntry(92)
	newer.CreatedAt = old.CreatedAt.Add(time.Hour)
	require.NoError(t, s.Record(ctx, old))
	require.NoError(t, s.Record(ctx, newer))

	other := sampleEntry(12)
	other.Target = "0x1111111111111111111111111111111111111111"
	other.ScanType = "transaction"
	require.NoError(t, s.Record(ctx, other))

	_, err := s.RecordOutcome(ctx, Outcome{ChainID: 1, Target: tokenAddr, Label: calibration.LabelSafe})
	require.NoError(t, err)
	// relabel replaces
	_, err = s.RecordOutcome(ctx, Outcome{ChainID: 1, Target: tokenAddr, Label: calibration.LabelScam, Source: "ops"})
	require.NoError(t, err)
	_, err = s.RecordOutcome(ctx, Outcome{ChainID: 1, Target: other.Target, Label: calibration.LabelSafe})
	require.NoError(t, err)

	all, err := s.LabeledSamples(ctx, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []calibration.Sample{
		{Score: 92, Label: calibration.LabelScam},
		{Score: 12, Label: calibration.LabelSafe},
	}, all)

	tokens, err := s.LabeledSamples(ctx, "token")
	require.NoError(t, err)
	assert.Equal(t, []calibration.Sample{{Score: 92, Label: calibration.LabelScam}}, tokens)
}

func TestRecordOutcomeValidation(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.RecordOutcome(ctx, Outcome{ChainID: 1, Target: tokenAddr, Label: "maybe"})
	assert.Error(t, err)

	_, err = s.RecordOutcome(ctx, Outcome{ChainID: 1, Target: tokenAddr, Label: calibration.LabelScam})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKafkaSink(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	sink := NewKafkaSinkWithProducer(producer, "chain-sentinel.verdicts")

	e := sampleEntry(88)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "chain-sentinel.verdicts" {
			return fmt.Errorf("topic %q", msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "1:"+normalize(tokenAddr) {
			return fmt.Errorf("key %q", key)
		}
		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var decoded Entry
		if err := json.Unmarshal(value, &decoded); err != nil {
			return err
		}
		if decoded.ID != e.ID {
			return fmt.Errorf("id %q", decoded.ID)
		}
		return nil
	})
	require.NoError(t, sink.Record(context.Background(), e))

	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	err := sink.Record(context.Background(), e)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sink.Record(ctx, e), context.Canceled)

	require.NoError(t, sink.Close())
}

type failureCounts struct {
	mu sync.Mutex
	by map[string]int
}

func (f *failureCounts) IncrementAuditFailure(sink string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.by == nil {
		f.by = map[string]int{}
	}
	f.by[sink]++
}

func (f *failureCounts) get(sink string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.by[sink]
}

func TestAsyncFansOutAndCountsFailures(t *testing.T) {
	s := newStore(t)
	failures := &failureCounts{}
	broken := RecorderFunc(func(context.Context, Entry) error { return errors.New("broker down") })

	a := NewAsync(8, failures, Sink{Name: "sqlite", Recorder: s}, Sink{Name: "kafka", Recorder: broken})

	e := sampleEntry(55)
	require.NoError(t, a.Record(context.Background(), e))
	require.NoError(t, a.Close(context.Background()))

	got, err := s.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, 55.0, got.Probability)
	assert.Equal(t, 1, failures.get("kafka"))
	assert.Zero(t, failures.get("sqlite"))

	// after close, entries are dropped and counted
	require.NoError(t, a.Record(context.Background(), e))
	assert.Equal(t, 1, failures.get("queue"))
	assert.NoError(t, a.Close(context.Background()))
}

func TestAsyncDropsWhenQueueFull(t *testing.T) {
	failures := &failureCounts{}
	release := make(chan struct{})
	slow := RecorderFunc(func(context.Context, Entry) error {
		<-release
		return nil
	})

	a := NewAsync(1, failures, Sink{Name: "slow", Recorder: slow})
	for i := 0; i < 5; i++ {
		require.NoError(t, a.Record(context.Background(), sampleEntry(1)))
	}
	close(release)
	require.NoError(t, a.Close(context.Background()))

	// one in flight, one queued, the rest dropped
	assert.GreaterOrEqual(t, failures.get("queue"), 3)
}

func TestPruneKeepsLabeledHistory(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	cutoff := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	labeled := sampleEntry(90)
	labeled.CreatedAt = cutoff.Add(-48 * time.Hour)
	stale := sampleEntry(10)
	stale.Target = "0x2222222222222222222222222222222222222222"
	stale.CreatedAt = cutoff.Add(-time.Hour)
	fresh := sampleEntry(20)
	fresh.Target = stale.Target
	fresh.CreatedAt = cutoff.Add(time.Hour)
	for _, e := range []Entry{labeled, stale, fresh} {
		require.NoError(t, s.Record(ctx, e))
	}
	_, err := s.RecordOutcome(ctx, Outcome{ChainID: 1, Target: tokenAddr, Label: calibration.LabelScam})
	require.NoError(t, err)

	n, err := s.Prune(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.Get(ctx, stale.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, fresh.ID)
	assert.NoError(t, err)
	_, err = s.Get(ctx, labeled.ID)
	assert.NoError(t, err)
}

func TestRunRetention(t *testing.T) {
	s := newStore(t)
	old := sampleEntry(10)
	old.CreatedAt = time.Now().Add(-72 * time.Hour).UTC()
	require.NoError(t, s.Record(context.Background(), old))

	t.Run("disabled without retention", func(t *testing.T) {
		s.RunRetention(context.Background(), 0, time.Millisecond)
		_, err := s.Get(context.Background(), old.ID)
		assert.NoError(t, err)
	})

	t.Run("prunes then stops on cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			s.RunRetention(ctx, 24*time.Hour, time.Hour)
			close(done)
		}()

		assert.Eventually(t, func() bool {
			_, err := s.Get(context.Background(), old.ID)
			return errors.Is(err, ErrNotFound)
		}, 2*time.Second, 10*time.Millisecond)

		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("retention loop did not stop")
		}
	})
}
