package replay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-enginev1/internal/model"
)

type memSource map[string]model.Series

func (m memSource) ReadCandles(_ context.Context, symbol, _ string, afterTS int64) (model.Series, error) {
	var out model.Series
	for _, c := range m[symbol] {
		if c.TS > afterTS {
			out = append(out, c)
		}
	}
	return out, nil
}

func bar(sym string, ts int64) model.Candle {
	return model.Candle{Symbol: sym, TS: ts, Open: 1, High: 1, Low: 1, Close: 1}
}

func TestReplayer_MergesTimeline(t *testing.T) {
	src := memSource{
		"A": {bar("A", 1000), bar("A", 3000)},
		"B": {bar("B", 1000), bar("B", 2000)},
	}
	out := make(chan model.Candle, 10)
	require.NoError(t, New(src).Run(context.Background(), []string{"A", "B"}, "1h", 0, 0, out))
	close(out)

	var got []string
	for c := range out {
		got = append(got, c.Symbol)
	}
	assert.Equal(t, []string{"A", "B", "B", "A"}, got)
}

func TestReplayer_FromTS(t *testing.T) {
	src := memSource{"A": {bar("A", 1000), bar("A", 2000), bar("A", 3000)}}
	all, err := New(src).Load(context.Background(), []string{"A"}, "1h", 1500)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestReplayer_SpeedCapsGap(t *testing.T) {
	src := memSource{"A": {bar("A", 0), bar("A", 3_600_000)}}
	r := New(src)
	r.MaxGap = 20 * time.Millisecond

	out := make(chan model.Candle, 2)
	start := time.Now()
	require.NoError(t, r.Run(context.Background(), []string{"A"}, "1h", -1, 1, out))
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
	assert.Len(t, out, 2)
}

func TestReplayer_Cancel(t *testing.T) {
	src := memSource{"A": {bar("A", 1), bar("A", 2)}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(src).Run(ctx, []string{"A"}, "1h", 0, 0, make(chan model.Candle))
	assert.ErrorIs(t, err, context.Canceled)
}
