package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestEnergyDayIsRetained(t *testing.T) {

	assert := assert.New(t)

	agg := NewPowerAggregator(zap.NewNop())
	var retained []float64
	for _, v := range []float64{120, 300, 50, 310} {
		retained = append(retained, agg.AddEnergyDay(v))
	}

	assert.Equal([]float64{120, 300, 300, 310}, retained, "inverter shutdown reset is ignored")
	assert.Equal(310.0, agg.EnergyDay())
}

func TestPowerBufferWraps(t *testing.T) {

	assert := assert.New(t)

	agg := NewPowerAggregator(nil)
	for i := 1; i <= 16; i++ {
		agg.AddPowerSample(float64(i * 10))
	}

	buffer := agg.Buffer()
	assert.Equal(160.0, buffer[0], "16th sample overwrites slot 0")
	assert.Equal(20.0, buffer[1])
	assert.Equal(150.0, buffer[14])
}

func TestAverageOnQuarterHour(t *testing.T) {

	assert := assert.New(t)

	agg := NewPowerAggregator(nil)
	for i := 0; i < PowerBufferSize; i++ {
		agg.AddPowerSample(300)
	}

	assert.False(agg.MaybeAppendAverage(10*60+14), "10:14")
	assert.True(agg.MaybeAppendAverage(10*60+15), "10:15")
	assert.False(agg.MaybeAppendAverage(10*60+15), "second cycle within 10:15")
	assert.True(agg.MaybeAppendAverage(10*60+30), "10:30")
	assert.True(agg.MaybeAppendAverage(11*60), "11:00")

	assert.Equal([]float64{300, 300, 300}, agg.History())
}

func TestAverageCountsEmptySlots(t *testing.T) {

	agg := NewPowerAggregator(nil)
	agg.AddPowerSample(1500)
	agg.MaybeAppendAverage(8 * 60)

	assert.Equal(t, []float64{100}, agg.History(), "unfilled slots count as zero")
}

func TestResetClearsPeriod(t *testing.T) {

	assert := assert.New(t)

	agg := NewPowerAggregator(nil)
	agg.AddPowerSample(1000)
	agg.AddEnergyDay(5000)
	agg.MaybeAppendAverage(12 * 60)

	agg.Reset()
	assert.Empty(agg.History())
	assert.Equal(0.0, agg.EnergyDay())
	assert.Equal([PowerBufferSize]float64{}, agg.Buffer())
	assert.True(agg.MaybeAppendAverage(12*60), "same minute is accepted after reset")
}

func TestHistoryIsCopied(t *testing.T) {

	agg := NewPowerAggregator(nil)
	agg.MaybeAppendAverage(0)
	history := agg.History()
	history[0] = 42

	assert.Equal(t, []float64{0}, agg.History())
}
