package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRMSMeterReportsFloorBeforeAnySamples(t *testing.T) {
	m := NewRMSMeter(10)
	assert.Equal(t, floorDb, m.LevelDb())
}

func TestRMSMeterReportsZeroDbForFullScaleSquareWave(t *testing.T) {
	m := NewRMSMeter(100)
	for i := 0; i < 100; i++ {
		if i%2 == 0 {
			m.Add(1)
		} else {
			m.Add(-1)
		}
	}
	assert.InDelta(t, 0, m.LevelDb(), 0.1)
}

func TestRMSMeterTracksLevelAfterWindowSlidesPast(t *testing.T) {
	m := NewRMSMeter(4)
	m.AddBlock([]float64{1, 1, 1, 1})
	assert.InDelta(t, 0, m.LevelDb(), 0.1)

	m.AddBlock([]float64{0, 0, 0, 0})
	assert.Equal(t, floorDb, m.LevelDb())
}
