package clock

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestVirtualEvery(t *testing.T) {
	v := NewVirtual(epoch)
	var ticks int
	cancel := v.Every(50*time.Millisecond, func() { ticks++ })

	v.Advance(49 * time.Millisecond)
	assert.Equal(t, 0, ticks)

	v.Advance(time.Millisecond)
	assert.Equal(t, 1, ticks)

	v.Advance(time.Second)
	assert.Equal(t, 21, ticks)
	assert.Equal(t, epoch.Add(1050*time.Millisecond), v.Now())

	cancel()
	cancel()
	v.Advance(time.Second)
	assert.Equal(t, 21, ticks)
	assert.Equal(t, 0, v.Pending())
}

func TestVirtualCallbackCanCancelItself(t *testing.T) {
	v := NewVirtual(epoch)
	var ticks int
	var cancel CancelFunc
	cancel = v.Every(10*time.Millisecond, func() {
		ticks++
		if ticks == 3 {
			cancel()
		}
	})

	v.Advance(time.Second)
	assert.Equal(t, 3, ticks)
}

func TestVirtualOrdersByDueTime(t *testing.T) {
	v := NewVirtual(epoch)
	var order []string
	v.Every(30*time.Millisecond, func() { order = append(order, "slow") })
	v.Every(20*time.Millisecond, func() { order = append(order, "fast") })

	v.Advance(60 * time.Millisecond)
	assert.Equal(t, []string{"fast", "slow", "fast", "slow", "fast"}, order)
}

func TestRealEveryStops(t *testing.T) {
	var ticks atomic.Int32
	cancel := Real{}.Every(5*time.Millisecond, func() { ticks.Add(1) })

	assert.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)
	stopped := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, ticks.Load())
}
