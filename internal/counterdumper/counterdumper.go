// Package counterdumper contains a counter that periodically reports its value.
package counterdumper

import (
	"sync/atomic"
	"time"
)

const (
	defaultPeriod = 1 * time.Second
)

// CounterDumper is a counter that periodically invokes a callback if the counter is not zero.
// The remaining value is reported when the counter is stopped.
type CounterDumper struct {
	OnReport func(v uint64)
	Period   time.Duration

	counter atomic.Uint64
	total   atomic.Uint64

	terminate chan struct{}
	done      chan struct{}
}

// Start starts the counter.
func (c *CounterDumper) Start() {
	if c.Period == 0 {
		c.Period = defaultPeriod
	}

	c.terminate = make(chan struct{})
	c.done = make(chan struct{})

	go c.run()
}

// Stop stops the counter.
func (c *CounterDumper) Stop() {
	close(c.terminate)
	<-c.done

	c.report()
}

// Increase increases the counter value by 1.
func (c *CounterDumper) Increase() {
	c.Add(1)
}

// Add adds value to the counter.
func (c *CounterDumper) Add(v uint64) {
	c.counter.Add(v)
	c.total.Add(v)
}

// Total returns the sum of all values added to the counter.
func (c *CounterDumper) Total() uint64 {
	return c.total.Load()
}

func (c *CounterDumper) report() {
	v := c.counter.Swap(0)
	if v != 0 {
		c.OnReport(v)
	}
}

func (c *CounterDumper) run() {
	defer close(c.done)

	t := time.NewTicker(c.Period)
	defer t.Stop()

	for {
		select {
		case <-c.terminate:
			return

		case <-t.C:
			c.report()
		}
	}
}
