package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/ashare/market"
)

// RMA is Wilder's running average: an exponential average with
// alpha = 1/period seeded with the first observation. Leading NaN inputs
// are skipped.
type RMA struct {
	period int
	alpha  float64
	value  float64
	seen   bool
}

func NewRMA(period int) *RMA {
	return &RMA{period: period, alpha: 1.0 / float64(period)}
}

func (r *RMA) Name() string { return fmt.Sprintf("RMA(%d)", r.period) }

func (r *RMA) Warmup() int { return 1 }

func (r *RMA) Reset() {
	r.value = 0
	r.seen = false
}

// Add consumes one raw observation.
func (r *RMA) Add(x float64) {
	if math.IsNaN(x) {
		return
	}
	if !r.seen {
		r.value = x
		r.seen = true
		return
	}
	r.value += r.alpha * (x - r.value)
}

func (r *RMA) Ready() bool { return r.seen }

func (r *RMA) Value() float64 {
	if !r.seen {
		return math.NaN()
	}
	return r.value
}

// ATR is a streaming Average True Range with Wilder smoothing. The first
// bar's true range is its high-low span.
type ATR struct {
	period      int
	rma         *RMA
	prevClose   float64
	hasPrevious bool
	count       int
}

// NewATR creates a new Average True Range indicator with the given period
func NewATR(period int) *ATR {
	return &ATR{period: period, rma: NewRMA(period)}
}

func (a *ATR) Name() string {
	return fmt.Sprintf("ATR(%d)", a.period)
}

func (a *ATR) Warmup() int { return 1 }

func (a *ATR) Reset() {
	a.rma.Reset()
	a.hasPrevious = false
	a.count = 0
}

func (a *ATR) Update(c market.Candle) {
	prev := math.NaN()
	if a.hasPrevious {
		prev = a.prevClose
	}
	a.rma.Add(TrueRange(c, prev))
	a.prevClose = c.Close
	a.hasPrevious = true
	a.count++
}

func (a *ATR) Ready() bool { return a.rma.Ready() }

func (a *ATR) Value() float64 { return a.rma.Value() }

// TrueRange is max(H-L, |H-prevC|, |L-prevC|). A NaN prevClose leaves
// only the high-low span.
func TrueRange(c market.Candle, prevClose float64) float64 {
	tr := math.Abs(c.High - c.Low)
	if math.IsNaN(prevClose) {
		return tr
	}
	return math.Max(tr, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
}
