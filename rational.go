package screenrec

import (
	"fmt"
	"math"
	"math/big"
)

// MaxPTS marks a stream with nothing left to write. It compares greater
// than every real timestamp in any time base.
const MaxPTS int64 = math.MaxInt64

// Rational is a time base: one tick lasts Num/Den seconds.
type Rational struct {
	Num int64
	Den int64
}

// Common time bases.
var (
	TimeBaseMillis = Rational{1, 1000}
	TimeBaseMPEG   = Rational{1, 90000}
	TimeBaseNanos  = Rational{1, 1_000_000_000}
)

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// Valid reports whether the rational is a usable positive time base.
func (r Rational) Valid() bool {
	return r.Num > 0 && r.Den > 0
}

// Float returns the value in seconds per tick.
func (r Rational) Float() float64 {
	return float64(r.Num) / float64(r.Den)
}

// Rescale converts ts from time base from into time base to, rounding to
// the nearest tick with halves away from zero. MaxPTS is preserved.
func Rescale(ts int64, from, to Rational) int64 {
	if ts == MaxPTS {
		return MaxPTS
	}
	if from == to {
		return ts
	}
	// ts * from.Num * to.Den / (from.Den * to.Num)
	num := new(big.Int).SetInt64(ts)
	num.Mul(num, big.NewInt(from.Num))
	num.Mul(num, big.NewInt(to.Den))
	den := new(big.Int).SetInt64(from.Den)
	den.Mul(den, big.NewInt(to.Num))

	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	r.Abs(r).Lsh(r, 1)
	if r.Cmp(den) >= 0 {
		if num.Sign() < 0 {
			q.Sub(q, big.NewInt(1))
		} else {
			q.Add(q, big.NewInt(1))
		}
	}
	if !q.IsInt64() {
		if q.Sign() < 0 {
			return math.MinInt64
		}
		return MaxPTS
	}
	return q.Int64()
}

// CompareTimestamps compares a (in time base ta) with b (in time base tb)
// exactly. It returns -1, 0 or 1. MaxPTS on either side compares as
// positive infinity.
func CompareTimestamps(a int64, ta Rational, b int64, tb Rational) int {
	switch {
	case a == MaxPTS && b == MaxPTS:
		return 0
	case a == MaxPTS:
		return 1
	case b == MaxPTS:
		return -1
	}
	// a * ta.Num / ta.Den  vs  b * tb.Num / tb.Den
	left := new(big.Int).SetInt64(a)
	left.Mul(left, big.NewInt(ta.Num))
	left.Mul(left, big.NewInt(tb.Den))
	right := new(big.Int).SetInt64(b)
	right.Mul(right, big.NewInt(tb.Num))
	right.Mul(right, big.NewInt(ta.Den))
	return left.Cmp(right)
}
