package collector

import "TrendSentinel/internal/model"

// Resample aggregates bars into buckets of tf aligned to UTC.
// Input must be oldest first; a partially filled trailing bucket is kept.
func Resample(bars []model.Bar, tf model.Timeframe) []model.Bar {
	d := tf.Duration()
	if d <= 0 || len(bars) == 0 {
		return nil
	}
	var out []model.Bar
	var cur model.Bar
	var started bool
	for _, b := range bars {
		bucket := b.Time.UTC().Truncate(d)
		if !started || !bucket.Equal(cur.Time) {
			if started {
				out = append(out, cur)
			}
			cur = model.Bar{Time: bucket, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close}
			started = true
			continue
		}
		if b.High > cur.High {
			cur.High = b.High
		}
		if b.Low < cur.Low {
			cur.Low = b.Low
		}
		cur.Close = b.Close
	}
	out = append(out, cur)
	return out
}

// sourceCount returns how many base bars cover count bars of tf.
func sourceCount(base, tf model.Timeframe, count int) int {
	ratio := int(tf.Duration() / base.Duration())
	if ratio < 1 {
		ratio = 1
	}
	return (count + 1) * ratio
}
