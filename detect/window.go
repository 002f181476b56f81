package detect

import "time"

// groupWindow is the sliding-window state of one (rule, group) pair.
//
// times holds the qualifying timestamps still inside the window, oldest at
// times[head]. A group starts armed. It fires when a record brings the count
// to the threshold and then stays disarmed until, before some later record
// is added, the count has fallen back below the threshold. That record
// re-arms the group but cannot fire itself, unless the window had emptied
// completely before it.
type groupWindow struct {
	times     []time.Time
	head      int
	armed     bool
	crossings int
}

func newGroupWindow() *groupWindow {
	return &groupWindow{armed: true}
}

func (w *groupWindow) count() int {
	return len(w.times) - w.head
}

func (w *groupWindow) start() time.Time {
	return w.times[w.head]
}

// evict drops timestamps older than window seconds before now.
// A zero window never expires anything.
func (w *groupWindow) evict(now time.Time, window int64) {
	if window <= 0 {
		return
	}
	limit := time.Duration(window) * time.Second
	for w.head < len(w.times) && now.Sub(w.times[w.head]) > limit {
		w.head++
	}
	if w.head > 0 && w.head*2 >= len(w.times) {
		n := copy(w.times, w.times[w.head:])
		w.times = w.times[:n]
		w.head = 0
	}
}

// observe records one qualifying timestamp and reports whether this record
// completes a threshold crossing.
func (w *groupWindow) observe(ts time.Time, window int64, threshold int) bool {
	w.evict(ts, window)

	wasArmed := w.armed
	if !w.armed && w.count() < threshold {
		w.armed = true
		wasArmed = w.count() == 0
	}

	w.times = append(w.times, ts)

	if wasArmed && w.count() >= threshold {
		w.armed = false
		w.crossings++
		return true
	}
	return false
}
