package clock

import "time"

// Interface is the set of time operations used by components that need to be
// tested against a controllable time source, such as the deployment scanner
// and the low-resource monitor.
type Interface interface {
	Now() time.Time
	Sleep(time.Duration)
	NewTicker(time.Duration) Ticker
	NewTimer(time.Duration) Timer
}

// Ticker is the analog of time.Ticker
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Timer is the analog of time.Timer
type Timer interface {
	C() <-chan time.Time
	Reset(time.Duration) bool
	Stop() bool
}

// System returns a clock backed by the time package
func System() Interface {
	return systemClock{}
}

type systemClock struct{}

func (sc systemClock) Now() time.Time {
	return time.Now()
}

func (sc systemClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

func (sc systemClock) NewTicker(d time.Duration) Ticker {
	return systemTicker{time.NewTicker(d)}
}

func (sc systemClock) NewTimer(d time.Duration) Timer {
	return systemTimer{time.NewTimer(d)}
}

type systemTicker struct {
	*time.Ticker
}

func (st systemTicker) C() <-chan time.Time {
	return st.Ticker.C
}

// WrapTicker exposes a time.Ticker as a clock.Ticker
func WrapTicker(t *time.Ticker) Ticker {
	return systemTicker{t}
}

type systemTimer struct {
	*time.Timer
}

func (st systemTimer) C() <-chan time.Time {
	return st.Timer.C
}

// WrapTimer exposes a time.Timer as a clock.Timer
func WrapTimer(t *time.Timer) Timer {
	return systemTimer{t}
}
