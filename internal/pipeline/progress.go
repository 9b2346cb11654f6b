package pipeline

// ProgressEvent reports pipeline advancement for one document. Events are
// advisory; dropping them never affects the result.
type ProgressEvent struct {
	Stage   string
	Percent float64 // overall completion in [0,1]
	Message string
}

// ProgressFunc receives progress events. Implementations must not block;
// the pipeline calls it inline between stages.
type ProgressFunc func(ProgressEvent)

// ChannelSink adapts a channel into a ProgressFunc. Sends never block: when
// the channel is full the event is dropped.
func ChannelSink(ch chan<- ProgressEvent) ProgressFunc {
	return func(ev ProgressEvent) {
		select {
		case ch <- ev:
		default:
		}
	}
}
