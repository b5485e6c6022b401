package push

import (
	"context"
	"strings"

	"github.com/carelane/carelane/pkg/gateway"
)

// LogCatchup adapts the gateway's event log ring to the hub's catchup
// protocol. Patient channels replay that patient's entries; the global
// events channel replays everything. Other channels have no history.
type LogCatchup struct {
	gw *gateway.Gateway
}

// NewLogCatchup creates a catchup source over the gateway.
func NewLogCatchup(gw *gateway.Gateway) *LogCatchup {
	return &LogCatchup{gw: gw}
}

// FramesSince returns gateway.event frames after sinceSeq for the
// channel, oldest first.
func (lc *LogCatchup) FramesSince(_ context.Context, channel string, sinceSeq int64, limit int) ([][]byte, error) {
	patientID, ok := channelPatient(channel)
	if !ok {
		return nil, nil
	}

	entries := lc.gw.EventLogSince(patientID, sinceSeq, limit)
	frames := make([][]byte, 0, len(entries))
	for _, e := range entries {
		frame, err := marshalEventFrame(e)
		if err != nil {
			continue
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// channelPatient maps a channel name to the event log filter: a patient
// channel filters to that patient, the global channel matches everyone.
func channelPatient(channel string) (string, bool) {
	if channel == GlobalEventsChannel {
		return "", true
	}
	if id, found := strings.CutPrefix(channel, "patient:"); found && id != "" {
		return id, true
	}
	return "", false
}
