package main

import (
	"fmt"
	"strings"

	"rocketlink/internal/engine"
	"rocketlink/internal/link"
)

// summaryLine is the periodic one-line health report written to the log.
func summaryLine(st engine.Stats, in, out link.Snapshot) string {
	var b strings.Builder
	b.WriteString("rocketlink summary")
	fmt.Fprintf(&b, " input=%s", endpointState(in))
	fmt.Fprintf(&b, " output=%s", endpointState(out))
	fmt.Fprintf(&b, " records=%d frames=%d rotations=%d slots=%d", st.Records, st.Frames, st.Rotations, st.SlotUpdates)
	fmt.Fprintf(&b, " packets_sent=%d send_errors=%d counter=%d", st.PacketsSent, st.SendErrors, st.PacketCount)
	if st.LastFrameUTC != "" {
		fmt.Fprintf(&b, " last_frame=%s", st.LastFrameUTC)
	}
	return b.String()
}

func endpointState(s link.Snapshot) string {
	state := s.State
	if state == "" {
		state = "closed"
	}
	if s.Name == "" {
		return state
	}
	return state + "(" + s.Name + ")"
}
