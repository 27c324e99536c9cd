package session

import (
	"fmt"

	"github.com/srg/biolink/internal/cmdqueue"
	"github.com/srg/biolink/pkg/sensor"
)

// Request verbs for the resource-oriented command format:
// [verb, resourcePathBytes...].
const (
	VerbGet         byte = 0x01
	VerbSubscribe   byte = 0x02
	VerbUnsubscribe byte = 0x03
)

// SubscribeCommand builds a subscription request for one resource id.
func SubscribeCommand(resource byte) cmdqueue.Command {
	return cmdqueue.Command{
		Payload: []byte{VerbSubscribe, resource},
		Label:   fmt.Sprintf("subscribe 0x%02x", resource),
	}
}

// UnsubscribeCommand builds an unsubscribe request for one resource id.
func UnsubscribeCommand(resource byte) cmdqueue.Command {
	return cmdqueue.Command{
		Payload: []byte{VerbUnsubscribe, resource},
		Label:   fmt.Sprintf("unsubscribe 0x%02x", resource),
	}
}

// subscriptionSequence is the command set issued after every (re)connect
// to start all four sensor streams. The trailing legacy frames are the
// ad-hoc byte sequences the shipped firmware expects before it begins
// pushing accelerometer payloads; they predate the verb format and are
// preserved verbatim.
func subscriptionSequence() []cmdqueue.Command {
	cmds := []cmdqueue.Command{
		SubscribeCommand(sensor.ResourceTempAccel),
		SubscribeCommand(sensor.ResourceHeartRateECG),
		SubscribeCommand(sensor.ResourceGyro),
		SubscribeCommand(sensor.ResourceMagnetometer),
	}
	cmds = append(cmds,
		cmdqueue.Command{Payload: []byte{0x02, sensor.ResourceTempAccel, 0x01, 0x01}, Label: "legacy accel start"},
		cmdqueue.Command{Payload: []byte{0x02, sensor.ResourceHeartRateECG, 0x01, 0x01}, Label: "legacy hr start"},
	)
	return cmds
}
