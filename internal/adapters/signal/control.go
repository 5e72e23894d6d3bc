package signal

import "github.com/dkeye/VoiceCaptions/internal/codec"

// ack is only sent for requests that carried an ackId.
func (ctl *GroupWSController) ack(c *WsSignalConn, ackID uint64) {
	if ackID == 0 {
		return
	}
	ctl.sendJSON(c, codec.HubEvent{Type: codec.HubAck, AckID: ackID, Success: true})
}

func (ctl *GroupWSController) nack(c *WsSignalConn, ackID uint64, name, msg string) {
	if ackID == 0 {
		return
	}
	ctl.sendJSON(c, codec.HubEvent{
		Type:  codec.HubAck,
		AckID: ackID,
		Error: &codec.HubAckError{Name: name, Message: msg},
	})
}
