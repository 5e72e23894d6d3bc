package signal

import (
	"encoding/json"
	"errors"

	"github.com/dkeye/VoiceCaptions/internal/app/orch"
	"github.com/dkeye/VoiceCaptions/internal/codec"
	"github.com/dkeye/VoiceCaptions/internal/core"
	"github.com/dkeye/VoiceCaptions/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *GroupWSController) handleJoinGroup(sid core.SessionID, c *WsSignalConn, req codec.HubRequest) {
	if !c.hasRole(codec.RoleJoinLeaveGroup) {
		ctl.nack(c, req.AckID, codec.AckForbidden, "joinLeaveGroup role required")
		return
	}
	if err := ctl.Orch.JoinGroup(sid, domain.GroupName(req.Group)); err != nil {
		ctl.nackErr(c, req.AckID, err)
		return
	}
	ctl.ack(c, req.AckID)
}

func (ctl *GroupWSController) handleLeaveGroup(sid core.SessionID, c *WsSignalConn, req codec.HubRequest) {
	if !c.hasRole(codec.RoleJoinLeaveGroup) {
		ctl.nack(c, req.AckID, codec.AckForbidden, "joinLeaveGroup role required")
		return
	}
	if err := ctl.Orch.LeaveGroup(sid, domain.GroupName(req.Group)); err != nil {
		ctl.nackErr(c, req.AckID, err)
		return
	}
	ctl.ack(c, req.AckID)
}

func (ctl *GroupWSController) handleSendToGroup(sid core.SessionID, c *WsSignalConn, req codec.HubRequest) {
	if !c.hasRole(codec.RoleSendToGroup) {
		ctl.nack(c, req.AckID, codec.AckForbidden, "sendToGroup role required")
		return
	}
	if req.DataType != "" && req.DataType != codec.HubDataText {
		ctl.nack(c, req.AckID, codec.AckBadRequest, "unsupported dataType")
		return
	}

	frame, err := json.Marshal(codec.HubEvent{
		Type:             codec.HubMessage,
		From:             "group",
		Group:            req.Group,
		FromConnectionID: string(sid),
		DataType:         codec.HubDataText,
		Data:             req.Data,
	})
	if err != nil {
		ctl.nack(c, req.AckID, codec.AckInternalFail, err.Error())
		return
	}

	res, err := ctl.Orch.SendToGroup(sid, domain.GroupName(req.Group), frame)
	if err != nil {
		ctl.nackErr(c, req.AckID, err)
		return
	}
	log.Debug().Str("module", "signal").Str("sid", string(sid)).Str("group", req.Group).Int("sent_to", res.SendTo).Msg("sendToGroup")
	ctl.ack(c, req.AckID)
}

func (ctl *GroupWSController) nackErr(c *WsSignalConn, ackID uint64, err error) {
	switch {
	case errors.Is(err, orch.ErrNotInGroup):
		ctl.nack(c, ackID, codec.AckNotInGroup, err.Error())
	case errors.Is(err, orch.ErrInvalidGroup):
		ctl.nack(c, ackID, codec.AckBadRequest, err.Error())
	default:
		ctl.nack(c, ackID, codec.AckInternalFail, err.Error())
	}
}
