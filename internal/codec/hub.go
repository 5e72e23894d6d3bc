package codec

// Group hub wire protocol. Clients send HubRequest frames; the hub answers
// with HubEvent frames.

const (
	HubJoinGroup   = "joinGroup"
	HubLeaveGroup  = "leaveGroup"
	HubSendToGroup = "sendToGroup"

	HubSystem  = "system"
	HubAck     = "ack"
	HubMessage = "message"

	HubEventConnected = "connected"

	HubDataText = "text"

	// Hub roles carried in access tokens.
	RoleJoinLeaveGroup = "joinLeaveGroup"
	RoleSendToGroup    = "sendToGroup"
)

type HubRequest struct {
	Type     string `json:"type"`
	Group    string `json:"group"`
	AckID    uint64 `json:"ackId,omitempty"`
	DataType string `json:"dataType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type HubAckError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

type HubEvent struct {
	Type             string       `json:"type"`
	Event            string       `json:"event,omitempty"`
	ConnectionID     string       `json:"connectionId,omitempty"`
	UserID           string       `json:"userId,omitempty"`
	AckID            uint64       `json:"ackId,omitempty"`
	Success          bool         `json:"success,omitempty"`
	Error            *HubAckError `json:"error,omitempty"`
	From             string       `json:"from,omitempty"`
	Group            string       `json:"group,omitempty"`
	FromConnectionID string       `json:"fromConnectionId,omitempty"`
	DataType         string       `json:"dataType,omitempty"`
	Data             string       `json:"data,omitempty"`
}

// Ack error names.
const (
	AckForbidden    = "Forbidden"
	AckBadRequest   = "BadRequest"
	AckRateLimited  = "RateLimited"
	AckNotInGroup   = "NotInGroup"
	AckInternalFail = "InternalServerError"
)
