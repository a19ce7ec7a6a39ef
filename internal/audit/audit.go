package audit

import (
	"context"

	"github.com/calderhq/parley/pkg/log"
)

// Audit actions for the chat core.
const (
	ActionJoinRoom    = "chat.join_room"
	ActionLeaveRoom   = "chat.leave_room"
	ActionSendMessage = "chat.send_message"
	ActionDisconnect  = "chat.disconnect"
)

const (
	fieldAction = "action"
	fieldDetail = "detail"
)

// Log emits a structured audit entry via the context logger.
func Log(ctx context.Context, action, sessionID, room string) {
	logger := log.Ctx(ctx)
	logger.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(fieldAction, action).
		Str(log.FieldSessionID, sessionID).
		Str(log.FieldRoom, room).
		Msg(action)
}

// LogWithDetail emits an audit entry with an extra detail field.
func LogWithDetail(ctx context.Context, action, sessionID, room, detail string) {
	logger := log.Ctx(ctx)
	logger.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(fieldAction, action).
		Str(log.FieldSessionID, sessionID).
		Str(log.FieldRoom, room).
		Str(fieldDetail, detail).
		Msg(action)
}
