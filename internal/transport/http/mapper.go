package http

import (
	"encoding/json"

	"github.com/tripdesk/tripdesk-server/internal/core"
	"github.com/tripdesk/tripdesk-server/internal/proto"
	"github.com/tripdesk/tripdesk-server/internal/store"
)

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypeJoin:
		var join proto.JoinData
		if err := json.Unmarshal(inbound.Data, &join); err != nil {
			return nil, nil, err
		}
		// The room is derived from the connection identity; the ids in
		// the payload only matter for staff naming a conversation.
		return &core.Command{
			Kind:           core.CommandJoinRoom,
			TempID:         inbound.TempID,
			ConversationID: join.ConversationID,
		}, nil, nil
	case proto.InboundTypeSend:
		var send proto.SendData
		if err := json.Unmarshal(inbound.Data, &send); err != nil {
			return nil, nil, err
		}
		if send.ConversationID == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "conversation id is required"}, nil
		}
		return &core.Command{
			Kind:           core.CommandSendMessage,
			TempID:         inbound.TempID,
			ConversationID: send.ConversationID,
			Message: store.Message{
				// ID, timestamp and sender identity are set server-side.
				Body:     send.Text,
				ImageURL: send.ImageURL,
			},
		}, nil, nil
	default:
		return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "unknown message type"}, nil
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventNewMessage:
		data := proto.EventNewMessageData{ClientTempID: event.ClientTempID}
		if event.Conversation != nil {
			data.Conversation = proto.FromConversation(event.Conversation)
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNewMessage,
			Data:  data,
		}
	case core.EventAck:
		out := proto.Outbound{
			Type:   proto.OutboundTypeAck,
			TempID: event.TempID,
		}
		switch {
		case event.Message != nil:
			out.Data = proto.FromMessage(event.Message)
		case event.Room != "":
			out.Data = proto.AckJoinData{Room: event.Room}
		}
		return out
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{
				Type:   proto.OutboundTypeError,
				TempID: event.TempID,
				Error:  &proto.Error{Code: "unknown", Msg: "unknown error"},
			}
		}
		return proto.Outbound{
			Type:   proto.OutboundTypeError,
			TempID: event.TempID,
			Error:  &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}
