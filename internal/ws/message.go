package ws

import (
	"encoding/json"
	"fmt"
)

// Wire message types. Unrecognized types are ignored without closing
// the connection.
const (
	TypeCodeUpdate = "code_update"
	TypeUserCount  = "user_count"
)

// Close code sent when a client joins a room that does not exist.
const CloseRoomNotFound = 4004

// clientMessage is an inbound message after shape validation.
type clientMessage struct {
	Type string
	Code string
}

type rawClientMessage struct {
	Type *string `json:"type"`
	Code *string `json:"code"`
}

func codeUpdateMessage(code string) []byte {
	data, _ := json.Marshal(struct {
		Type string `json:"type"`
		Code string `json:"code"`
	}{TypeCodeUpdate, code})
	return data
}

// snapshotMessage is the initial state pushed to a joining client. It
// rides on the code_update type and additionally carries the language.
func snapshotMessage(code, language string) []byte {
	data, _ := json.Marshal(struct {
		Type     string `json:"type"`
		Code     string `json:"code"`
		Language string `json:"language"`
	}{TypeCodeUpdate, code, language})
	return data
}

func userCountMessage(count int) []byte {
	data, _ := json.Marshal(struct {
		Type  string `json:"type"`
		Count int    `json:"count"`
	}{TypeUserCount, count})
	return data
}

// parseClientMessage validates the shape of an inbound message. A
// code_update must carry a code string; anything unparseable is an
// error and gets dropped by the caller.
func parseClientMessage(data []byte) (clientMessage, error) {
	var raw rawClientMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return clientMessage{}, fmt.Errorf("invalid json: %w", err)
	}
	if raw.Type == nil {
		return clientMessage{}, fmt.Errorf("missing message type")
	}

	msg := clientMessage{Type: *raw.Type}
	if msg.Type == TypeCodeUpdate {
		if raw.Code == nil {
			return clientMessage{}, fmt.Errorf("code_update without code")
		}
		msg.Code = *raw.Code
	}
	return msg, nil
}
