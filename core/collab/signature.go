// Package collab signs and verifies access to the collaboration rooms of projects.
package collab

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/url"
	"strconv"
	"time"
)

// DateLayout is the format of the date bound into a room signature.
const DateLayout = "20060102"

// Room messages
const (
	MsgUpdateProject    = "update_project"
	MsgEndCollaboration = "end_collaboration"
	MsgValidateQuestion = "validate_question"
	validateQuestionSep = ":"
)

// nowFunc is mockable in tests
var nowFunc = time.Now

func RoomName(projectID int) string {
	return "clap_project_" + strconv.Itoa(projectID)
}

// SignRoom returns hex(hmac(hmac("secret:"+secret, date), room)).
func SignRoom(secret, room string, date time.Time) string {
	dateKey := sign([]byte("secret:"+secret), date.UTC().Format(DateLayout))
	return hex.EncodeToString(sign(dateKey, room))
}

// VerifyRoom checks a signature issued today (UTC) for the room.
func VerifyRoom(secret, room, date, signature string) bool {
	today := nowFunc().UTC()
	if date != today.Format(DateLayout) {
		return false
	}
	expected := SignRoom(secret, room, today)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// URL returns the websocket URL a client uses to join the room.
func URL(base, secret, room string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	now := nowFunc().UTC()
	q := u.Query()
	q.Set("room", room)
	q.Set("date", now.Format(DateLayout))
	q.Set("signature", SignRoom(secret, room, now))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ValidateQuestionMessage builds the message asking the teacher to validate a sequence.
func ValidateQuestionMessage(payload []byte) string {
	return MsgValidateQuestion + validateQuestionSep + string(payload)
}

func sign(key []byte, msg string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(msg))
	return mac.Sum(nil)
}
