package fix

import "strconv"

// NewLogon builds a Logon message. resetSeqNumFlag is always true in this
// proxy (Non-goal: no sequence-number persistence across restarts).
func NewLogon(heartBtInt int, username, password string) *Message {
	m := New(MsgTypeLogon)
	m.Set(TagEncryptMethod, EncryptMethodNone)
	m.Set(TagHeartBtInt, strconv.Itoa(heartBtInt))
	m.Set(TagResetSeqNumFlag, "Y")
	if username != "" {
		m.Set(TagUsername, username)
	}
	if password != "" {
		m.Set(TagPassword, password)
	}
	return m
}

// NewLogout builds a Logout with an optional free-text reason.
func NewLogout(text string) *Message {
	m := New(MsgTypeLogout)
	if text != "" {
		m.Set(TagText, text)
	}
	return m
}

// NewHeartbeat builds a Heartbeat, echoing testReqID when answering a
// TestRequest (empty otherwise).
func NewHeartbeat(testReqID string) *Message {
	m := New(MsgTypeHeartbeat)
	if testReqID != "" {
		m.Set(TagTestReqID, testReqID)
	}
	return m
}

// NewTestRequest builds a TestRequest carrying a fresh correlation id.
func NewTestRequest(testReqID string) *Message {
	return New(MsgTypeTestRequest).Set(TagTestReqID, testReqID)
}

// NewReject builds a session-level Reject referencing the offending
// sequence number and carrying a symbolic text (via internal/errs).
func NewReject(refSeqNum uint64, text string) *Message {
	m := New(MsgTypeReject)
	m.Set(TagRefSeqNum, strconv.FormatUint(refSeqNum, 10))
	m.Set(TagText, text)
	return m
}

// NewBusinessMessageReject builds a business-level reject for refMsgType,
// echoing the business id that failed validation.
func NewBusinessMessageReject(refMsgType, businessRejectRefID, reason string) *Message {
	m := New(MsgTypeBusinessMessageReject)
	m.Set(TagRefMsgType, refMsgType)
	if businessRejectRefID != "" {
		m.Set(TagBusinessRejectRefID, businessRejectRefID)
	}
	m.Set(TagText, reason)
	return m
}

// NewUserRequest builds a UserRequest of the given type for username.
func NewUserRequest(requestID, requestType, username, password, rawData string) *Message {
	m := New(MsgTypeUserRequest)
	m.Set(TagUserRequestID, requestID)
	m.Set(TagUserRequestType, requestType)
	m.Set(TagUsername, username)
	if password != "" {
		m.Set(TagPassword, password)
	}
	if rawData != "" {
		m.Set(TagRawData, rawData)
	}
	return m
}

// NewBestEffortCancel builds a disable-subscription request for kind's
// server-side req id, or nil if kind never subscribes for more than one
// response. Used on client session teardown to unwind a keep-alive
// subscription upstream (spec §4.4 "Per-session teardown"); the proxy
// does not wait for or require a reply.
func NewBestEffortCancel(kind ReqIDKind, serverReqID string) *Message {
	msgType, ok := keepAliveCancelMsgType[kind]
	if !ok {
		return nil
	}
	m := New(msgType)
	m.SetReqID(kind, serverReqID)
	m.Set(TagSubscriptionRequestType, SubscriptionRequestTypeDisable)
	return m
}

// NewUserResponse builds a UserResponse answering requestID with status
// and optional free text (the wire string produced via internal/errs).
func NewUserResponse(requestID, username, status, text string) *Message {
	m := New(MsgTypeUserResponse)
	m.Set(TagUserRequestID, requestID)
	m.Set(TagUsername, username)
	m.Set(TagUserStatus, status)
	if text != "" {
		m.Set(TagUserStatusText, text)
	}
	return m
}
