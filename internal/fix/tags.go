package fix

// Standard and application tags this proxy reads or rewrites. This is not
// a complete FIX 4.4 dictionary — only the fields the routing and
// session-state logic in this proxy touches.
const (
	TagMsgSeqNum            = 34
	TagSenderCompID         = 49
	TagTargetCompID         = 56
	TagSendingTime          = 52
	TagEncryptMethod        = 98
	TagHeartBtInt           = 108
	TagResetSeqNumFlag      = 141
	TagNextExpectedMsgSeqNum = 789
	TagTestReqID            = 112
	TagText                 = 58
	TagRefMsgType           = 372
	TagSessionRejectReason  = 373
	TagBusinessRejectReason = 380
	TagBusinessRejectRefID  = 379
	TagRefSeqNum            = 45

	TagUsername   = 553
	TagPassword   = 554
	TagRawData    = 96
	TagRawDataLen = 95

	// UserRequest / UserResponse
	TagUserRequestType = 924
	TagUserRequestID   = 923
	TagUserStatus      = 926
	TagUserStatusText  = 927

	// Orders
	TagClOrdID     = 11
	TagOrigClOrdID = 41
	TagOrdStatus   = 39
	TagOrdRejReason = 103
	TagSymbol      = 55
	TagMassCancelRequestType = 530
	TagMassCancelResponse    = 531

	// Req-ids by kind (distinct tags where FIX 4.4 defines one, shared
	// tag-in-different-message-type otherwise).
	TagSecurityReqID       = 320
	TagSecurityStatusReqID = 324
	TagTradSesReqID        = 335
	TagMDReqID             = 262
	TagMassStatusReqID     = 584
	TagPosReqID            = 710
	TagTradeRequestID      = 568

	// Parties repeating group
	TagNoPartyIDs   = 453
	TagPartyID      = 448
	TagPartyIDSource = 447
	TagPartyRole    = 452

	// SubscriptionRequestType, reused to best-effort cancel a keep-alive
	// subscription on session teardown (spec §4.4 "Per-session teardown").
	TagSubscriptionRequestType = 263
)

// Values for PartyIDSource / PartyRole used when the proxy injects the
// authenticated client identity onto an upstream request (spec: "inject
// {party_id, PROPRIETARY_CUSTOM_CODE, CLIENT_ID}").
const (
	PartyIDSourceProprietary = "D" // PROPRIETARY_CUSTOM_CODE
	PartyRoleClientID        = "3" // CLIENT_ID
)

// EncryptMethod values.
const (
	EncryptMethodNone = "0"
)

// SubscriptionRequestType values.
const (
	SubscriptionRequestTypeSnapshotUpdates = "1"
	SubscriptionRequestTypeDisable         = "2"
)

// UserRequestType / UserStatus values.
const (
	UserRequestTypeLogOnUser  = "1"
	UserRequestTypeLogOffUser = "2"

	UserStatusLoggedIn    = "1"
	UserStatusNotLoggedIn = "2"
)

// OrdStatus values relevant to terminal-state detection (spec §3 order
// state map).
const (
	OrdStatusNew                 = "0"
	OrdStatusFilled              = "2"
	OrdStatusDoneForDay          = "3"
	OrdStatusCanceled            = "4"
	OrdStatusRejected            = "8"
	OrdStatusExpired             = "C"
	OrdStatusCalculatedCanceled  = "D" // proxy-local extension: calculated then canceled
)

// IsTerminalOrdStatus reports whether status is one of the terminal
// states after which cl_ord_id bookkeeping may be released (spec §4.4.c).
func IsTerminalOrdStatus(status string) bool {
	switch status {
	case OrdStatusFilled, OrdStatusCanceled, OrdStatusRejected, OrdStatusExpired,
		OrdStatusDoneForDay, OrdStatusCalculatedCanceled:
		return true
	default:
		return false
	}
}
