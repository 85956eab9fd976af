// Package errs maps the proxy's internal error identifiers to the
// symbolic, wire-visible strings carried in Reject/BusinessMessageReject
// text fields. Wire strings never leak from %v formatting of a Go error;
// every value that crosses the wire is looked up in Table.
package errs

// Kind identifies a proxy-level error independent of its wire rendering.
type Kind int

const (
	Unknown Kind = iota

	// session-level Reject / Logout text
	NotReady
	Success
	NotLoggedOn
	AlreadyLoggedOn
	InvalidPassword
	InvalidUsername
	InvalidComponent
	NoLogon
	MissingHeartbeat
	UserResponseTimeout
	Goodbye

	// business-level reject reasons
	InvalidSecurityReqID
	InvalidSecurityStatusReqID
	InvalidTradSesReqID
	InvalidMDReqID
	InvalidOrdStatusReqID
	InvalidMassStatusReqID
	InvalidPosReqID
	InvalidTradeRequestID
	InvalidClOrdID
	InvalidMassCancelClOrdID
	UnsupportedPartyIDs
	UnsupportedMessageType
	UnknownOrder
)

// Table maps each Kind to the exact symbolic string placed on the wire.
// This is the single source of truth; nothing else in the codebase should
// hand-format one of these strings.
var Table = map[Kind]string{
	NotReady:             "NOT_READY",
	Success:              "SUCCESS",
	NotLoggedOn:          "NOT_LOGGED_ON",
	AlreadyLoggedOn:      "ALREADY_LOGGED_ON",
	InvalidPassword:      "INVALID_PASSWORD",
	InvalidUsername:      "INVALID_USERNAME",
	InvalidComponent:     "INVALID_COMPONENT",
	NoLogon:              "NO_LOGON",
	MissingHeartbeat:     "MISSING_HEARTBEAT",
	UserResponseTimeout:  "USER_RESPONSE_TIMEOUT",
	Goodbye:              "GOODBYE",

	InvalidSecurityReqID:       "INVALID_SECURITY_REQ_ID",
	InvalidSecurityStatusReqID: "INVALID_SECURITY_STATUS_REQ_ID",
	InvalidTradSesReqID:        "INVALID_TRAD_SES_REQ_ID",
	InvalidMDReqID:             "INVALID_MD_REQ_ID",
	InvalidOrdStatusReqID:      "INVALID_ORD_STATUS_REQ_ID",
	InvalidMassStatusReqID:     "INVALID_MASS_STATUS_REQ_ID",
	InvalidPosReqID:            "INVALID_POS_REQ_ID",
	InvalidTradeRequestID:      "INVALID_TRADE_REQUEST_ID",
	InvalidClOrdID:             "INVALID_CL_ORD_ID",
	InvalidMassCancelClOrdID:   "INVALID_MASS_CANCEL_CL_ORD_ID",
	UnsupportedPartyIDs:        "UNSUPPORTED_PARTY_IDS",
	UnsupportedMessageType:     "UNSUPPORTED_MESSAGE_TYPE",
	UnknownOrder:               "UNKNOWN_ORDER",
}

// Text returns the wire string for kind, or "UNKNOWN" if it has no entry.
func Text(kind Kind) string {
	if s, ok := Table[kind]; ok {
		return s
	}
	return "UNKNOWN"
}

func (k Kind) String() string { return Text(k) }
