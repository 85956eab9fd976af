package fix

// MsgType codes for the FIX 4.4 message set this proxy supports (spec §6).
const (
	MsgTypeLogon            = "A"
	MsgTypeLogout           = "5"
	MsgTypeHeartbeat        = "0"
	MsgTypeTestRequest      = "1"
	MsgTypeResendRequest    = "2"
	MsgTypeReject           = "3"
	MsgTypeBusinessMessageReject = "j"

	MsgTypeUserRequest  = "BE"
	MsgTypeUserResponse = "BF"

	MsgTypeSecurityListRequest       = "x"
	MsgTypeSecurityList              = "y"
	MsgTypeSecurityDefinitionRequest = "c"
	MsgTypeSecurityDefinition        = "d"
	MsgTypeSecurityStatusRequest     = "e"
	MsgTypeSecurityStatus            = "f"

	MsgTypeTradingSessionStatusRequest = "g"
	MsgTypeTradingSessionStatus        = "h"

	MsgTypeMarketDataRequest              = "V"
	MsgTypeMarketDataRequestReject        = "Y"
	MsgTypeMarketDataSnapshotFullRefresh  = "W"
	MsgTypeMarketDataIncrementalRefresh   = "X"

	MsgTypeNewOrderSingle            = "D"
	MsgTypeOrderCancelRequest        = "F"
	MsgTypeOrderCancelReplaceRequest = "G"
	MsgTypeOrderCancelReject         = "9"
	MsgTypeOrderStatusRequest        = "H"
	MsgTypeOrderMassStatusRequest    = "AF"
	MsgTypeOrderMassCancelRequest    = "q"
	MsgTypeOrderMassCancelReport     = "r"
	MsgTypeExecutionReport           = "8"

	MsgTypeRequestForPositions    = "AN"
	MsgTypeRequestForPositionsAck = "AO"
	MsgTypePositionReport         = "AP"

	MsgTypeTradeCaptureReportRequest    = "AD"
	MsgTypeTradeCaptureReportRequestAck = "AQ"
	MsgTypeTradeCaptureReport           = "AE"

	MsgTypeMassQuote        = "i"
	MsgTypeMassQuoteAck     = "b"
	MsgTypeQuoteCancel      = "Z"
	MsgTypeQuoteStatusReport = "AI"
)

// ReqIDKind identifies one of the ten request-id families the router
// translates independently (spec §3).
type ReqIDKind int

const (
	ReqIDSecurity ReqIDKind = iota
	ReqIDSecurityStatus
	ReqIDTradSes
	ReqIDMarketData
	ReqIDOrdStatus
	ReqIDMassStatus
	ReqIDPosition
	ReqIDTradeRequest
	ReqIDClOrd
	ReqIDMassCancelClOrd
)

var reqIDKindNames = map[ReqIDKind]string{
	ReqIDSecurity:        "security_req_id",
	ReqIDSecurityStatus:  "security_status_req_id",
	ReqIDTradSes:         "trad_ses_req_id",
	ReqIDMarketData:      "md_req_id",
	ReqIDOrdStatus:       "ord_status_req_id",
	ReqIDMassStatus:      "mass_status_req_id",
	ReqIDPosition:        "pos_req_id",
	ReqIDTradeRequest:    "trade_request_id",
	ReqIDClOrd:           "cl_ord_id",
	ReqIDMassCancelClOrd: "mass_cancel_cl_ord_id",
}

func (k ReqIDKind) String() string { return reqIDKindNames[k] }

// reqIDTag maps a request kind to the body tag that carries it. cl_ord_id
// and mass_cancel_cl_ord_id share a tag number (11) but are tracked as
// independent kinds because they appear on disjoint message types.
var reqIDTag = map[ReqIDKind]int{
	ReqIDSecurity:        TagSecurityReqID,
	ReqIDSecurityStatus:  TagSecurityStatusReqID,
	ReqIDTradSes:         TagTradSesReqID,
	ReqIDMarketData:      TagMDReqID,
	ReqIDOrdStatus:       TagClOrdID,
	ReqIDMassStatus:      TagMassStatusReqID,
	ReqIDPosition:        TagPosReqID,
	ReqIDTradeRequest:    TagTradeRequestID,
	ReqIDClOrd:           TagClOrdID,
	ReqIDMassCancelClOrd: TagClOrdID,
}

// reqIDKindByMsgType maps a request-bearing message type to the req-id
// kind it carries. Used by both client session validation and router
// translation so the two never disagree about which kind a message is.
var reqIDKindByMsgType = map[string]ReqIDKind{
	MsgTypeSecurityListRequest:       ReqIDSecurity,
	MsgTypeSecurityDefinitionRequest: ReqIDSecurity,
	MsgTypeSecurityStatusRequest:     ReqIDSecurityStatus,
	MsgTypeTradingSessionStatusRequest: ReqIDTradSes,
	MsgTypeMarketDataRequest:         ReqIDMarketData,
	MsgTypeOrderStatusRequest:        ReqIDOrdStatus,
	MsgTypeOrderMassStatusRequest:    ReqIDMassStatus,
	MsgTypeRequestForPositions:       ReqIDPosition,
	MsgTypeTradeCaptureReportRequest: ReqIDTradeRequest,
	MsgTypeNewOrderSingle:            ReqIDClOrd,
	MsgTypeOrderCancelRequest:        ReqIDClOrd,
	MsgTypeOrderCancelReplaceRequest: ReqIDClOrd,
	MsgTypeOrderMassCancelRequest:    ReqIDMassCancelClOrd,
}

// ReqIDKindForMsgType returns the request-id kind carried by msgType, and
// whether msgType carries one at all.
func ReqIDKindForMsgType(msgType string) (ReqIDKind, bool) {
	k, ok := reqIDKindByMsgType[msgType]
	return k, ok
}

// keepAliveKinds marks the req-id kinds that subscribe to more than one
// response (market-data, positions, security-list snapshot followed by
// updates) rather than a one-shot ack (spec §4.4.b). cl_ord_id is
// deliberately absent: its translation entry outlives any single
// response and is released only via the order-state map reaching a
// terminal status (spec §4.4.c), not by this policy.
var keepAliveKinds = map[ReqIDKind]bool{
	ReqIDSecurity:   true,
	ReqIDMarketData: true,
	ReqIDPosition:   true,
}

// IsKeepAliveKind reports whether kind represents a subscription that
// expects further responses after the first, rather than a one-shot ack.
func IsKeepAliveKind(kind ReqIDKind) bool { return keepAliveKinds[kind] }

// keepAliveCancelMsgType maps a keep-alive kind to the request message
// type reused to best-effort cancel it upstream when the owning client
// session tears down (spec §4.4 "Per-session teardown").
var keepAliveCancelMsgType = map[ReqIDKind]string{
	ReqIDSecurity:   MsgTypeSecurityListRequest,
	ReqIDMarketData: MsgTypeMarketDataRequest,
	ReqIDPosition:   MsgTypeRequestForPositions,
}

// ReqID returns the req-id value for kind on m, if present.
func (m *Message) ReqID(kind ReqIDKind) (string, bool) {
	tag, ok := reqIDTag[kind]
	if !ok {
		return "", false
	}
	return m.Get(tag)
}

// SetReqID rewrites the req-id field for kind on m.
func (m *Message) SetReqID(kind ReqIDKind, value string) {
	tag, ok := reqIDTag[kind]
	if !ok {
		return
	}
	m.Set(tag, value)
}

// cancelLikeMsgTypes carries an OrigClOrdID alongside
// ClOrdID (cancel and cancel/replace): both must be rewritten, but only
// ClOrdID is the "new" request id registered with the router; OrigClOrdID
// is looked up against an existing mapping instead of minted fresh.
var cancelLikeMsgTypes = map[string]bool{
	MsgTypeOrderCancelRequest:        true,
	MsgTypeOrderCancelReplaceRequest: true,
}

// IsCancelLike reports whether msgType references a prior order via
// OrigClOrdID rather than minting a new cl_ord_id only.
func IsCancelLike(msgType string) bool { return cancelLikeMsgTypes[msgType] }
