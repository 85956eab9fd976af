package e2e

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rjsadow/fixproxy/internal/fix"
	"github.com/rjsadow/fixproxy/internal/shared"
	"github.com/rjsadow/fixproxy/internal/wire"
)

var testUsers = map[string]shared.User{
	"alice": {Username: "alice", Password: "secret", StrategyID: 42},
}

var _ = Describe("client logon", func() {
	var h *harness

	AfterEach(func() {
		if h != nil {
			h.stop()
		}
	})

	It("completes the happy-path handshake and forwards an order upstream", func() {
		var err error
		h, err = startHarness(testUsers)
		Expect(err).NotTo(HaveOccurred())

		upstream, err := h.acceptUpstream(2 * time.Second)
		Expect(err).NotTo(HaveOccurred())

		client, err := wire.Dial(h.clientAddr)
		Expect(err).NotTo(HaveOccurred())
		defer client.Close()

		Expect(client.WriteMessage(fix.NewLogon(30, "alice", "secret"))).To(Succeed())

		ack, err := readWithTimeout(client, 2*time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(ack.MsgType).To(Equal(fix.MsgTypeLogon))

		order := fix.New(fix.MsgTypeNewOrderSingle).
			Set(fix.TagClOrdID, "client-order-1").
			Set(fix.TagSymbol, "BTC-USD")
		Expect(client.WriteMessage(order)).To(Succeed())

		upstreamOrder, err := readWithTimeout(upstream, 2*time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(upstreamOrder.MsgType).To(Equal(fix.MsgTypeNewOrderSingle))

		serverClOrdID, ok := upstreamOrder.Get(fix.TagClOrdID)
		Expect(ok).To(BeTrue())
		Expect(serverClOrdID).NotTo(Equal("client-order-1"), "the router must mint a fresh server-side id")

		parties := upstreamOrder.Parties()
		Expect(parties).To(HaveLen(1))
		Expect(parties[0].ID).To(Equal("42"), "injected party id must be str(strategy_id), not the username")

		exec := fix.New(fix.MsgTypeExecutionReport).
			Set(fix.TagClOrdID, serverClOrdID).
			Set(fix.TagOrdStatus, fix.OrdStatusFilled)
		Expect(upstream.WriteMessage(exec)).To(Succeed())

		delivered, err := readWithTimeout(client, 2*time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(delivered.MsgType).To(Equal(fix.MsgTypeExecutionReport))
		deliveredClOrdID, _ := delivered.Get(fix.TagClOrdID)
		Expect(deliveredClOrdID).To(Equal("client-order-1"), "the client must see its own id back, not the server's")
	})

	It("rejects an invalid password with a Logout and closes the session", func() {
		var err error
		h, err = startHarness(testUsers)
		Expect(err).NotTo(HaveOccurred())

		client, err := wire.Dial(h.clientAddr)
		Expect(err).NotTo(HaveOccurred())
		defer client.Close()

		Expect(client.WriteMessage(fix.NewLogon(30, "alice", "wrong-password"))).To(Succeed())

		reply, err := readWithTimeout(client, 2*time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(reply.MsgType).To(Equal(fix.MsgTypeLogout))
	})

	It("rejects a second concurrent logon for the same username", func() {
		var err error
		h, err = startHarness(testUsers)
		Expect(err).NotTo(HaveOccurred())

		first, err := wire.Dial(h.clientAddr)
		Expect(err).NotTo(HaveOccurred())
		defer first.Close()
		Expect(first.WriteMessage(fix.NewLogon(30, "alice", "secret"))).To(Succeed())
		_, err = readWithTimeout(first, 2*time.Second)
		Expect(err).NotTo(HaveOccurred())

		second, err := wire.Dial(h.clientAddr)
		Expect(err).NotTo(HaveOccurred())
		defer second.Close()
		Expect(second.WriteMessage(fix.NewLogon(30, "alice", "secret"))).To(Succeed())

		reply, err := readWithTimeout(second, 2*time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(reply.MsgType).To(Equal(fix.MsgTypeLogout))
	})

	It("rejects an order that already carries a party block", func() {
		var err error
		h, err = startHarness(testUsers)
		Expect(err).NotTo(HaveOccurred())

		_, err = h.acceptUpstream(2 * time.Second)
		Expect(err).NotTo(HaveOccurred())

		client, err := wire.Dial(h.clientAddr)
		Expect(err).NotTo(HaveOccurred())
		defer client.Close()
		Expect(client.WriteMessage(fix.NewLogon(30, "alice", "secret"))).To(Succeed())
		_, err = readWithTimeout(client, 2*time.Second)
		Expect(err).NotTo(HaveOccurred())

		order := fix.New(fix.MsgTypeNewOrderSingle).Set(fix.TagClOrdID, "client-order-2")
		order.SetSingleParty(fix.Party{ID: "someone-else", Source: fix.PartyIDSourceProprietary, Role: fix.PartyRoleClientID})
		Expect(client.WriteMessage(order)).To(Succeed())

		reply, err := readWithTimeout(client, 2*time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(reply.MsgType).To(Equal(fix.MsgTypeBusinessMessageReject))
	})

	It("best-effort cancels a live market data subscription on logout", func() {
		var err error
		h, err = startHarness(testUsers)
		Expect(err).NotTo(HaveOccurred())

		upstream, err := h.acceptUpstream(2 * time.Second)
		Expect(err).NotTo(HaveOccurred())

		client, err := wire.Dial(h.clientAddr)
		Expect(err).NotTo(HaveOccurred())
		defer client.Close()
		Expect(client.WriteMessage(fix.NewLogon(30, "alice", "secret"))).To(Succeed())
		_, err = readWithTimeout(client, 2*time.Second)
		Expect(err).NotTo(HaveOccurred())

		sub := fix.New(fix.MsgTypeMarketDataRequest).
			Set(fix.TagMDReqID, "client-md-1").
			Set(fix.TagSubscriptionRequestType, fix.SubscriptionRequestTypeSnapshotUpdates)
		Expect(client.WriteMessage(sub)).To(Succeed())

		upstreamSub, err := readWithTimeout(upstream, 2*time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(upstreamSub.MsgType).To(Equal(fix.MsgTypeMarketDataRequest))
		serverMDReqID, ok := upstreamSub.Get(fix.TagMDReqID)
		Expect(ok).To(BeTrue())

		Expect(client.WriteMessage(fix.NewLogout(""))).To(Succeed())

		cancel, err := readWithTimeout(upstream, 2*time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(cancel.MsgType).To(Equal(fix.MsgTypeMarketDataRequest))
		cancelReqID, _ := cancel.Get(fix.TagMDReqID)
		Expect(cancelReqID).To(Equal(serverMDReqID), "best-effort cancel must reference the same server-side req id")
		subType, _ := cancel.Get(fix.TagSubscriptionRequestType)
		Expect(subType).To(Equal(fix.SubscriptionRequestTypeDisable))
	})
})
