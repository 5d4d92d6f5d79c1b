package escrow_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/xraph/escrow"
	statemem "github.com/xraph/escrow/state/memory"
	"github.com/xraph/escrow/store/memory"
	"github.com/xraph/escrow/transfer"
	"github.com/xraph/escrow/types"
)

func TestScenarios(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Escrow Scenarios Suite")
}

var _ = Describe("Storage escrow", func() {
	var (
		ctx   context.Context
		e     *escrow.Escrow
		st    *statemem.Store
		payer *transfer.Recorder
	)

	BeforeEach(func() {
		ctx = context.Background()
		st = statemem.New()
		payer = transfer.NewRecorder()
		e = escrow.New(memory.New(),
			escrow.WithByteCost(types.NewBalance(100)),
			escrow.WithMinStorageBytes(2000),
			escrow.WithState(st),
			escrow.WithPayer(payer),
		)
		Expect(e.Start(ctx)).To(Succeed())
	})

	AfterEach(func() {
		Expect(e.Stop()).To(Succeed())
	})

	Describe("registration", func() {
		It("rejects a deposit below the minimum balance", func() {
			_, err := e.Deposit(ctx, escrow.DepositInput{
				Caller:   "alice",
				Attached: types.NewBalance(0),
			})
			Expect(err).To(MatchError(escrow.ErrInsufficientDeposit))

			bal, err := e.BalanceOf(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(bal).To(BeNil())
		})

		It("caps a registration-only deposit and refunds the excess", func() {
			bal, err := e.Deposit(ctx, escrow.DepositInput{
				Caller:           "alice",
				Attached:         types.NewBalance(200_500),
				RegistrationOnly: true,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(bal.Total.String()).To(Equal("200000"))
			paid, err := payer.TotalTo("alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(paid.String()).To(Equal("500"))
		})
	})

	Describe("measured writes", func() {
		BeforeEach(func() {
			_, err := e.Deposit(ctx, escrow.DepositInput{
				Caller:   "alice",
				Attached: types.NewBalance(1_000_000),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(e.Measure(ctx, "alice", putBytes("game/1", 5000))).To(Succeed())
		})

		It("commits growth the balance covers", func() {
			acct, err := e.GetAccount(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(acct.UsedBytes).To(Equal(uint64(5000)))

			bal, err := e.BalanceOf(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(bal.Total.String()).To(Equal("1000000"))
			Expect(bal.Available.String()).To(Equal("500000"))
		})

		It("rejects growth the balance cannot cover and keeps the entry", func() {
			err := e.Measure(ctx, "alice", putBytes("game/2", 6000))
			Expect(err).To(MatchError(escrow.ErrStorageNotCovered))

			acct, err := e.GetAccount(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(acct.UsedBytes).To(Equal(uint64(5000)))
			Expect(acct.StorageBalance.String()).To(Equal("1000000"))
			Expect(st.StorageUsage()).To(Equal(uint64(5000)))
		})

		It("only unregisters a non-empty entry when forced", func() {
			ok, err := e.Unregister(ctx, "alice", false)
			Expect(err).To(MatchError(escrow.ErrStorageNotEmpty))
			Expect(ok).To(BeFalse())

			ok, err = e.Unregister(ctx, "alice", true)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			bal, err := e.BalanceOf(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(bal).To(BeNil())
			Expect(st.StorageUsage()).To(Equal(uint64(5000)))
		})

		It("frees escrow when the data is deleted", func() {
			Expect(e.Measure(ctx, "alice", deleteKey("game/1"))).To(Succeed())

			bal, err := e.BalanceOf(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(bal.Available.String()).To(Equal("1000000"))
		})
	})
})
