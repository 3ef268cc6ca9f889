package service

import (
	"context"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/foliodesk/internal/calculator"
	"github.com/mmynk/foliodesk/internal/models"
	"github.com/mmynk/foliodesk/internal/money"
	"github.com/mmynk/foliodesk/internal/settlement"
)

func distribute(t *testing.T, c testClients, folioID string, strategy models.StrategyKind, ids ...string) {
	t.Helper()
	_, err := c.folios.Distribute(context.Background(), connect.NewRequest(&DistributionRequest{
		FolioID:             folioID,
		DistributionRequest: models.DistributionRequest{Strategy: strategy, Targets: targets(ids...)},
	}))
	require.NoError(t, err)
}

func payParty(t *testing.T, c testClients, folioID, partyID, amount string) {
	t.Helper()
	_, err := c.folios.RegisterPayment(context.Background(), connect.NewRequest(&RegisterPaymentRequest{
		FolioID: folioID,
		PaymentRequest: models.PaymentRequest{
			Amount:  money.MustFromString(amount),
			Method:  models.PaymentCard,
			PartyID: partyID,
		},
	}))
	require.NoError(t, err)
}

func TestValidateCheckout(t *testing.T) {
	c := setupTestServer(t, calculator.CheckoutPolicy{})
	ctx := context.Background()
	folio := openFolio(t, c, "150.00")
	distribute(t, c, folio.ID, models.StrategyEqual, "guest", "company")

	resp, err := c.checkout.ValidateCheckout(ctx, connect.NewRequest(&GetFolioRequest{FolioID: folio.ID}))
	require.NoError(t, err)
	assert.False(t, resp.Msg.Validation.CanCheckout)
	require.Len(t, resp.Msg.Validation.Errors, 1)
	assert.Equal(t, calculator.IssueOutstandingBalance, resp.Msg.Validation.Errors[0].Code)
	assert.Equal(t, "150.00", resp.Msg.Validation.Errors[0].Amount.String())
	assert.False(t, resp.Msg.Policy.AllowOutstandingBalance)
}

func TestCheckout_SettledFolio(t *testing.T) {
	c := setupTestServer(t, calculator.CheckoutPolicy{})
	ctx := context.Background()
	folio := openFolio(t, c, "100.00", "50.00")
	distribute(t, c, folio.ID, models.StrategyEqual, "guest", "company")

	t.Run("blocked while a balance is owed", func(t *testing.T) {
		payParty(t, c, folio.ID, "guest", "75.00")

		_, err := c.checkout.Checkout(ctx, connect.NewRequest(&CheckoutRequest{FolioID: folio.ID}))
		assertCode(t, err, connect.CodeFailedPrecondition)

		var connectErr *connect.Error
		require.ErrorAs(t, err, &connectErr)
		assert.Equal(t, string(settlement.StateFailed), connectErr.Meta().Get(headerAttemptState))
		assert.Equal(t, "0", connectErr.Meta().Get(headerProgress))
		assert.NotEmpty(t, connectErr.Meta().Get(headerAttemptID))
	})

	t.Run("closes once paid", func(t *testing.T) {
		payParty(t, c, folio.ID, "company", "75.00")

		resp, err := c.checkout.Checkout(ctx, connect.NewRequest(&CheckoutRequest{FolioID: folio.ID}))
		require.NoError(t, err)

		attempt := resp.Msg.Attempt
		assert.Equal(t, settlement.StateCompleted, attempt.State)
		assert.Equal(t, 100, attempt.Progress)
		assert.Empty(t, attempt.PaymentKey, "no payment is needed for a settled folio")
		assert.NotEmpty(t, attempt.CloseKey)
		assert.Equal(t, models.FolioClosed, resp.Msg.Folio.Status)
		assert.Equal(t, "0.00", resp.Msg.Folio.Totals.GlobalBalance.String())
	})

	t.Run("closed folio rejects mutation", func(t *testing.T) {
		_, err := c.folios.RegisterPayment(ctx, connect.NewRequest(&RegisterPaymentRequest{
			FolioID: folio.ID,
			PaymentRequest: models.PaymentRequest{
				Amount: money.MustFromString("1.00"),
				Method: models.PaymentCash,
			},
		}))
		assertCode(t, err, connect.CodeFailedPrecondition)

		_, err = c.checkout.Checkout(ctx, connect.NewRequest(&CheckoutRequest{FolioID: folio.ID}))
		assertCode(t, err, connect.CodeFailedPrecondition)
	})
}

func TestCheckout_CollectsOutstandingBalance(t *testing.T) {
	c := setupTestServer(t, calculator.CheckoutPolicy{AllowOutstandingBalance: true})
	ctx := context.Background()
	folio := openFolio(t, c, "120.00")
	distribute(t, c, folio.ID, models.StrategySingle, "company")

	resp, err := c.checkout.Checkout(ctx, connect.NewRequest(&CheckoutRequest{
		FolioID:         folio.ID,
		CheckoutRequest: settlement.CheckoutRequest{PaymentMethod: models.PaymentTransfer},
	}))
	require.NoError(t, err)

	assert.Equal(t, settlement.StateCompleted, resp.Msg.Attempt.State)
	assert.NotEmpty(t, resp.Msg.Attempt.PaymentKey)
	assert.Equal(t, models.FolioClosed, resp.Msg.Folio.Status)
	assert.Equal(t, "120.00", resp.Msg.Folio.Totals.PaymentsTotal.String())

	company, ok := resp.Msg.Folio.Party("company")
	require.True(t, ok)
	assert.Equal(t, "120.00", company.PaidAmount.String())

	history, err := c.folios.GetHistory(ctx, connect.NewRequest(&GetHistoryRequest{FolioID: folio.ID}))
	require.NoError(t, err)
	require.NotEmpty(t, history.Msg.Events)
	assert.Equal(t, models.EventClose, history.Msg.Events[0].Kind)
}

func TestCheckout_ReclassifiesUndistributedCharges(t *testing.T) {
	c := setupTestServer(t, calculator.CheckoutPolicy{AllowOutstandingBalance: true})
	ctx := context.Background()
	folio := openFolio(t, c, "40.00")

	resp, err := c.checkout.Checkout(ctx, connect.NewRequest(&CheckoutRequest{FolioID: folio.ID}))
	require.NoError(t, err)

	closed := resp.Msg.Folio
	assert.Equal(t, models.FolioClosed, closed.Status)
	assert.Equal(t, "0.00", closed.UnassignedAmount.String())

	guest, ok := closed.Party("guest")
	require.True(t, ok)
	assert.Equal(t, "40.00", guest.AssignedAmount.String())
}

func TestCheckout_RequireFullDistribution(t *testing.T) {
	c := setupTestServer(t, calculator.CheckoutPolicy{AllowOutstandingBalance: true, RequireFullDistribution: true})
	folio := openFolio(t, c, "40.00")

	_, err := c.checkout.Checkout(context.Background(), connect.NewRequest(&CheckoutRequest{FolioID: folio.ID}))
	assertCode(t, err, connect.CodeFailedPrecondition)
}

func TestCheckout_UnknownFolio(t *testing.T) {
	c := setupTestServer(t, calculator.CheckoutPolicy{})

	_, err := c.checkout.Checkout(context.Background(), connect.NewRequest(&CheckoutRequest{FolioID: "missing"}))
	assertCode(t, err, connect.CodeNotFound)
}
