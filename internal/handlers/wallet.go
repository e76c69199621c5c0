package handlers

import (
	"time"

	"promos/internal/models"
	"promos/internal/services/ledger"
	"promos/internal/services/lots"
	"promos/internal/services/wallet"
	"promos/internal/utils"
	"promos/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// WalletHandler serves balances, earns, spends and history for one currency.
type WalletHandler struct {
	ledger  ledger.Service
	wallets wallet.Service
	lots    lots.Service
	log     logrus.FieldLogger
	now     func() time.Time
}

func NewWalletHandler(ledgerSvc ledger.Service, wallets wallet.Service, lotSvc lots.Service, log logrus.FieldLogger) *WalletHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &WalletHandler{
		ledger:  ledgerSvc,
		wallets: wallets,
		lots:    lotSvc,
		log:     log.WithField("component", "wallet_handler"),
		now:     time.Now,
	}
}

// extractUserClaims is a helper function to reduce duplication
func extractUserClaims(c *fiber.Ctx) (*models.UserClaims, error) {
	claims, ok := c.Locals("claims").(*models.UserClaims)
	if !ok || claims == nil {
		return nil, fiber.ErrUnauthorized
	}
	return claims, nil
}

// targetUser resolves whose wallet the request addresses. Users act on their
// own wallet; service and admin tokens may name another one with ?user_id=.
func targetUser(c *fiber.Ctx) (string, error) {
	claims, err := extractUserClaims(c)
	if err != nil {
		return "", err
	}
	other := c.Query("user_id")
	if other == "" || other == claims.UserID {
		if claims.UserID == "" {
			return "", fiber.ErrUnauthorized
		}
		return claims.UserID, nil
	}
	if claims.Role != models.RoleService && claims.Role != models.RoleAdmin {
		return "", fiber.ErrForbidden
	}
	return other, nil
}

// requestUser returns the target user, or "" after writing the error response.
func requestUser(c *fiber.Ctx) (string, error) {
	userID, err := targetUser(c)
	switch err {
	case nil:
		return userID, nil
	case fiber.ErrForbidden:
		return "", utils.Forbidden(c, "cannot act on another user's wallet")
	default:
		return "", utils.Unauthorized(c, "invalid claims")
	}
}

func (h *WalletHandler) GetBalance(c *fiber.Ctx) error {
	userID, respErr := requestUser(c)
	if userID == "" {
		return respErr
	}

	w, err := h.wallets.GetCachedBalance(c.UserContext(), userID, c.Params("currency"))
	if err != nil {
		return utils.DomainError(c, err)
	}
	return utils.Success(c, fiber.Map{"wallet": w})
}

func (h *WalletHandler) Earn(c *fiber.Ctx) error {
	return h.record(c, models.TransactionTypeEarn)
}

func (h *WalletHandler) Spend(c *fiber.Ctx) error {
	return h.record(c, models.TransactionTypeSpend)
}

func (h *WalletHandler) record(c *fiber.Ctx, txType models.TransactionType) error {
	userID, respErr := requestUser(c)
	if userID == "" {
		return respErr
	}

	var input validation.LedgerRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Invalid request format")
	}

	now := h.now()
	currencyID := c.Params("currency")
	v := validation.New()
	if txType == models.TransactionTypeEarn {
		v.Earn(currencyID, &input, now.UnixMilli())
	} else {
		v.Spend(currencyID, &input)
	}
	if !v.Valid() {
		return utils.Respond(c, fiber.StatusBadRequest, fiber.Map{
			"error":  "validation failed",
			"fields": v.Errors,
		})
	}

	timestamp := input.Timestamp
	if timestamp == 0 {
		timestamp = now.UnixMilli()
	}

	tx, err := h.ledger.Record(c.UserContext(), ledger.Intent{
		UserID:          userID,
		CurrencyID:      currencyID,
		Amount:          input.Amount,
		Type:            txType,
		ValidThru:       input.ValidThru,
		ConfigurationID: input.ConfigurationID,
		Timestamp:       timestamp,
	})
	if err != nil {
		return utils.DomainError(c, err)
	}
	return utils.Created(c, fiber.Map{"transaction": tx})
}

func (h *WalletHandler) GetTransactions(c *fiber.Ctx) error {
	userID, respErr := requestUser(c)
	if userID == "" {
		return respErr
	}

	txs, err := h.ledger.History(c.UserContext(), userID, c.Params("currency"))
	if err != nil {
		return utils.DomainError(c, err)
	}

	p := utils.GetPagination(c, 50, 500)
	start, end := p.Bounds(len(txs))
	return utils.Success(c, utils.NewPaginatedResponse(txs[start:end], p))
}

func (h *WalletHandler) GetLots(c *fiber.Ctx) error {
	userID, respErr := requestUser(c)
	if userID == "" {
		return respErr
	}

	activeOnly := c.QueryBool("active", true)
	found, err := h.lots.ListLots(c.UserContext(), userID, c.Params("currency"), activeOnly)
	if err != nil {
		return utils.DomainError(c, err)
	}
	if found == nil {
		found = []models.ExpirationLot{}
	}
	return utils.Success(c, fiber.Map{"lots": found})
}
