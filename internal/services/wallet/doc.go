/*
Package wallet is the wallet store of the currency ledger.

A wallet holds the spendable amount of one currency for one user. The package
never writes a wallet by itself: ApplyDelta turns a previously read wallet and a
delta into a repositories.WalletWrite that the ledger submits in the same atomic
write as the transaction record (and, for earns with an expiration, the lot).

Usage:

	svc := wallet.NewService(store, cache, log)

	current, err := svc.GetBalance(ctx, userID, currencyID)
	write, err := svc.ApplyDelta(current, wallet.Delta{
	    Type:   models.TransactionTypeSpend,
	    Amount: 30,
	})

Concurrency:

Updates are compare-and-swap on the amount that was read. A spend or expiry also
requires the resulting amount to stay non-negative, so an over-draw is refused
even when two spends raced past the read. Stale reads surface as
errors.ErrConflict from the ledger; over-draws as errors.ErrInsufficientFunds.

Cache Management:

GetCachedBalance is a read-through cache for read endpoints only. The ledger
always reads through GetBalance, and callers Invalidate after each commit.
*/
package wallet
