/*
Package ledger is the transaction ledger of the promotions currency.

Every balance mutation in the platform is recorded here: the ledger validates an
Intent, asks the wallet store (and, for earns with an expiration, the lot store)
for the conditional writes that apply it, and commits them together with an
immutable Transaction record in one atomic write.

Usage:

	svc := ledger.NewService(cfg.Ledger, store, wallets, lots, log, metrics)

	tx, err := svc.Earn(ctx, ledger.Intent{
	    UserID:     "u1",
	    CurrencyID: "coins",
	    Amount:     100,
	    ValidThru:  &validThru,
	    Timestamp:  time.Now().UnixMilli(),
	})

Other flows that debit currency (prize redemption for instance) call
PrepareEarnOrSpend and Commit their own writes alongside the pending set. Apply
wraps the two in the same retry loop Record uses; the expiration sweeper commits
every lot expiry through it.

Timestamps:

(UserID, Timestamp) is the primary key of a transaction. When a commit collides
with an existing record the timestamp is moved forward by a random offset in
[1, MaxTimestampOffset] milliseconds and the commit is retried, at most
TimestampRetries times.

Retries:

Record and Apply re-read state and rebuild all writes on every attempt. Only
transient errors (ErrConflict, ErrThrottled) are retried; validation and
business rejections are returned on the first attempt.
*/
package ledger
