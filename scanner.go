package xmrgateway

import (
	"context"
	"time"

	"github.com/xmrgateway/xmrgateway/chainrpc"
	"github.com/xmrgateway/xmrgateway/invoices"
	"github.com/xmrgateway/xmrgateway/moneroutil"
	"github.com/xmrgateway/xmrgateway/txscan"
)

// loop is the Scanner Loop (component E): a single long-running task
// structured as the teacher's familiar "tick, then sleep, until told to
// stop" shape (grounded on lnwallet/dcrwallet/spvsync.go's start
// goroutine), not as a chain of callbacks. lastScanned is this gateway's
// resolved starting height, computed once by Run before the task starts.
func (g *Gateway) loop(ctx context.Context, lastScanned uint64) {
	defer g.wg.Done()

	for {
		next, err := g.tick(ctx, lastScanned)
		if err != nil {
			if isFatal(err) {
				gtwyLog.Errorf("scanner: fatal error, stopping: %v", err)
				g.setFailed()
				return
			}
			scanLog.Warnf("tick failed, will retry next interval: %v", err)
			// lastScanned is unchanged: a transient failure never
			// advances the checkpoint (spec §4.E.1, §7).
		} else {
			lastScanned = next
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(g.cfg.scanInterval):
		}
	}
}

// tick runs exactly one scan cycle per spec §4.E, returning the new
// last-scanned height on success. A transient error (RPC, storage) leaves
// the checkpoint untouched; the caller is expected to retry next interval.
func (g *Gateway) tick(ctx context.Context, lastScanned uint64) (uint64, error) {
	if g.metrics != nil {
		start := time.Now()
		var err error
		lastScanned, err = g.tickInner(ctx, lastScanned)
		g.metrics.ObserveTick(time.Since(start), err)
		return lastScanned, err
	}
	return g.tickInner(ctx, lastScanned)
}

// tickInner is the unwrapped body of tick; split out so tick can time and
// count every outcome (including early returns) through a single
// defer-free call, regardless of whether metrics are enabled.
func (g *Gateway) tickInner(ctx context.Context, lastScanned uint64) (uint64, error) {
	tip, err := g.cfg.daemon.GetHeight(ctx)
	if err != nil {
		return lastScanned, transient(err)
	}

	txpool, err := g.cfg.daemon.GetTransactionPool(ctx)
	if err != nil {
		return lastScanned, transient(err)
	}

	live, err := g.loadLiveInvoices()
	if err != nil {
		return lastScanned, fatal(err)
	}

	touched := make(map[invoices.ID]bool)

	lastScanned, err = g.checkReorg(ctx, lastScanned, live, touched)
	if err != nil {
		return lastScanned, transient(err)
	}

	for h := lastScanned + 1; h <= tip; h++ {
		block, err := g.cfg.daemon.GetBlock(ctx, h)
		if err != nil {
			return lastScanned, transient(err)
		}
		if err := g.scanBlock(block, live, touched); err != nil {
			return lastScanned, transient(err)
		}
	}
	lastScanned = tip

	if err := g.scanTxpool(txpool, tip, live, touched); err != nil {
		return lastScanned, transient(err)
	}

	g.setSnapshotHeight(tip)
	for id, inv := range live {
		if inv.CurrentHeight != tip {
			inv.CurrentHeight = tip
			touched[id] = true
		}
	}

	return lastScanned, g.commitTick(live, touched, tip)
}

// loadLiveInvoices snapshots every currently-stored invoice, keyed by ID,
// for this tick's use. Mutations are made to these clones; only invoices
// found to have observably changed are written back at commit time.
func (g *Gateway) loadLiveInvoices() (map[invoices.ID]*invoices.Invoice, error) {
	ids := g.cfg.store.InvoiceIDs()
	out := make(map[invoices.ID]*invoices.Invoice, len(ids))
	for _, id := range ids {
		inv, ok := g.cfg.store.GetInvoice(id)
		if !ok {
			continue // removed concurrently; nothing to scan for it
		}
		out[id] = inv
	}
	return out, nil
}

// trackedAt returns the subaddress spend keys of every live invoice whose
// [creation_height, expiration_height) window intersects height (spec
// §4.E.3.a).
func (g *Gateway) trackedAt(height uint64, live map[invoices.ID]*invoices.Invoice) ([]txscan.TrackedSubaddress, error) {
	var out []txscan.TrackedSubaddress
	for id, inv := range live {
		if height < inv.CreationHeight || height >= inv.ExpirationHeight {
			continue
		}
		spend, _, err := moneroutil.DeriveSubaddress(
			g.cfg.viewKey, g.cfg.primarySpendKey, id.Subaddress.Major, id.Subaddress.Minor)
		if err != nil {
			scanLog.Warnf("failed to derive subaddress for invoice %s: %v", id, err)
			continue
		}
		out = append(out, txscan.TrackedSubaddress{SpendKey: spend, InvoiceID: id})
	}
	return out, nil
}

// scanBlock runs the Output Scanner across every transaction in block,
// applies the Output-Key Registry's burning-bug rule to each candidate
// credit, and mutates the matching live invoices in place (spec
// §4.E.3.b-d).
func (g *Gateway) scanBlock(block chainrpc.Block, live map[invoices.ID]*invoices.Invoice, touched map[invoices.ID]bool) error {
	tracked, err := g.trackedAt(block.Height, live)
	if err != nil {
		return err
	}
	if len(tracked) == 0 {
		g.cacheHeader(block.Height, block.Hash)
		return nil
	}

	for _, tx := range block.Txs {
		credits, err := txscan.Scan(g.cfg.viewKey, tracked, toScanTransaction(tx))
		if err != nil {
			scanLog.Warnf("scan failed for tx %x: %v", tx.Hash, err)
			continue
		}

		for _, c := range credits {
			g.applyMinedCredit(c, block.Height, live, touched)
		}
	}

	g.cacheHeader(block.Height, block.Hash)
	return nil
}

// applyMinedCredit applies one mined-block candidate credit against the
// output-key registry and, if accepted, the owning invoice: a brand-new
// output key becomes a new Transfer; an output key previously only seen in
// the txpool has its existing Transfer's Height filled in rather than
// duplicated (spec §4.E.4, the "replaced, not added" rule exercised by S4).
func (g *Gateway) applyMinedCredit(c txscan.Credit, height uint64, live map[invoices.ID]*invoices.Invoice, touched map[invoices.ID]bool) {
	ok, isNew := g.reg.accept(c.OutputKey, c.InvoiceID, height)
	if !ok {
		scanLog.Warnf("burning-bug: output key %x rejected for invoice %s at height %d",
			c.OutputKey, c.InvoiceID, height)
		return
	}
	if isNew {
		g.reg.record(c.OutputKey, c.InvoiceID, height)
	}
	// A re-sighting (isNew=false) still falls through to ensure the
	// invoice's Transfers reflects this credit: a reorg rewind can have
	// dropped the transfer while the registry's permanent record of
	// (key, invoice, height) survived (see checkReorg's doc comment), in
	// which case an identical re-mining must restore it, not no-op.
	delete(g.txpoolTx, c.OutputKey)

	inv, ok := live[c.InvoiceID]
	if !ok {
		return
	}

	h := height
	for i := range inv.Transfers {
		if inv.Transfers[i].OutputKey == c.OutputKey {
			if inv.Transfers[i].Height == nil {
				inv.Transfers[i].Height = &h
				inv.Transfers[i].Amount = c.Amount
				touched[c.InvoiceID] = true
			}
			return
		}
	}

	if c.TimeLocked {
		// Output key recorded above for duplicate detection, but per
		// spec §4.B.6 a time-locked output is never credited.
		return
	}

	inv.Transfers = append(inv.Transfers, invoices.Transfer{
		Amount:    c.Amount,
		Height:    &h,
		OutputKey: c.OutputKey,
	})
	touched[c.InvoiceID] = true
}

// scanTxpool processes every txpool transaction not previously credited,
// adding provisional (Height=nil) transfers, and withdraws any previously
// provisional transfer whose originating transaction has left the txpool
// without having been mined this tick (spec §4.E.4).
func (g *Gateway) scanTxpool(entries []chainrpc.TxpoolEntry, tip uint64, live map[invoices.ID]*invoices.Invoice, touched map[invoices.ID]bool) error {
	tracked, err := g.trackedAt(tip, live)
	if err != nil {
		return err
	}

	presentHashes := make(map[[32]byte]bool, len(entries))
	seenThisTick := make(map[[32]byte]invoices.ID)

	if len(tracked) > 0 {
		for _, e := range entries {
			presentHashes[e.Tx.Hash] = true

			credits, err := txscan.Scan(g.cfg.viewKey, tracked, toScanTransaction(e.Tx))
			if err != nil {
				scanLog.Warnf("txpool scan failed for tx %x: %v", e.Tx.Hash, err)
				continue
			}

			for _, c := range credits {
				if c.TimeLocked {
					continue
				}
				if prevID, ok := seenThisTick[c.OutputKey]; ok && prevID != c.InvoiceID {
					scanLog.Warnf("burning-bug: output key %x seen in txpool for both %s and %s",
						c.OutputKey, prevID, c.InvoiceID)
					continue
				}
				seenThisTick[c.OutputKey] = c.InvoiceID

				inv, ok := live[c.InvoiceID]
				if !ok || inv.HasOutputKey(c.OutputKey) {
					continue // already a confirmed or provisional transfer
				}

				inv.Transfers = append(inv.Transfers, invoices.Transfer{
					Amount:    c.Amount,
					Height:    nil,
					OutputKey: c.OutputKey,
				})
				g.txpoolTx[c.OutputKey] = e.Tx.Hash
				touched[c.InvoiceID] = true
			}
		}
	} else {
		for _, e := range entries {
			presentHashes[e.Tx.Hash] = true
		}
	}

	for id, inv := range live {
		kept := inv.Transfers[:0:0]
		changed := false
		for _, t := range inv.Transfers {
			if t.Height == nil {
				txHash, known := g.txpoolTx[t.OutputKey]
				if !known || !presentHashes[txHash] {
					// Withdrawn: the transaction that would have
					// justified this provisional transfer is no
					// longer in the txpool, and wasn't mined this
					// tick (that would have removed it from
					// g.txpoolTx via applyMinedCredit).
					changed = true
					delete(g.txpoolTx, t.OutputKey)
					continue
				}
			}
			kept = append(kept, t)
		}
		if changed {
			inv.Transfers = kept
			touched[id] = true
		}
	}

	return nil
}

// commitTick persists every invoice touched this tick, advances the
// checkpoint, flushes once, publishes changed invoices to the bus,
// expires invoices if configured to, and enqueues callback deliveries —
// spec §4.E steps 6-9, in order.
func (g *Gateway) commitTick(live map[invoices.ID]*invoices.Invoice, touched map[invoices.ID]bool, tip uint64) error {
	var changed []*invoices.Invoice

	for id := range touched {
		inv := live[id]
		old, ok := g.cfg.store.GetInvoice(id)
		if ok && old.Equal(inv) {
			continue // no observable change; nothing to persist or publish
		}
		if _, err := g.cfg.store.UpdateInvoice(id, inv); err != nil {
			return err
		}
		changed = append(changed, inv)
	}

	g.cfg.store.SetHeight(tip)
	if err := g.cfg.store.Flush(); err != nil {
		return err
	}

	if g.metrics != nil {
		g.metrics.ScanHeight.Set(float64(tip))
		g.metrics.InvoicesTracked.Set(float64(len(live)))
	}

	for _, inv := range changed {
		g.bus.Publish(inv.ID, inv)
	}

	if g.cfg.deleteExpired {
		// Checked against every live invoice, not just `changed`: an
		// invoice can already satisfy IsExpired() (CurrentHeight
		// caught up to ExpirationHeight on a prior tick, e.g.
		// expiration_in=0) without this tick having touched it.
		for _, inv := range live {
			if inv.IsExpired() && !inv.AwaitingConfirmation() {
				g.expireInvoice(inv)
			}
		}
	}

	for _, inv := range changed {
		if inv.Callback == "" || g.cbq == nil {
			continue
		}
		if err := g.cbq.TryEnqueue(inv.Callback, inv); err != nil {
			scanLog.Warnf("callback enqueue for invoice %s dropped: %v", inv.ID, err)
		}
	}

	if g.metrics != nil && g.cbq != nil {
		g.metrics.CallbackQueueDepth.Set(float64(g.cbq.Len()))
	}

	return nil
}

// expireInvoice removes an expired, unpaid invoice and releases its
// subaddress index, per spec §3's lifecycle rule ("removed ... lazily
// (expired-and-not-awaiting-confirmation, if the delete-expired policy is
// enabled)").
func (g *Gateway) expireInvoice(inv *invoices.Invoice) {
	if _, err := g.cfg.store.RemoveInvoice(inv.ID); err != nil {
		scanLog.Warnf("failed to remove expired invoice %s: %v", inv.ID, err)
		return
	}
	g.alloc.Release(inv.ID.Subaddress.Minor)
	g.bus.Close(inv.ID)
}

// cacheHeader records height's block hash for the reorg check, evicting
// anything older than reorgWindowSize blocks behind it.
func (g *Gateway) cacheHeader(height uint64, hash [32]byte) {
	g.headerCache[height] = hash
	if height > reorgWindowSize {
		delete(g.headerCache, height-reorgWindowSize)
	}
}

// checkReorg implements spec §4.E.2: if the cached hash for lastScanned no
// longer matches the daemon's current view, the chain has reorganized.
// It walks the cached window back to the fork point and rewinds
// lastScanned to just before it, dropping every transfer (across all
// invoices) above the fork point.
//
// It deliberately leaves the Output-Key Registry's (key, invoice, height)
// records for the rewound heights in place rather than purging them: the
// Storage contract (§4.D) exposes no delete for output keys, and erring
// toward "this key is still considered spent" is the safer default for a
// burning-bug guard. If the new fork re-mines the identical output at the
// identical height, applyMinedCredit still restores the invoice's
// Transfer (see its comment); it is only a *different* re-attribution of
// the same key that the registry continues to (correctly) refuse.
func (g *Gateway) checkReorg(ctx context.Context, lastScanned uint64, live map[invoices.ID]*invoices.Invoice, touched map[invoices.ID]bool) (uint64, error) {
	if lastScanned == 0 {
		return lastScanned, nil
	}

	from := uint64(1)
	if lastScanned > reorgWindowSize {
		from = lastScanned - reorgWindowSize + 1
	}

	headers, err := g.cfg.daemon.GetBlockHeadersRange(ctx, from, lastScanned)
	if err != nil {
		return lastScanned, err
	}

	var forkHeight uint64
	forked := false
	for _, h := range headers {
		cached, ok := g.headerCache[h.Height]
		if ok && cached != h.Hash {
			forkHeight = h.Height
			forked = true
			break
		}
	}
	if !forked {
		return lastScanned, nil
	}

	scanLog.Warnf("reorg detected at height %d; rewinding", forkHeight)

	for h := forkHeight; h <= lastScanned; h++ {
		delete(g.headerCache, h)
	}

	for id, inv := range live {
		kept := inv.Transfers[:0:0]
		changed := false
		for _, t := range inv.Transfers {
			if t.Height != nil && *t.Height >= forkHeight {
				changed = true
				delete(g.txpoolTx, t.OutputKey)
				continue
			}
			kept = append(kept, t)
		}
		if !changed {
			continue
		}
		inv.Transfers = kept
		touched[id] = true
	}

	return forkHeight - 1, nil
}

// toScanTransaction adapts a chainrpc.Transaction (the daemon's wire form)
// into a txscan.Transaction (the pure scanner's input form).
func toScanTransaction(tx chainrpc.Transaction) txscan.Transaction {
	out := txscan.Transaction{
		TxPubKey:   moneroutil.PublicKey(tx.TxPubKey),
		UnlockTime: tx.UnlockTime,
		Outputs:    make([]txscan.Output, len(tx.Outputs)),
	}
	if len(tx.AdditionalPubKeys) > 0 {
		out.AdditionalPubKeys = make([]moneroutil.PublicKey, len(tx.AdditionalPubKeys))
		for i, k := range tx.AdditionalPubKeys {
			out.AdditionalPubKeys[i] = moneroutil.PublicKey(k)
		}
	}
	for i, o := range tx.Outputs {
		out.Outputs[i] = txscan.Output{
			Key:             moneroutil.PublicKey(o.Key),
			EncryptedAmount: o.EncryptedAmount,
			ClearAmount:     o.ClearAmount,
			RingCT:          o.RingCT,
			HasViewTag:      o.HasViewTag,
			ViewTag:         o.ViewTag,
		}
	}
	return out
}
