package main

// dedupWindow remembers the last N idempotency tokens per sender, mapping each
// to the message ID it produced. A client retrying after a dropped ack gets
// the original message acked again instead of a duplicate row. Owned by the
// hub loop; no locking.
type dedupWindow struct {
	cap   int
	seen  map[string]map[string]int64 // senderID -> token -> messageID
	order map[string][]string         // senderID -> tokens, oldest first
}

func newDedupWindow(cap int) *dedupWindow {
	return &dedupWindow{
		cap:   cap,
		seen:  make(map[string]map[string]int64),
		order: make(map[string][]string),
	}
}

func (d *dedupWindow) lookup(senderID, token string) (int64, bool) {
	id, ok := d.seen[senderID][token]
	return id, ok
}

func (d *dedupWindow) remember(senderID, token string, messageID int64) {
	tokens := d.seen[senderID]
	if tokens == nil {
		tokens = make(map[string]int64)
		d.seen[senderID] = tokens
	}
	if _, ok := tokens[token]; ok {
		return
	}
	tokens[token] = messageID
	d.order[senderID] = append(d.order[senderID], token)
	if len(d.order[senderID]) > d.cap {
		oldest := d.order[senderID][0]
		d.order[senderID] = d.order[senderID][1:]
		delete(tokens, oldest)
	}
}

func (d *dedupWindow) forget(senderID string) {
	delete(d.seen, senderID)
	delete(d.order, senderID)
}
