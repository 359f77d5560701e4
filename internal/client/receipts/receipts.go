// Package receipts applies delivery and read receipts to timelines and holds
// on to receipts that arrive before the message they refer to.
package receipts

import (
	"github.com/cloudzz-dev/chatsync/internal/client/models"
)

// Timeline is the view of the message store the reconciler needs.
type Timeline interface {
	// Lookup reports a message's delivery status and whether the local user
	// wrote it. found is false when the message is not in the timeline.
	Lookup(chatID, messageID string) (status models.DeliveryStatus, mine, found bool)
	SetStatus(chatID, messageID string, status models.DeliveryStatus)
}

type Reconciler struct {
	delivered map[string]map[string]struct{}
	read      map[string]map[string]struct{}
}

func New() *Reconciler {
	return &Reconciler{
		delivered: make(map[string]map[string]struct{}),
		read:      make(map[string]map[string]struct{}),
	}
}

// Apply records status for every id in ids. Own messages already in the
// timeline advance, never regress; unknown ids are buffered until Claim.
// It returns the ids whose status changed.
func (r *Reconciler) Apply(tl Timeline, chatID string, ids []string, status models.DeliveryStatus) []string {
	if status < models.Delivered {
		return nil
	}
	var changed []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		current, mine, found := tl.Lookup(chatID, id)
		if !found {
			r.buffer(chatID, id, status)
			continue
		}
		if !mine || current >= status {
			continue
		}
		tl.SetStatus(chatID, id, status)
		changed = append(changed, id)
	}
	return changed
}

// Claim removes any buffered receipts for the message and returns the highest
// of them.
func (r *Reconciler) Claim(chatID, messageID string) (models.DeliveryStatus, bool) {
	status, ok := models.Sent, false
	if take(r.delivered, chatID, messageID) {
		status, ok = models.Delivered, true
	}
	if take(r.read, chatID, messageID) {
		status, ok = models.Read, true
	}
	return status, ok
}

// Pending returns the number of buffered delivered and read receipts for a chat.
func (r *Reconciler) Pending(chatID string) (delivered, read int) {
	return len(r.delivered[chatID]), len(r.read[chatID])
}

// Reset drops every buffer.
func (r *Reconciler) Reset() {
	r.delivered = make(map[string]map[string]struct{})
	r.read = make(map[string]map[string]struct{})
}

func (r *Reconciler) buffer(chatID, messageID string, status models.DeliveryStatus) {
	target := r.delivered
	if status == models.Read {
		target = r.read
	}
	set, ok := target[chatID]
	if !ok {
		set = make(map[string]struct{})
		target[chatID] = set
	}
	set[messageID] = struct{}{}
}

func take(buf map[string]map[string]struct{}, chatID, messageID string) bool {
	set, ok := buf[chatID]
	if !ok {
		return false
	}
	if _, ok := set[messageID]; !ok {
		return false
	}
	delete(set, messageID)
	if len(set) == 0 {
		delete(buf, chatID)
	}
	return true
}
