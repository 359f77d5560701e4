package api

import (
	"sort"
	"time"

	"github.com/cloudzz-dev/chatsync/internal/client/models"
	"github.com/cloudzz-dev/chatsync/internal/client/protocol"
	"github.com/tidwall/gjson"
)

// payload unwraps the optional {"data": ...} envelope.
func payload(body []byte) gjson.Result {
	root := gjson.ParseBytes(body)
	if d := root.Get("data"); d.Exists() && d.Type != gjson.Null {
		return d
	}
	return root
}

// list returns the array under key, or the payload itself when it already is one.
func list(p gjson.Result, key string) []gjson.Result {
	if p.IsArray() {
		return p.Array()
	}
	return p.Get(key).Array()
}

func idOf(r gjson.Result) string {
	if r.IsObject() && !r.Get("_id").Exists() && !r.Get("id").Exists() {
		r = r.Get("userId")
	}
	return string(protocol.ParseID(r))
}

func ids(r gjson.Result) []string {
	var out []string
	r.ForEach(func(_, v gjson.Result) bool {
		if id := idOf(v); id != "" {
			out = append(out, id)
		}
		return true
	})
	return out
}

func timeOf(r gjson.Result) time.Time {
	if !r.Exists() {
		return time.Time{}
	}
	var t protocol.Time
	if err := t.UnmarshalJSON([]byte(r.Raw)); err != nil {
		return time.Time{}
	}
	return t.Time
}

func firstOf(r gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

func parseChats(body []byte) []models.Conversation {
	var out []models.Conversation
	for _, r := range list(payload(body), "chats") {
		id := idOf(r)
		if id == "" {
			continue
		}
		c := models.Conversation{
			ID:        id,
			Type:      models.Direct,
			Members:   ids(r.Get("members")),
			DMKey:     r.Get("dmKey").String(),
			Muted:     firstOf(r, "isMuted", "muted").Bool(),
			Spam:      firstOf(r, "isSpam", "spam").Bool(),
			CreatedAt: timeOf(r.Get("createdAt")),
			Unread:    int(r.Get("unreadCount").Int()),
		}
		if r.Get("type").String() == string(models.Group) {
			c.Type = models.Group
		}
		if c.Unread < 0 {
			c.Unread = 0
		}

		// lastMessageId is either a populated message or a bare id with the
		// preview in sibling fields.
		if lm := r.Get("lastMessageId"); lm.IsObject() {
			c.Last = models.Preview{
				MessageID: idOf(lm),
				Text:      lm.Get("text").String(),
				At:        timeOf(firstOf(lm, "updatedAt", "createdAt")),
				SenderID:  idOf(lm.Get("senderId")),
			}
		} else {
			c.Last = models.Preview{
				MessageID: idOf(firstOf(r, "lastMessageMessageId", "lastMessageId")),
				Text:      r.Get("lastMessageText").String(),
				At:        timeOf(r.Get("lastMessageAt")),
				SenderID:  idOf(r.Get("lastMessageSenderId")),
			}
		}
		c.Last.Status = models.Sent
		out = append(out, c)
	}
	return out
}

func parseMessages(chatID string, body []byte) []models.Message {
	var out []models.Message
	for _, r := range list(payload(body), "messages") {
		id := idOf(r)
		if id == "" {
			continue
		}
		m := models.Message{
			ID:          id,
			ChatID:      chatID,
			SenderID:    idOf(r.Get("senderId")),
			Type:        models.MessageType(r.Get("type").String()),
			Text:        r.Get("text").String(),
			CreatedAt:   timeOf(r.Get("createdAt")),
			DeliveredTo: ids(r.Get("deliveredTo")),
			ReadBy:      ids(r.Get("readBy")),
			LocalStatus: models.LocalSent,
		}
		if m.Type == "" {
			m.Type = models.Text
		}
		if v := idOf(r.Get("chatId")); v != "" {
			m.ChatID = v
		}
		r.Get("attachments").ForEach(func(_, a gjson.Result) bool {
			m.Attachments = append(m.Attachments, models.Attachment{
				Kind: a.Get("kind").String(),
				URL:  a.Get("url").String(),
			})
			return true
		})
		// Statuses from the snapshot are only a floor; the store derives the
		// rest from the receipt sets.
		m.DeliveryStatus = models.Sent
		switch r.Get("deliveryStatus").String() {
		case "delivered":
			m.DeliveryStatus = models.Delivered
		case "read":
			m.DeliveryStatus = models.Read
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func parseMembers(body []byte) []models.Member {
	var out []models.Member
	for _, r := range list(payload(body), "members") {
		id := idOf(r)
		if id == "" {
			continue
		}
		out = append(out, models.Member{
			ID:          id,
			UserName:    r.Get("userName").String(),
			DisplayName: r.Get("displayName").String(),
			AvatarURL:   r.Get("avatarUrl").String(),
		})
	}
	return out
}
