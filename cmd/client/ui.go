package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/cloudzz-dev/chatsync/internal/client/config"
	"github.com/cloudzz-dev/chatsync/internal/client/engine"
	"github.com/cloudzz-dev/chatsync/internal/client/models"
	"github.com/cloudzz-dev/chatsync/internal/client/session"
	"github.com/cloudzz-dev/chatsync/internal/client/store"
	"github.com/sirupsen/logrus"
)

// --- Styles ---

var (
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#10B981")
	mutedColor     = lipgloss.Color("#9CA3AF")
	errorColor     = lipgloss.Color("#EF4444")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(secondaryColor).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	ownMessageStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	otherMessageStyle = lipgloss.NewStyle().
				Foreground(primaryColor)

	readStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)
)

// --- View State ---

type viewState int

const (
	viewToken viewState = iota
	viewConversations
	viewChat
)

// taskMsg carries one sync-core task into Update.
type taskMsg func()

type startMsg struct{ token string }

// --- Main Model ---

type model struct {
	ctx context.Context
	eng *engine.Engine
	cfg *config.Config
	log logrus.FieldLogger

	token      string
	tokenInput textinput.Model

	selected     int
	chatID       string
	messageInput textinput.Model
	chatViewport viewport.Model
	notice       string

	view   viewState
	width  int
	height int
}

func initialModel(ctx context.Context, eng *engine.Engine, cfg *config.Config, token string) model {
	tokenInput := textinput.New()
	tokenInput.Placeholder = "Access token"
	tokenInput.EchoMode = textinput.EchoPassword
	tokenInput.CharLimit = 4096
	tokenInput.Width = 40
	tokenInput.Focus()

	messageInput := textinput.New()
	messageInput.Placeholder = "Type a message..."
	messageInput.CharLimit = 1000
	messageInput.Width = 50

	return model{
		ctx:          ctx,
		eng:          eng,
		cfg:          cfg,
		log:          logrus.StandardLogger(),
		token:        token,
		tokenInput:   tokenInput,
		messageInput: messageInput,
		chatViewport: viewport.New(80, 20),
		view:         viewToken,
	}
}

// --- Init ---

func (m model) Init() tea.Cmd {
	if m.token == "" {
		return textinput.Blink
	}
	token := m.token
	return tea.Batch(textinput.Blink, func() tea.Msg { return startMsg{token: token} })
}

// --- Update ---

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case taskMsg:
		msg()
		m.clampSelection()
		m.updateChatViewport()
		return m, nil

	case startMsg:
		m.start(msg.token)
		return m, nil

	case tea.FocusMsg:
		m.eng.SetVisible(true)
		return m, nil

	case tea.BlurMsg:
		m.eng.SetVisible(false)
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chatViewport.Width = msg.Width - 4
		m.chatViewport.Height = msg.Height - 9
		m.updateChatViewport()
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.eng.Stop()
			return m, tea.Quit
		}
		switch m.view {
		case viewToken:
			return m.updateToken(msg)
		case viewConversations:
			return m.updateConversations(msg)
		case viewChat:
			return m.updateChat(msg)
		}
	}
	return m, nil
}

func (m model) updateToken(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return m, tea.Quit
	case "enter":
		token := strings.TrimSpace(m.tokenInput.Value())
		if token == "" {
			return m, nil
		}
		m.tokenInput.SetValue("")
		err := session.Save(m.cfg.Profile, session.Session{
			ServerURL: m.cfg.Server.WSURL,
			APIURL:    m.cfg.Server.APIURL,
			Token:     token,
		})
		if err != nil {
			m.log.WithError(err).Warn("save session")
		}
		m.start(token)
		return m, nil
	}
	var cmd tea.Cmd
	m.tokenInput, cmd = m.tokenInput.Update(msg)
	return m, cmd
}

func (m model) updateConversations(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	convs := m.eng.Store().Conversations()
	switch msg.String() {
	case "q":
		m.eng.Stop()
		return m, tea.Quit
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(convs)-1 {
			m.selected++
		}
	case "r":
		m.eng.ClearErr()
		m.eng.Refresh(m.ctx)
	case "ctrl+l":
		m.eng.Stop()
		if err := session.Clear(m.cfg.Profile); err != nil {
			m.log.WithError(err).Warn("clear session")
		}
		m.token = ""
		m.view = viewToken
		m.tokenInput.Focus()
	case "enter":
		if len(convs) == 0 {
			return m, nil
		}
		m.chatID = convs[m.selected].ID
		m.notice = ""
		m.eng.Open(m.ctx, m.chatID)
		m.view = viewChat
		m.messageInput.Focus()
		m.updateChatViewport()
		m.chatViewport.GotoBottom()
	}
	return m, nil
}

func (m model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.eng.Close()
		m.chatID = ""
		m.view = viewConversations
		m.messageInput.Blur()
		return m, nil
	case "enter":
		_, err := m.eng.Send(m.ctx, m.chatID, m.messageInput.Value())
		switch {
		case errors.Is(err, store.ErrEmptyMessage):
		case err != nil:
			m.notice = err.Error()
		default:
			m.notice = ""
			m.messageInput.SetValue("")
		}
		m.updateChatViewport()
		m.chatViewport.GotoBottom()
		return m, nil
	case "ctrl+r":
		if id := lastFailed(m.eng.Store().Timeline(m.chatID)); id != "" {
			if err := m.eng.Retry(m.ctx, m.chatID, id); err != nil {
				m.notice = err.Error()
			}
			m.updateChatViewport()
		}
		return m, nil
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.chatViewport, cmd = m.chatViewport.Update(msg)
		return m, cmd
	}

	before := m.messageInput.Value()
	var cmd tea.Cmd
	m.messageInput, cmd = m.messageInput.Update(msg)
	if m.messageInput.Value() != before && m.messageInput.Value() != "" {
		m.eng.Keystroke(m.chatID)
	}
	return m, cmd
}

func (m *model) start(token string) {
	m.token = token
	m.selected = 0
	m.view = viewConversations
	m.tokenInput.Blur()
	m.eng.Start(m.ctx, token)
}

func (m *model) clampSelection() {
	n := len(m.eng.Store().Conversations())
	if m.selected >= n {
		m.selected = n - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

func (m *model) updateChatViewport() {
	if m.view != viewChat || m.chatID == "" {
		return
	}
	atBottom := m.chatViewport.AtBottom()
	self := m.eng.Store().Self()
	names := memberNames(m.eng.Members(m.chatID))

	var content strings.Builder
	for _, msg := range m.eng.Store().Timeline(m.chatID) {
		style := otherMessageStyle
		sender := names.of(msg.SenderID)
		if msg.SenderID == self {
			style = ownMessageStyle
			sender = "you"
		}
		line := fmt.Sprintf("%s %s: %s",
			mutedStyle.Render(msg.CreatedAt.Local().Format("15:04")),
			style.Render(sender),
			msg.Text,
		)
		if msg.SenderID == self {
			line += " " + statusMark(msg)
		}
		content.WriteString(line + "\n")
	}
	m.chatViewport.SetContent(content.String())
	if atBottom {
		m.chatViewport.GotoBottom()
	}
}

// --- Helpers ---

type nameBook map[string]string

func memberNames(members []models.Member) nameBook {
	book := make(nameBook, len(members))
	for _, mem := range members {
		book[mem.ID] = mem.Name()
	}
	return book
}

func (b nameBook) of(id string) string {
	if name, ok := b[id]; ok {
		return name
	}
	return id
}

// statusMark renders the delivery state of one of our own messages.
func statusMark(msg models.Message) string {
	switch {
	case msg.LocalStatus == models.LocalFailed:
		return errorStyle.Render("! failed, ctrl+r to retry")
	case msg.LocalStatus == models.LocalSending:
		return mutedStyle.Render("…")
	case msg.DeliveryStatus >= models.Read:
		return readStyle.Render("✓✓")
	case msg.DeliveryStatus >= models.Delivered:
		return mutedStyle.Render("✓✓")
	default:
		return mutedStyle.Render("✓")
	}
}

// lastFailed returns the client id of the newest failed send.
func lastFailed(timeline []models.Message) string {
	for i := len(timeline) - 1; i >= 0; i-- {
		if timeline[i].Optimistic() && timeline[i].LocalStatus == models.LocalFailed {
			return timeline[i].ClientID
		}
	}
	return ""
}

// title names a conversation after the other side of a DM, or its size.
func title(c models.Conversation, self string, names nameBook) string {
	if c.Type == models.Group {
		return fmt.Sprintf("Group (%d)", len(c.Members))
	}
	for _, id := range c.Members {
		if id != self {
			return names.of(id)
		}
	}
	return "DM " + c.ID
}

func typingLine(names nameBook, ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	who := make([]string, len(ids))
	for i, id := range ids {
		who[i] = names.of(id)
	}
	if len(who) == 1 {
		return who[0] + " is typing…"
	}
	return strings.Join(who, ", ") + " are typing…"
}

func ago(t time.Time, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return t.Local().Format("Jan 2")
}

// --- View ---

func (m model) View() string {
	switch m.view {
	case viewToken:
		return m.tokenView()
	case viewConversations:
		return m.conversationsView()
	case viewChat:
		return m.chatView()
	}
	return ""
}

func (m model) tokenView() string {
	var s strings.Builder

	s.WriteString("\n\n")
	s.WriteString(titleStyle.Render("╔═══════════════════════════════╗\n║         CHATSYNC              ║\n╚═══════════════════════════════╝"))
	s.WriteString("\n\n")
	s.WriteString(mutedStyle.Render("  Server: " + m.cfg.Server.WSURL + "\n"))
	s.WriteString(mutedStyle.Render("  Profile: " + m.cfg.Profile + "\n\n"))
	s.WriteString("  Token:\n")
	s.WriteString("  " + m.tokenInput.View() + "\n\n")
	s.WriteString(helpStyle.Render("  Enter to connect • Esc to quit\n"))
	return s.String()
}

func (m model) statusLine() string {
	conn := m.eng.Conn()
	state := mutedStyle.Render(conn.State.String())
	if conn.Authed {
		state = selectedStyle.Render(conn.State.String())
	}
	line := "  " + state
	if err := m.eng.Err(); err != nil {
		var authErr *engine.AuthError
		if errors.As(err, &authErr) {
			line += "  " + errorStyle.Render(err.Error()+" (ctrl+l to change token)")
		} else {
			line += "  " + errorStyle.Render(err.Error())
		}
	}
	return line
}

func (m model) conversationsView() string {
	var s strings.Builder
	st := m.eng.Store()

	header := "CHATSYNC"
	if n := st.UnreadTotal(); n > 0 {
		header = fmt.Sprintf("CHATSYNC (%d)", n)
	}
	s.WriteString(titleStyle.Render(header))
	s.WriteString("\n")
	s.WriteString(m.statusLine())
	s.WriteString("\n\n")

	convs := st.Conversations()
	if len(convs) == 0 {
		s.WriteString(mutedStyle.Render("  No conversations yet.\n"))
	}
	now := time.Now()
	for i, c := range convs {
		names := memberNames(m.eng.Members(c.ID))
		prefix := "  "
		style := lipgloss.NewStyle()
		if i == m.selected {
			prefix = "→ "
			style = selectedStyle
		}

		icon := "💬"
		if c.Type == models.Group {
			icon = "👥"
		}
		name := title(c, st.Self(), names)
		if c.Type == models.Direct {
			for _, id := range c.Members {
				if id != st.Self() && m.eng.Presence().IsOnline(id) {
					name += " " + readStyle.Render("●")
				}
			}
		}
		if c.Unread > 0 {
			name += fmt.Sprintf(" (%d)", c.Unread)
		}
		if c.Muted {
			name += " 🔕"
		}

		detail := c.Last.Text
		if c.Last.SenderID != "" && c.Last.SenderID == st.Self() {
			detail = "you: " + detail
		}
		if t := typingLine(names, m.eng.Typing().Typing(c.ID)); t != "" {
			detail = t
		}

		s.WriteString(style.Render(fmt.Sprintf("%s%s %s", prefix, icon, name)))
		s.WriteString(mutedStyle.Render(fmt.Sprintf("  %s %s\n", ago(c.Last.At, now), detail)))
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render("  ↑/↓ navigate • Enter to open • r to refresh • ctrl+l to log out • q to quit"))
	return s.String()
}

func (m model) chatView() string {
	var s strings.Builder
	st := m.eng.Store()
	c, _ := st.Conversation(m.chatID)
	names := memberNames(m.eng.Members(m.chatID))

	s.WriteString(titleStyle.Render("💬 " + title(c, st.Self(), names)))
	s.WriteString(m.statusLine())
	s.WriteString("\n")
	s.WriteString(strings.Repeat("─", max(m.width-2, 0)))
	s.WriteString("\n")
	s.WriteString(m.chatViewport.View())
	s.WriteString("\n")
	s.WriteString(mutedStyle.Render(typingLine(names, m.eng.Typing().Typing(m.chatID))))
	s.WriteString("\n")
	s.WriteString(strings.Repeat("─", max(m.width-2, 0)))
	s.WriteString("\n")
	s.WriteString(m.messageInput.View())
	s.WriteString("\n")
	if m.notice != "" {
		s.WriteString(errorStyle.Render(m.notice) + "\n")
	}
	s.WriteString(helpStyle.Render("Enter to send • ctrl+r to retry • Esc to go back"))
	return s.String()
}
