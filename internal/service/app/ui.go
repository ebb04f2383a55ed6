package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gorilla/websocket"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	"nft_messenger/internal/model"
	"nft_messenger/internal/utils/log"
)

type (
	// UI is the terminal inbox: peers on the left, the selected conversation
	// on the right and a message input at the bottom.
	UI struct {
		client *App

		app   *tview.Application
		peers *tview.List
		chat  *tview.TextView
		input *tview.InputField

		mu       sync.Mutex
		messages []*model.Message
		peer     string
	}
)

func NewUI(client *App) *UI {
	return &UI{
		client: client,
		app:    tview.NewApplication(),
	}
}

// Run blocks until the user quits. The inbox is reloaded every interval and
// whenever the backend reports a new index entry for this account.
func (u *UI) Run(ctx context.Context, interval time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	u.build()

	go u.reload(ctx)
	go u.poll(ctx, interval)
	go u.listen(ctx)

	return u.app.Run()
}

func (u *UI) build() {
	u.peers = tview.NewList().ShowSecondaryText(false)
	u.peers.SetBorder(true).SetTitle(" Conversations ")
	u.peers.SetSelectedFunc(func(_ int, main, _ string, _ rune) {
		u.selectPeer(main)
		u.app.SetFocus(u.input)
	})

	u.chat = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	u.chat.SetBorder(true).SetTitle(" Inbox ")

	u.input = tview.NewInputField().
		SetLabel("Message: ").
		SetFieldWidth(0)
	u.input.SetBorder(true).SetTitle(" /to <address> selects a recipient ")

	u.input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := strings.TrimSpace(u.input.GetText())
		if text == "" {
			return
		}
		u.input.SetText("")

		if to, ok := strings.CutPrefix(text, "/to "); ok {
			u.selectPeer(strings.ToLower(strings.TrimSpace(to)))
			return
		}
		go u.send(text)
	})

	u.app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Key() == tcell.KeyTab {
			if u.input.HasFocus() {
				u.app.SetFocus(u.peers)
			} else {
				u.app.SetFocus(u.input)
			}
			return nil
		}
		return ev
	})

	body := tview.NewFlex().
		AddItem(u.peers, 46, 0, false).
		AddItem(u.chat, 0, 1, false)

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(body, 0, 1, false).
		AddItem(u.input, 3, 0, true)

	u.app.SetRoot(layout, true).SetFocus(u.input)
}

func (u *UI) send(text string) {
	u.mu.Lock()
	peer := u.peer
	u.mu.Unlock()

	if peer == "" || peer == Unknown {
		u.status("[red]select a recipient first with /to <address>[-]")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	u.status(fmt.Sprintf("[gray]sending to %s...[-]", peer))
	tokenIDs, err := u.client.Send(ctx, peer, text)
	if err != nil {
		log.Error("send message failed", zap.Error(err))
		u.status(fmt.Sprintf("[red]send failed: %s[-]", tview.Escape(err.Error())))
		return
	}
	u.status(fmt.Sprintf("[gray]minted %s[-]", strings.Join(tokenIDs, ", ")))
}

func (u *UI) poll(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.reload(ctx)
		}
	}
}

func (u *UI) listen(ctx context.Context) {
	conn, err := u.client.api.Subscribe(ctx, u.client.Address())
	if err != nil {
		log.Warn("subscribe failed, polling only", zap.Error(err))
		return
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Debug("subscription closed", zap.Error(err))
			return
		}

		var ev model.IndexEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Error("unmarshal index event failed", zap.Error(err))
			continue
		}
		log.Debug("index event", zap.Strings("tokenIds", ev.TokenIDs), zap.String("sender", ev.Sender))
		u.reload(ctx)
	}
}

func (u *UI) reload(ctx context.Context) {
	msgs, err := u.client.Inbox(ctx)
	if err != nil {
		log.Error("load inbox failed", zap.Error(err))
		return
	}

	u.mu.Lock()
	u.messages = msgs
	u.mu.Unlock()

	u.app.QueueUpdateDraw(u.render)
}

// render must run on the UI goroutine.
func (u *UI) render() {
	u.mu.Lock()
	defer u.mu.Unlock()

	current := u.peer
	u.peers.Clear()
	for _, p := range conversationPeers(u.client, u.messages) {
		u.peers.AddItem(p, "", 0, nil)
	}
	if current == "" && u.peers.GetItemCount() > 0 {
		current, _ = u.peers.GetItemText(0)
		u.peer = current
	}
	if idx := u.peers.FindItems(current, "", false, true); len(idx) > 0 {
		u.peers.SetCurrentItem(idx[0])
	}

	u.chat.Clear()
	u.chat.SetTitle(fmt.Sprintf(" Chat with %s ", current))
	me := strings.ToLower(u.client.Address())
	for _, m := range u.messages {
		if u.client.Peer(m) != current {
			continue
		}
		who := fmt.Sprintf("[green]%s:[-]", short(m.Sender))
		if m.Sender == me {
			who = "[yellow]You:[-]"
		}
		fmt.Fprintf(u.chat, "[gray]#%s[-] %s %s\n", m.TokenID, who, tview.Escape(m.Plaintext))
	}
	u.chat.ScrollToEnd()
}

func (u *UI) selectPeer(peer string) {
	u.mu.Lock()
	u.peer = peer
	u.mu.Unlock()
	u.app.QueueUpdateDraw(u.render)
}

func (u *UI) status(line string) {
	u.app.QueueUpdateDraw(func() {
		fmt.Fprintln(u.chat, line)
		u.chat.ScrollToEnd()
	})
}

// conversationPeers lists distinct peers in order of first appearance.
func conversationPeers(client *App, msgs []*model.Message) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range msgs {
		p := client.Peer(m)
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func short(address string) string {
	if len(address) < 12 {
		return address
	}
	return address[:6] + "…" + address[len(address)-4:]
}
