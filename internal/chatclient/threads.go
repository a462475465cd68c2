package chatclient

import (
	"sort"
	"sync"
	"time"

	"github.com/tripdesk/tripdesk-server/internal/proto"
	"github.com/tripdesk/tripdesk-server/internal/utils"
)

// Thread is one conversation as the UI sees it: the server's
// authoritative state plus any optimistic sends still in flight.
type Thread struct {
	Conversation proto.ConversationPayload
	Unread       int
}

type pendingSend struct {
	seq     int
	message proto.MessagePayload
}

// ThreadSet reconciles conversation state between the server and the
// local view. The broadcast payload always carries the full
// conversation, so reconciliation replaces the server-owned message
// list wholesale and re-appends whatever optimistic sends the
// broadcast did not cover. All methods are safe for concurrent use;
// broadcast handlers run on the realtime client's goroutine.
type ThreadSet struct {
	mu          sync.Mutex
	selfID      string
	selfIsAdmin bool
	active      string
	threads     map[string]*Thread
	pending     map[string]pendingSend
	pendingSeq  int
}

// NewThreadSet builds a thread set for the given identity. The
// identity decides which broadcast messages count as unread.
func NewThreadSet(selfID string, isAdmin bool) *ThreadSet {
	return &ThreadSet{
		selfID:      selfID,
		selfIsAdmin: isAdmin,
		threads:     make(map[string]*Thread),
		pending:     make(map[string]pendingSend),
	}
}

// Load replaces all threads with the given conversations. Unread
// counters and pending sends are discarded; this is the initial or
// post-reconnect full sync.
func (ts *ThreadSet) Load(convs []proto.ConversationPayload) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.threads = make(map[string]*Thread, len(convs))
	ts.pending = make(map[string]pendingSend)
	for _, conv := range convs {
		ts.threads[conv.ID] = &Thread{Conversation: conv}
	}
}

// Upsert inserts or replaces a single thread, keeping its unread
// counter.
func (ts *ThreadSet) Upsert(conv proto.ConversationPayload) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if existing, ok := ts.threads[conv.ID]; ok {
		existing.Conversation = conv
		return
	}
	ts.threads[conv.ID] = &Thread{Conversation: conv}
}

// SetActive marks a thread as the one on screen and clears its unread
// counter.
func (ts *ThreadSet) SetActive(conversationID string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.active = conversationID
	if t, ok := ts.threads[conversationID]; ok {
		t.Unread = 0
	}
}

// Active returns the conversation id currently on screen.
func (ts *ThreadSet) Active() string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.active
}

// Ordered returns the threads newest activity first. The order is
// computed here, not trusted from the transport.
func (ts *ThreadSet) Ordered() []Thread {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	out := make([]Thread, 0, len(ts.threads))
	for _, t := range ts.threads {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Conversation, out[j].Conversation
		if a.UpdatedAt != b.UpdatedAt {
			return a.UpdatedAt > b.UpdatedAt
		}
		return a.CreatedAt > b.CreatedAt
	})
	return out
}

// Messages returns the display list for one thread: the server's
// messages followed by pending optimistic sends in submission order.
func (ts *ThreadSet) Messages(conversationID string) []proto.MessagePayload {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	var out []proto.MessagePayload
	if t, ok := ts.threads[conversationID]; ok {
		out = append(out, t.Conversation.Messages...)
	}

	var waiting []pendingSend
	for _, p := range ts.pending {
		if p.message.ConversationID == conversationID {
			waiting = append(waiting, p)
		}
	}
	sort.Slice(waiting, func(i, j int) bool { return waiting[i].seq < waiting[j].seq })
	for _, p := range waiting {
		out = append(out, p.message)
	}
	return out
}

// OptimisticSend inserts a local placeholder message and returns its
// temp id. The placeholder stays visible until the broadcast echo
// with the matching clientTempId replaces it, or Rollback removes it.
func (ts *ThreadSet) OptimisticSend(conversationID, text, imageURL string) string {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	tempID := "tmp-" + utils.NewID()
	msg := proto.MessagePayload{
		ID:             tempID,
		ConversationID: conversationID,
		Text:           text,
		ImageURL:       imageURL,
		CreatedAt:      time.Now().UnixMilli(),
	}
	if ts.selfIsAdmin {
		msg.SenderType = "ADMIN"
		msg.SenderAdminID = ts.selfID
	} else {
		msg.SenderType = "USER"
		msg.SenderUserID = ts.selfID
	}

	ts.pendingSeq++
	ts.pending[tempID] = pendingSend{seq: ts.pendingSeq, message: msg}
	return tempID
}

// Rollback removes a pending optimistic send and hands its text back
// so the UI can restore the compose box.
func (ts *ThreadSet) Rollback(tempID string) (string, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	p, ok := ts.pending[tempID]
	if !ok {
		return "", false
	}
	delete(ts.pending, tempID)
	return p.message.Text, true
}

// ApplyNewMessage reconciles a broadcast into the thread set. The
// conversation payload is authoritative; a matching clientTempId
// clears the optimistic placeholder so the echo never duplicates it.
func (ts *ThreadSet) ApplyNewMessage(data proto.EventNewMessageData) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	conv := data.Conversation
	if data.ClientTempID != "" {
		delete(ts.pending, data.ClientTempID)
	}

	t, ok := ts.threads[conv.ID]
	if !ok {
		t = &Thread{}
		ts.threads[conv.ID] = t
	}
	t.Conversation = conv

	if conv.ID != ts.active && len(conv.Messages) > 0 {
		last := conv.Messages[len(conv.Messages)-1]
		if !ts.isOwn(last) {
			t.Unread++
		}
	}
}

// Unread returns one thread's unread counter.
func (ts *ThreadSet) Unread(conversationID string) int {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if t, ok := ts.threads[conversationID]; ok {
		return t.Unread
	}
	return 0
}

func (ts *ThreadSet) isOwn(msg proto.MessagePayload) bool {
	if ts.selfIsAdmin {
		return msg.SenderType == "ADMIN" && msg.SenderAdminID == ts.selfID
	}
	return msg.SenderType == "USER" && msg.SenderUserID == ts.selfID
}
