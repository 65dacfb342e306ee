package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"carbon-quiz/internal/app"
	"carbon-quiz/internal/catalog"
	"carbon-quiz/internal/chat"
	"carbon-quiz/internal/domain"
	"carbon-quiz/internal/infra/memory"
	"carbon-quiz/internal/scoring"
	"github.com/gorilla/websocket"
)

type echoAssistant struct{}

func (echoAssistant) Reply(_ context.Context, req chat.Request) (chat.Reply, error) {
	return chat.Reply{Success: true, Message: "You are on the " + string(req.ScreenContext) + " screen."}, nil
}

func TestWebSocketQuizFlow(t *testing.T) {
	server, _ := newTestServer(t)
	conn := dial(t, server)

	readUntil(t, conn, "state", func(raw json.RawMessage) bool { return screenOf(t, raw) == "start" })

	send(t, conn, "start", nil)
	readUntil(t, conn, "state", func(raw json.RawMessage) bool {
		var st struct {
			View struct {
				Screen   string `json:"screen"`
				Question *struct {
					Number int `json:"number"`
				} `json:"question"`
			} `json:"view"`
		}
		_ = json.Unmarshal(raw, &st)
		return st.View.Screen == "quiz" && st.View.Question != nil && st.View.Question.Number == 1
	})

	for i := 0; i < 2; i++ {
		send(t, conn, "select", map[string]any{"option": 1})
		send(t, conn, "next", nil)
	}

	raw := readUntil(t, conn, "results", nil)
	var results struct {
		Total         domain.Totals `json:"total"`
		PriorityOrder []string      `json:"priority_order"`
	}
	if err := json.Unmarshal(raw, &results); err != nil {
		t.Fatalf("decode results: %v", err)
	}
	if results.Total.CO2 != 4200 || len(results.PriorityOrder) != 4 {
		t.Fatalf("unexpected results %+v", results)
	}

	readUntil(t, conn, "chat", func(raw json.RawMessage) bool {
		var st chat.State
		_ = json.Unmarshal(raw, &st)
		return st.Open && strings.HasPrefix(st.Entries[len(st.Entries)-1].Text, "🎉 Results are in!")
	})

	send(t, conn, "chat", map[string]any{"message": "where am I?"})
	readUntil(t, conn, "chat", func(raw json.RawMessage) bool {
		var st chat.State
		_ = json.Unmarshal(raw, &st)
		last := st.Entries[len(st.Entries)-1]
		return !st.Typing && last.Text == "You are on the results screen."
	})
}

func TestWebSocketRejectsInvalidCommands(t *testing.T) {
	server, _ := newTestServer(t)
	conn := dial(t, server)

	send(t, conn, "next", nil)
	readUntil(t, conn, "error", func(raw json.RawMessage) bool {
		return strings.Contains(string(raw), domain.ErrWrongScreen.Error())
	})

	send(t, conn, "select", map[string]any{})
	readUntil(t, conn, "error", func(raw json.RawMessage) bool {
		return strings.Contains(string(raw), "invalid select payload")
	})

	send(t, conn, "dance", nil)
	readUntil(t, conn, "error", func(raw json.RawMessage) bool {
		return strings.Contains(string(raw), "unsupported message type")
	})
}

func TestWebSocketSessionIsMirrored(t *testing.T) {
	server, _ := newTestServer(t)
	conn := dial(t, server)

	raw := readUntil(t, conn, "state", nil)
	var st struct {
		View struct {
			Identity string `json:"sessionId"`
		} `json:"view"`
	}
	if err := json.Unmarshal(raw, &st); err != nil || st.View.Identity == "" {
		t.Fatalf("expected session id in state, got %s", raw)
	}

	send(t, conn, "start", nil)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(server.URL + "/api/context/" + st.View.Identity)
		if err != nil {
			t.Fatalf("get context: %v", err)
		}
		var snap struct {
			Screen          string          `json:"screen"`
			CurrentQuestion json.RawMessage `json:"current_question"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&snap)
		resp.Body.Close()
		if snap.Screen == "quiz" && string(snap.CurrentQuestion) != "null" && len(snap.CurrentQuestion) > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("context mirror never reached the quiz screen")
}

func newTestServer(t *testing.T) (*httptest.Server, *app.QuizService) {
	t.Helper()
	bank := catalog.Default()
	questions := memory.NewQuestionRepository(memory.NewStaticQuestionLoader(map[string][]domain.Question{
		catalog.DefaultBankID: bank.Questions[:2],
	}), time.Minute)
	service := app.NewQuizService(questions, memory.NewSnapshotStore(time.Minute), scoring.NewCalculator(bank), nil, app.WithShuffle(false))
	ws := NewWSHandler(service, echoAssistant{}, 0, nil)

	server := httptest.NewServer(NewRouter(service, ws, RouterConfig{}))
	t.Cleanup(server.Close)
	return server, service
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	msg := map[string]any{"type": typ}
	if payload != nil {
		msg["payload"] = payload
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// readUntil reads messages until one of type typ satisfies match (nil matches
// anything) and returns its payload.
func readUntil(t *testing.T, conn *websocket.Conn, typ string, match func(json.RawMessage) bool) json.RawMessage {
	t.Helper()
	for {
		var msg struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read json waiting for %s: %v", typ, err)
		}
		if msg.Type == typ && (match == nil || match(msg.Payload)) {
			return msg.Payload
		}
	}
}

func screenOf(t *testing.T, raw json.RawMessage) string {
	t.Helper()
	var st struct {
		View struct {
			Screen string `json:"screen"`
		} `json:"view"`
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	return st.View.Screen
}
