package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/celojack/blackjack"
	"github.com/lox/celojack/internal/chain"
	"github.com/lox/celojack/internal/game"
	"github.com/lox/celojack/internal/randutil"
	"github.com/lox/celojack/internal/session"
	"github.com/lox/celojack/internal/settlement"
	"github.com/lox/celojack/internal/store"
)

// testLogger creates a logger that discards output for tests
func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

type fixture struct {
	server  *Server
	http    *httptest.Server
	manager *session.Manager
	clock   *quartz.Mock
	relay   *chain.Relay
}

// newFixture serves a session manager over httptest. A positive
// confirmDelay also wires an on-chain relay simulator.
func newFixture(t *testing.T, onChain bool, confirmDelay time.Duration) *fixture {
	t.Helper()
	f := &fixture{clock: quartz.NewMock(t)}
	rules := blackjack.DefaultRules()

	var contract *settlement.Contract
	if onChain {
		relay, err := chain.NewRelay(chain.RelayConfig{
			Rules:           rules,
			StartingBalance: decimal.NewFromInt(40),
			ConfirmDelay:    confirmDelay,
			Entropy:         randutil.NewReader(77),
			Clock:           f.clock,
			Logger:          testLogger(),
		})
		require.NoError(t, err)
		relayServer := httptest.NewServer(relay)
		t.Cleanup(relayServer.Close)
		f.relay = relay

		contract = settlement.NewContract(chain.NewClient(chain.Config{
			Endpoint:       relayServer.URL,
			PollInterval:   time.Second,
			ConfirmTimeout: 30 * time.Second,
			Clock:          f.clock,
			Logger:         testLogger(),
		}), testLogger())
	}

	f.manager = session.NewManager(session.ManagerConfig{
		Rules:           rules,
		StartingCredits: decimal.NewFromInt(100),
		Entropy:         randutil.NewReader(78),
		Contract:        contract,
		Store:           store.NewMemory(),
		Clock:           f.clock,
		Logger:          testLogger(),
	})
	f.server = NewServer(f.manager, testLogger())
	f.http = httptest.NewServer(f.server.Handler())
	t.Cleanup(func() {
		f.http.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = f.server.Shutdown(ctx)
	})
	return f
}

func (f *fixture) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws?" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) *Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return &msg
}

func sendIntent(t *testing.T, conn *websocket.Conn, requestID string, req session.Request) {
	t.Helper()
	data, err := json.Marshal(req)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Message{Type: MessageTypeIntent, Data: data, RequestID: requestID}))
}

func decode[T any](t *testing.T, msg *Message) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(msg.Data, &v), "data: %s", msg.Data)
	return v
}

// expectState reads the next message and requires a state reply
func expectState(t *testing.T, conn *websocket.Conn, requestID string) session.View {
	t.Helper()
	msg := readMessage(t, conn)
	require.Equal(t, MessageTypeState, msg.Type, "data: %s", msg.Data)
	assert.Equal(t, requestID, msg.RequestID)
	return decode[StateData](t, msg).View
}

func expectError(t *testing.T, conn *websocket.Conn, code string) ErrorData {
	t.Helper()
	msg := readMessage(t, conn)
	require.Equal(t, MessageTypeError, msg.Type, "data: %s", msg.Data)
	data := decode[ErrorData](t, msg)
	assert.Equal(t, code, data.Code, data.Message)
	return data
}

func bet(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func TestServerHealth(t *testing.T) {
	f := newFixture(t, false, 0)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
	require.NoError(t, WaitForHealthy(t.Context(), f.http.URL))
}

func TestStatsEndpoint(t *testing.T) {
	f := newFixture(t, false, 0)
	conn := f.dial(t, "session=stats-1")
	readMessage(t, conn)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Live sessions: 1")
	assert.Contains(t, w.Body.String(), "Connections: 1")
}

func TestRulesEndpoint(t *testing.T) {
	f := newFixture(t, false, 0)

	resp, err := http.Get(f.http.URL + "/api/v1/rules")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rules blackjack.Rules
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rules))
	assert.Equal(t, blackjack.DefaultRules().DealerHitsSoft17, rules.DealerHitsSoft17)
	assert.True(t, rules.BlackjackPays.Equal(decimal.RequireFromString("1.5")))
}

func TestWebSocketFreeRound(t *testing.T) {
	f := newFixture(t, false, 0)
	conn := f.dial(t, "session=free-1")

	msg := readMessage(t, conn)
	require.Equal(t, MessageTypeSession, msg.Type)
	view := decode[StateData](t, msg).View
	assert.Equal(t, "free-1", view.SessionID)
	assert.Equal(t, settlement.ModeFree, view.Mode)
	assert.Equal(t, game.Betting, view.Round.Phase)
	assert.False(t, view.OnChain)

	n := 0
	for {
		n++
		sendIntent(t, conn, fmt.Sprint(n), session.Request{Intent: session.IntentNewGame, Bet: bet(5)})
		view = expectState(t, conn, fmt.Sprint(n))
		if view.Round.Phase == game.Playing {
			break
		}
		require.Less(t, n, 20, "no playable round dealt")
	}
	assert.NotEmpty(t, view.Commitment)
	assert.True(t, view.Round.DealerHidden)

	sendIntent(t, conn, "stand", session.Request{Intent: session.IntentStand})
	view = expectState(t, conn, "stand")
	assert.Equal(t, game.Finished, view.Round.Phase)
	require.NotNil(t, view.Receipt)
	assert.NotEmpty(t, view.Round.Seed)
	assert.Equal(t, n, view.Stats.Rounds)

	sendIntent(t, conn, "late", session.Request{Intent: session.IntentHit})
	data := expectError(t, conn, CodeInvalidTransition)
	assert.Equal(t, session.IntentHit, data.Intent)
	require.NotNil(t, data.View)
	assert.Equal(t, view.Round, data.View.Round, "rejected intents leave the round unchanged")

	sendIntent(t, conn, "sync", session.Request{})
	expectError(t, conn, CodeUnknownIntent)

	require.NoError(t, conn.WriteJSON(Message{Type: MessageTypeSync, RequestID: "s"}))
	synced := expectState(t, conn, "s")
	assert.Equal(t, view.Stats, synced.Stats)
}

func TestWebSocketErrors(t *testing.T) {
	f := newFixture(t, false, 0)
	conn := f.dial(t, "")
	readMessage(t, conn)

	tests := []struct {
		name string
		msg  Message
		code string
	}{
		{"unknown type", Message{Type: "fold"}, CodeUnknownMessageType},
		{"bad intent data", Message{Type: MessageTypeIntent, Data: json.RawMessage(`"hit"`)}, CodeInvalidMessage},
		{"unknown intent", Message{Type: MessageTypeIntent, Data: json.RawMessage(`{"intent":"split"}`)}, CodeUnknownIntent},
		{"zero bet", Message{Type: MessageTypeIntent, Data: json.RawMessage(`{"intent":"new_game","bet":"0"}`)}, CodeInvalidBet},
		{"over credits", Message{Type: MessageTypeIntent, Data: json.RawMessage(`{"intent":"new_game","bet":"500"}`)}, CodeInsufficientCredits},
		{"bad mode", Message{Type: MessageTypeIntent, Data: json.RawMessage(`{"intent":"switch_mode","mode":"casino"}`)}, CodeInvalidMode},
		{"no relay", Message{Type: MessageTypeIntent, Data: json.RawMessage(`{"intent":"switch_mode","mode":"onchain"}`)}, CodeOnChainUnavailable},
		{"play onchain", Message{Type: MessageTypeIntent, Data: json.RawMessage(`{"intent":"play_onchain","bet":"1"}`)}, CodeOnChainUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.msg.RequestID = tt.name
			require.NoError(t, conn.WriteJSON(tt.msg))
			msg := readMessage(t, conn)
			require.Equal(t, MessageTypeError, msg.Type)
			assert.Equal(t, tt.name, msg.RequestID)
			assert.Equal(t, tt.code, decode[ErrorData](t, msg).Code)
		})
	}
}

func TestInvalidSessionRejected(t *testing.T) {
	f := newFixture(t, false, 0)
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws?session=../etc"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBroadcastToSession(t *testing.T) {
	f := newFixture(t, false, 0)
	a := f.dial(t, "session=shared")
	readMessage(t, a)
	b := f.dial(t, "session=shared")
	readMessage(t, b)
	other := f.dial(t, "session=elsewhere")
	readMessage(t, other)

	require.Eventually(t, func() bool { return len(f.server.SessionConnections("shared")) == 2 },
		time.Second, 5*time.Millisecond)

	sendIntent(t, a, "deal", session.Request{Intent: session.IntentNewGame, Bet: bet(1)})
	mine := expectState(t, a, "deal")
	theirs := expectState(t, b, "")
	assert.Equal(t, mine.Round, theirs.Round)
	assert.Equal(t, mine.Stats, theirs.Stats)

	require.NoError(t, other.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := other.ReadMessage()
	assert.Error(t, err, "other sessions hear nothing")
}

func TestSessionReleasedOnDisconnect(t *testing.T) {
	f := newFixture(t, false, 0)
	conn := f.dial(t, "session=brief")
	readMessage(t, conn)
	_, ok := f.manager.Get("brief")
	require.True(t, ok)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		_, ok := f.manager.Get("brief")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, f.server.ConnectionCount())
}

func TestOnChainOverWebSocket(t *testing.T) {
	f := newFixture(t, true, 3*time.Second)
	conn := f.dial(t, "session=chain-1&player=0xabc")

	view := decode[StateData](t, readMessage(t, conn)).View
	assert.True(t, view.OnChain)

	sendIntent(t, conn, "mode", session.Request{Intent: session.IntentSwitchMode, Mode: settlement.ModeOnChain})
	view = expectState(t, conn, "mode")
	assert.Equal(t, settlement.ModeOnChain, view.Mode)
	assert.True(t, view.Stats.Credits.Equal(bet(40)))

	sendIntent(t, conn, "play", session.Request{Intent: session.IntentPlayOnChain, Bet: bet(4)})
	ack := readMessage(t, conn)
	require.Equal(t, MessageTypeSettling, ack.Type)
	assert.Equal(t, "play", ack.RequestID)

	sendIntent(t, conn, "hit", session.Request{Intent: session.IntentHit})
	rejected := expectError(t, conn, CodeSettlementPending)
	assert.Equal(t, session.IntentHit, rejected.Intent)

	messages := make(chan *Message, 1)
	go func() {
		var msg Message
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err == nil {
			messages <- &msg
		}
		close(messages)
	}()

	var msg *Message
	for msg == nil {
		select {
		case m, ok := <-messages:
			require.True(t, ok, "connection closed before the round settled")
			msg = m
		case <-time.After(5 * time.Millisecond):
			f.clock.Advance(time.Second).MustWait(t.Context())
		}
	}

	require.Equal(t, MessageTypeState, msg.Type, "data: %s", msg.Data)
	assert.Equal(t, "play", msg.RequestID)
	view = decode[StateData](t, msg).View
	assert.Equal(t, game.Finished, view.Round.Phase)
	assert.False(t, view.Pending)
	require.NotNil(t, view.Receipt)
	assert.NotEmpty(t, view.Receipt.TxHash)
	assert.False(t, view.Receipt.Mismatch)
	assert.True(t, view.Stats.Credits.Equal(bet(40).Add(view.Round.Payout)))

	sendIntent(t, conn, "reset", session.Request{Intent: session.IntentResetCredits})
	expectError(t, conn, CodeResetNotAllowed)

	sendIntent(t, conn, "hit", session.Request{Intent: session.IntentHit})
	expectError(t, conn, CodeWrongMode)
}

func TestVerifyEndpoint(t *testing.T) {
	f := newFixture(t, false, 0)
	rules := blackjack.DefaultRules()

	var seed blackjack.Seed
	copy(seed[:], "verify endpoint round seed......")
	round, err := game.NewRound(seed, bet(10), rules)
	require.NoError(t, err)
	require.NoError(t, game.AutoPlay(round, game.StandOn(rules.AutoStandOn)))

	post := func(t *testing.T, body []byte) (int, verifyResponse) {
		t.Helper()
		resp, err := http.Post(f.http.URL+"/api/v1/verify", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		var out verifyResponse
		if resp.StatusCode == http.StatusOK {
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		}
		return resp.StatusCode, out
	}

	claim := settlement.Claim{
		Seed:    seed,
		Bet:     bet(10),
		Player:  round.Player(),
		Dealer:  round.Dealer(),
		Outcome: round.Outcome(),
	}
	body, err := json.Marshal(claim)
	require.NoError(t, err)

	status, out := post(t, body)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, out.Valid)
	require.NotNil(t, out.Verification)
	assert.Equal(t, round.Outcome(), out.Verification.Outcome)
	assert.True(t, round.Payout().Equal(out.Verification.Payout))

	claim.Outcome = blackjack.OutcomeBlackjack
	if round.Outcome() == blackjack.OutcomeBlackjack {
		claim.Outcome = blackjack.OutcomeLose
	}
	body, err = json.Marshal(claim)
	require.NoError(t, err)
	status, out = post(t, body)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, out.Valid)
	require.NotNil(t, out.Error)
	assert.Equal(t, CodeOutcomeMismatch, out.Error.Code)

	status, out = post(t, []byte(`{"bet":"1"}`))
	require.Equal(t, http.StatusOK, status)
	assert.False(t, out.Valid)
	assert.Equal(t, "invalid_claim", out.Error.Code)

	status, _ = post(t, []byte(`{`))
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSessionAndRoundsEndpoints(t *testing.T) {
	f := newFixture(t, false, 0)
	conn := f.dial(t, "session=history")
	readMessage(t, conn)

	for i := range 3 {
		id := fmt.Sprint(i)
		sendIntent(t, conn, id, session.Request{Intent: session.IntentNewGame, Bet: bet(1)})
		if expectState(t, conn, id).Round.Phase == game.Playing {
			sendIntent(t, conn, id+"s", session.Request{Intent: session.IntentStand})
			expectState(t, conn, id+"s")
		}
	}

	get := func(path string) *http.Response {
		resp, err := http.Get(f.http.URL + path)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp := get("/api/v1/sessions/history")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view session.View
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, 3, view.Stats.Rounds)

	resp = get("/api/v1/sessions/history/rounds?limit=2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Rounds []store.Round `json:"rounds"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Rounds, 2)
	assert.True(t, body.Rounds[0].Outcome.IsFinal())

	assert.Equal(t, http.StatusNotFound, get("/api/v1/sessions/nobody").StatusCode)
	assert.Equal(t, http.StatusBadRequest, get("/api/v1/sessions/history/rounds?limit=x").StatusCode)
	assert.Equal(t, http.StatusBadRequest, get("/api/v1/sessions/bad%20id/rounds").StatusCode)
}

func TestShutdownClosesConnections(t *testing.T) {
	f := newFixture(t, false, 0)
	conn := f.dial(t, "session=closing")
	readMessage(t, conn)

	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()
	require.NoError(t, f.server.Shutdown(ctx))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
