package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"chat-gateway/internal/models"
	"chat-gateway/internal/service"
)

const (
	testConv = "64b000000000000000000001"
	testMsg  = "64c000000000000000000001"
	alice    = "64a000000000000000000001"
	bob      = "64a000000000000000000002"
)

type chatServiceMock struct {
	mock.Mock
}

func (m *chatServiceMock) Authorize(ctx context.Context, conversationID, userID string) error {
	args := m.Called(ctx, conversationID, userID)
	return args.Error(0)
}

func (m *chatServiceMock) MarkReadAuthorized(ctx context.Context, userID, conversationID string) (int64, error) {
	args := m.Called(ctx, userID, conversationID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *chatServiceMock) SendMessage(ctx context.Context, sender models.UserRef, in service.SendMessageInput, transport string) (models.MessageView, error) {
	args := m.Called(ctx, sender, in, transport)
	return args.Get(0).(models.MessageView), args.Error(1)
}

func (m *chatServiceMock) MarkDelivered(ctx context.Context, userID, conversationID string, messageIDs []string) (int64, error) {
	args := m.Called(ctx, userID, conversationID, messageIDs)
	return args.Get(0).(int64), args.Error(1)
}

func newTestGateway(svc ChatService) *Gateway {
	return NewGateway(svc, TrustAuth{}, Options{})
}

func frame(t *testing.T, event string, ack *int64, data any) Frame {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return Frame{Event: event, Ack: ack, Data: raw}
}

func connectClient(g *Gateway, connID, userID string) *Client {
	c := testClient(connID, userID)
	g.connect(c)
	return c
}

func joined(t *testing.T, g *Gateway, svc *chatServiceMock, clients ...*Client) {
	t.Helper()
	for _, c := range clients {
		svc.On("Authorize", mock.Anything, testConv, c.info.UserID).Return(nil).Once()
		svc.On("MarkReadAuthorized", mock.Anything, c.info.UserID, testConv).Return(int64(0), nil).Once()
		g.dispatch(c, frame(t, EventJoin, nil, testConv), nil)
		require.True(t, g.hub.InRoom(testConv, c))
	}
	for _, c := range clients {
		drain(t, c)
	}
}

func TestGatewayConnectAnnouncesPresenceOnce(t *testing.T) {
	g := newTestGateway(new(chatServiceMock))

	first := connectClient(g, "c1", alice)
	frames := drain(t, first)
	require.Equal(t, []string{EventUserConnected, EventUserOnline}, eventsOf(frames))
	assert.JSONEq(t, `{"userId":"`+alice+`","socketId":"c1"}`, string(frames[0].Data))

	second := connectClient(g, "c2", alice)
	assert.Equal(t, []string{EventUserConnected}, eventsOf(drain(t, second)))
	assert.Empty(t, drain(t, first))

	observer := connectClient(g, "c3", bob)
	drain(t, observer)
	drain(t, first)

	g.disconnect(first, "")
	assert.Empty(t, drain(t, observer))
	assert.True(t, g.Presence().IsOnline(alice))

	g.disconnect(second, "")
	frames = drain(t, observer)
	require.Equal(t, []string{EventUserOffline}, eventsOf(frames))
	assert.JSONEq(t, `{"userId":"`+alice+`"}`, string(frames[0].Data))
	assert.False(t, g.Presence().IsOnline(alice))
}

func TestGatewayJoinRefusedForNonParticipant(t *testing.T) {
	svc := new(chatServiceMock)
	g := newTestGateway(svc)
	c := connectClient(g, "c1", alice)
	drain(t, c)

	svc.On("Authorize", mock.Anything, testConv, alice).Return(service.ErrNotParticipant).Once()
	g.dispatch(c, frame(t, EventJoin, nil, testConv), nil)

	frames := drain(t, c)
	require.Equal(t, []string{EventError}, eventsOf(frames))
	assert.Contains(t, string(frames[0].Data), service.ErrNotParticipant.Error())
	assert.False(t, g.hub.InRoom(testConv, c))
	svc.AssertExpectations(t)
}

func TestGatewayJoinMarksReadAndNotifiesOthers(t *testing.T) {
	svc := new(chatServiceMock)
	g := newTestGateway(svc)
	a := connectClient(g, "c1", alice)
	b := connectClient(g, "c2", bob)
	joined(t, g, svc, a)
	drain(t, b)

	svc.On("Authorize", mock.Anything, testConv, bob).Return(nil).Once()
	svc.On("MarkReadAuthorized", mock.Anything, bob, testConv).Return(int64(2), nil).Once()
	g.dispatch(b, frame(t, EventJoin, nil, testConv), nil)

	frames := drain(t, a)
	require.Equal(t, []string{EventMessagesRead}, eventsOf(frames))
	assert.JSONEq(t, `{"conversationId":"`+testConv+`","userId":"`+bob+`"}`, string(frames[0].Data))
	assert.Empty(t, drain(t, b))
	svc.AssertExpectations(t)
}

func TestGatewayJoinRejectsMalformedID(t *testing.T) {
	g := newTestGateway(new(chatServiceMock))
	c := connectClient(g, "c1", alice)
	drain(t, c)

	g.dispatch(c, frame(t, EventJoin, nil, "not-an-id"), nil)
	assert.Equal(t, []string{EventError}, eventsOf(drain(t, c)))
}

func TestGatewaySendBroadcastsThenAcks(t *testing.T) {
	svc := new(chatServiceMock)
	g := newTestGateway(svc)
	a := connectClient(g, "c1", alice)
	b := connectClient(g, "c2", bob)
	joined(t, g, svc, a, b)

	view := models.MessageView{ID: testMsg, ConversationID: testConv, Sender: a.info.Identity(), Content: "hi", Type: models.MessageText, Status: models.StatusSent}
	svc.On("SendMessage", mock.Anything, a.info.Identity(), service.SendMessageInput{ConversationID: testConv, Content: "hi"}, service.TransportWS).
		Return(view, nil).Once()

	ack := int64(1)
	g.dispatch(a, frame(t, EventSend, &ack, map[string]string{"conversationId": testConv, "content": "hi"}), nil)

	senderFrames := drain(t, a)
	require.Equal(t, []string{EventMessageNew, EventAck}, eventsOf(senderFrames))
	require.NotNil(t, senderFrames[1].Ack)
	assert.Equal(t, ack, *senderFrames[1].Ack)

	var payload struct {
		Status  string             `json:"status"`
		Message models.MessageView `json:"message"`
	}
	require.NoError(t, json.Unmarshal(senderFrames[1].Data, &payload))
	assert.Equal(t, AckOK, payload.Status)
	assert.Equal(t, testMsg, payload.Message.ID)

	assert.Equal(t, []string{EventMessageNew}, eventsOf(drain(t, b)))
	svc.AssertExpectations(t)
}

func TestGatewaySendReachesOnlyRoomMembers(t *testing.T) {
	svc := new(chatServiceMock)
	g := newTestGateway(svc)
	a1 := connectClient(g, "c1", alice)
	a2 := connectClient(g, "c2", alice)
	b := connectClient(g, "c3", bob)
	outsider := connectClient(g, "c4", bob)
	joined(t, g, svc, a1, a2, b)
	drain(t, outsider)

	view := models.MessageView{ID: testMsg, ConversationID: testConv, Sender: a1.info.Identity(), Content: "hi", Type: models.MessageText, Status: models.StatusSent}
	svc.On("SendMessage", mock.Anything, a1.info.Identity(), service.SendMessageInput{ConversationID: testConv, Content: "hi"}, service.TransportWS).
		Return(view, nil).Once()

	ack := int64(1)
	g.dispatch(a1, frame(t, EventSend, &ack, map[string]string{"conversationId": testConv, "content": "hi"}), nil)

	assert.Equal(t, []string{EventMessageNew, EventAck}, eventsOf(drain(t, a1)))
	assert.Equal(t, []string{EventMessageNew}, eventsOf(drain(t, a2)))
	assert.Equal(t, []string{EventMessageNew}, eventsOf(drain(t, b)))
	assert.Empty(t, drain(t, outsider))
	svc.AssertExpectations(t)
}

func TestGatewayRapidSendsArriveInOrder(t *testing.T) {
	svc := new(chatServiceMock)
	g := newTestGateway(svc)
	a := connectClient(g, "c1", alice)
	b := connectClient(g, "c2", bob)
	joined(t, g, svc, a, b)

	var ids []string
	for i, content := range []string{"one", "two", "three"} {
		id := fmt.Sprintf("64c00000000000000000000%d", i+1)
		ids = append(ids, id)
		view := models.MessageView{ID: id, ConversationID: testConv, Sender: a.info.Identity(), Content: content, Type: models.MessageText, Status: models.StatusSent}
		svc.On("SendMessage", mock.Anything, a.info.Identity(), service.SendMessageInput{ConversationID: testConv, Content: content}, service.TransportWS).
			Return(view, nil).Once()
		ack := int64(i + 1)
		g.dispatch(a, frame(t, EventSend, &ack, map[string]string{"conversationId": testConv, "content": content}), nil)
	}

	frames := drain(t, b)
	require.Equal(t, []string{EventMessageNew, EventMessageNew, EventMessageNew}, eventsOf(frames))
	var got []string
	for _, f := range frames {
		var msg models.MessageView
		require.NoError(t, json.Unmarshal(f.Data, &msg))
		got = append(got, msg.ID)
	}
	assert.Equal(t, ids, got)
	svc.AssertExpectations(t)
}

func TestGatewayRejoinWithoutUnreadEmitsNoRead(t *testing.T) {
	svc := new(chatServiceMock)
	g := newTestGateway(svc)
	a := connectClient(g, "c1", alice)
	b := connectClient(g, "c2", bob)
	joined(t, g, svc, a, b)

	svc.On("Authorize", mock.Anything, testConv, bob).Return(nil).Once()
	svc.On("MarkReadAuthorized", mock.Anything, bob, testConv).Return(int64(0), nil).Once()
	g.dispatch(b, frame(t, EventJoin, nil, testConv), nil)

	assert.True(t, g.hub.InRoom(testConv, b))
	assert.Empty(t, drain(t, a))
	assert.Empty(t, drain(t, b))
	svc.AssertExpectations(t)
}

func TestGatewaySendErrorsAck(t *testing.T) {
	svc := new(chatServiceMock)
	g := newTestGateway(svc)
	a := connectClient(g, "c1", alice)
	drain(t, a)

	ack := int64(3)
	g.dispatch(a, frame(t, EventSend, &ack, map[string]string{"conversationId": "bad", "content": "hi"}), nil)
	frames := drain(t, a)
	require.Equal(t, []string{EventAck}, eventsOf(frames))
	assert.Contains(t, string(frames[0].Data), `"status":"error"`)

	svc.On("SendMessage", mock.Anything, mock.Anything, mock.Anything, service.TransportWS).
		Return(models.MessageView{}, service.ErrNotParticipant).Once()
	g.dispatch(a, frame(t, EventSend, &ack, map[string]string{"conversationId": testConv, "content": "hi"}), nil)
	frames = drain(t, a)
	require.Equal(t, []string{EventAck}, eventsOf(frames))
	assert.JSONEq(t, `{"status":"error","errorMessage":"`+service.ErrNotParticipant.Error()+`"}`, string(frames[0].Data))
	svc.AssertExpectations(t)
}

func TestGatewayTypingRequiresRoom(t *testing.T) {
	svc := new(chatServiceMock)
	g := newTestGateway(svc)
	a := connectClient(g, "c1", alice)
	b := connectClient(g, "c2", bob)
	joined(t, g, svc, b)
	drain(t, a)

	g.dispatch(a, frame(t, EventTypingStart, nil, testConv), nil)
	assert.Empty(t, drain(t, b))

	joined(t, g, svc, a)
	g.dispatch(a, frame(t, EventTypingStart, nil, testConv), nil)
	g.dispatch(a, frame(t, EventTypingStop, nil, testConv), nil)

	frames := drain(t, b)
	require.Equal(t, []string{EventTypingStarted, EventTypingStopped}, eventsOf(frames))
	assert.Contains(t, string(frames[0].Data), `"userName":"name-`+alice+`"`)
	assert.Empty(t, drain(t, a))
}

func TestGatewayDeliverNotifiesWholeRoom(t *testing.T) {
	svc := new(chatServiceMock)
	g := newTestGateway(svc)
	a := connectClient(g, "c1", alice)
	b := connectClient(g, "c2", bob)
	joined(t, g, svc, a, b)

	ids := []string{testMsg}
	svc.On("MarkDelivered", mock.Anything, bob, testConv, ids).Return(int64(1), nil).Once()
	g.dispatch(b, frame(t, EventDeliver, nil, map[string]any{"conversationId": testConv, "messageIds": ids}), nil)

	assert.Equal(t, []string{EventMessagesDelivered}, eventsOf(drain(t, a)))
	assert.Equal(t, []string{EventMessagesDelivered}, eventsOf(drain(t, b)))

	g.dispatch(b, frame(t, EventDeliver, nil, map[string]any{"conversationId": testConv, "messageIds": []string{}}), nil)
	assert.Equal(t, []string{EventError}, eventsOf(drain(t, b)))
	svc.AssertExpectations(t)
}

func TestGatewayLeaveStopsRoomTraffic(t *testing.T) {
	svc := new(chatServiceMock)
	g := newTestGateway(svc)
	a := connectClient(g, "c1", alice)
	joined(t, g, svc, a)

	g.dispatch(a, frame(t, EventLeave, nil, testConv), nil)
	assert.False(t, g.hub.InRoom(testConv, a))

	g.BroadcastMessage(testConv, models.MessageView{ID: testMsg})
	assert.Empty(t, drain(t, a))
}

func TestGatewayRateLimitAndUnknownEvents(t *testing.T) {
	g := newTestGateway(new(chatServiceMock))
	c := newClient(nil, ConnInfo{ConnID: "c1", UserID: alice}, rate.NewLimiter(0, 1))
	g.connect(c)
	drain(t, c)

	g.dispatch(c, Frame{Event: "bogus"}, nil)
	assert.Equal(t, []string{EventError}, eventsOf(drain(t, c)))

	ack := int64(9)
	g.dispatch(c, frame(t, EventSend, &ack, map[string]string{"conversationId": testConv, "content": "x"}), nil)
	frames := drain(t, c)
	require.Equal(t, []string{EventAck}, eventsOf(frames))
	assert.Contains(t, string(frames[0].Data), "rate limit exceeded")
}

func TestGatewayEmitToUserReachesEveryConnection(t *testing.T) {
	g := newTestGateway(new(chatServiceMock))
	a1 := connectClient(g, "c1", alice)
	a2 := connectClient(g, "c2", alice)
	b := connectClient(g, "c3", bob)
	for _, c := range []*Client{a1, a2, b} {
		drain(t, c)
	}

	g.EmitToUser(alice, "conversation:created", map[string]string{"id": testConv})
	assert.Len(t, drain(t, a1), 1)
	assert.Len(t, drain(t, a2), 1)
	assert.Empty(t, drain(t, b))
}
