package lark

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkIm "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sentMessage struct {
	receiveIDType string
	body          *larkIm.CreateMessageReqBody
}

type mockSender struct {
	SendFunc func(ctx context.Context, body *larkIm.CreateMessageReqBody) (*larkIm.CreateMessageResp, error)
	sent     []sentMessage
}

func (m *mockSender) Send(ctx context.Context, receiveIDType string, body *larkIm.CreateMessageReqBody) (*larkIm.CreateMessageResp, error) {
	m.sent = append(m.sent, sentMessage{receiveIDType: receiveIDType, body: body})
	if m.SendFunc != nil {
		return m.SendFunc(ctx, body)
	}
	return createdResp("om_1"), nil
}

func createdResp(id string) *larkIm.CreateMessageResp {
	return &larkIm.CreateMessageResp{Data: &larkIm.CreateMessageRespData{MessageId: &id}}
}

type mockMessageCreator struct {
	calls int
	resp  *larkIm.CreateMessageResp
	err   error
}

func (m *mockMessageCreator) Create(ctx context.Context, req *larkIm.CreateMessageReq, _ ...larkcore.RequestOptionFunc) (*larkIm.CreateMessageResp, error) {
	m.calls++
	return m.resp, m.err
}

func newTestMessenger(sender messageSender) *Messenger {
	api := &MessageAPI{sender: sender, logger: zap.NewNop()}
	return NewMessenger(api, zap.NewNop())
}

func TestMessenger_SendText_EscapesContent(t *testing.T) {
	sender := &mockSender{}
	m := newTestMessenger(sender)

	err := m.SendText(context.Background(), "ou_123", "Contract \"A\"\nneeds approval")
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, ReceiveIDOpenID, sender.sent[0].receiveIDType)

	body := sender.sent[0].body
	assert.Equal(t, "ou_123", *body.ReceiveId)
	assert.Equal(t, MsgTypeText, *body.MsgType)

	var decoded textContent
	require.NoError(t, json.Unmarshal([]byte(*body.Content), &decoded))
	assert.Equal(t, "Contract \"A\"\nneeds approval", decoded.Text)
}

func TestMessenger_SendText_Validation(t *testing.T) {
	m := newTestMessenger(&mockSender{})

	assert.Error(t, m.SendText(context.Background(), "", "hello"))
	assert.Error(t, m.SendText(context.Background(), "ou_1", ""))
}

func TestMessenger_SendText_APIFailure(t *testing.T) {
	sender := &mockSender{
		SendFunc: func(ctx context.Context, body *larkIm.CreateMessageReqBody) (*larkIm.CreateMessageResp, error) {
			return &larkIm.CreateMessageResp{CodeError: larkcore.CodeError{Code: 230002, Msg: "bot not in chat"}}, nil
		},
	}
	m := newTestMessenger(sender)

	err := m.SendText(context.Background(), "ou_1", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "230002")
}

func TestMessenger_SendText_TransportError(t *testing.T) {
	sender := &mockSender{
		SendFunc: func(ctx context.Context, body *larkIm.CreateMessageReqBody) (*larkIm.CreateMessageResp, error) {
			return nil, errors.New("connection reset")
		},
	}
	m := newTestMessenger(sender)

	err := m.SendText(context.Background(), "ou_1", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestMessenger_SendMail_BuildsPost(t *testing.T) {
	sender := &mockSender{}
	m := newTestMessenger(sender)

	err := m.SendMail(context.Background(), "alice@example.com", "Approval required", "line one\nline two")
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, ReceiveIDEmail, sender.sent[0].receiveIDType)

	body := sender.sent[0].body
	assert.Equal(t, "alice@example.com", *body.ReceiveId)
	assert.Equal(t, MsgTypePost, *body.MsgType)

	var decoded postContent
	require.NoError(t, json.Unmarshal([]byte(*body.Content), &decoded))
	assert.Equal(t, "Approval required", decoded.ZhCN.Title)
	require.Len(t, decoded.ZhCN.Content, 2)
	assert.Equal(t, "line two", decoded.ZhCN.Content[1][0].Text)
}

func TestMessenger_SendMail_RequiresEmail(t *testing.T) {
	m := newTestMessenger(&mockSender{})
	assert.Error(t, m.SendMail(context.Background(), "", "s", "b"))
}

func TestSDKSender_PostsThroughIMService(t *testing.T) {
	creator := &mockMessageCreator{resp: createdResp("om_9")}
	s := sdkSender{messages: creator}

	body := larkIm.NewCreateMessageReqBodyBuilder().ReceiveId("ou_1").MsgType(MsgTypeText).Content(`{"text":"hi"}`).Build()
	resp, err := s.Send(context.Background(), ReceiveIDOpenID, body)
	require.NoError(t, err)
	assert.Equal(t, 1, creator.calls)
	assert.Equal(t, "om_9", *resp.Data.MessageId)

	creator.err = errors.New("timeout")
	_, err = s.Send(context.Background(), ReceiveIDOpenID, body)
	assert.EqualError(t, err, "timeout")
}
