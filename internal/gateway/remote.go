package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// RemoteError is a failed RPC response.
type RemoteError struct {
	Method string
	ErrorShape
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Method, e.Code, e.Message)
}

// Remote is a client connection to a running gateway. Calls are sequential;
// events received while waiting for a response are dropped.
type Remote struct {
	conn  *websocket.Conn
	hello Hello
	seq   atomic.Int64
}

// Dial connects to url, completes the connect handshake and returns the
// authenticated connection.
func Dial(ctx context.Context, url string, info ClientInfo, auth *ConnectAuth) (*Remote, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial gateway: %w", err)
	}
	r := &Remote{conn: conn}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	var challenge Frame
	if err := conn.ReadJSON(&challenge); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read challenge: %w", err)
	}
	if challenge.Type != FrameTypeEvent || challenge.Event != "connect.challenge" {
		conn.Close()
		return nil, fmt.Errorf("unexpected first frame %q", challenge.Event)
	}

	params := ConnectParams{Protocol: ProtocolVersion, Client: info, Auth: auth}
	if err := r.call("connect", params, &r.hello); err != nil {
		conn.Close()
		return nil, err
	}
	return r, nil
}

// Hello returns the server greeting from the handshake.
func (r *Remote) Hello() Hello { return r.hello }

// Call invokes method and decodes the response payload into out, which may
// be nil.
func (r *Remote) Call(ctx context.Context, method string, params, out any) error {
	stop := context.AfterFunc(ctx, func() { r.conn.Close() })
	defer stop()
	err := r.call(method, params, out)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func (r *Remote) call(method string, params, out any) error {
	id := fmt.Sprintf("req-%d", r.seq.Add(1))
	req, err := NewRequest(id, method, params)
	if err != nil {
		return err
	}
	if err := r.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}

	for {
		var resp Frame
		if err := r.conn.ReadJSON(&resp); err != nil {
			return fmt.Errorf("read %s response: %w", method, err)
		}
		if resp.Type != FrameTypeResponse || resp.ID != id {
			continue
		}
		if resp.OK == nil || !*resp.OK {
			shape := ErrorShape{Code: CodeRequestFailed, Message: "request failed"}
			if resp.Error != nil {
				shape = *resp.Error
			}
			return &RemoteError{Method: method, ErrorShape: shape}
		}
		if out == nil || len(resp.Payload) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Payload, out); err != nil {
			return fmt.Errorf("decode %s response: %w", method, err)
		}
		return nil
	}
}

// Close closes the connection.
func (r *Remote) Close() error {
	err := r.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if cerr := r.conn.Close(); err == nil || errors.Is(err, websocket.ErrCloseSent) {
		err = cerr
	}
	return err
}
