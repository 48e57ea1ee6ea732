package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/tnqbao/gau-vm-orchestrator/utils"
	"golang.org/x/sync/errgroup"
)

const (
	controlWriteWait  = 5 * time.Second
	consoleSessionTTL = 4 * time.Hour
)

var consoleUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The browser VNC client connects cross-origin from the frontend.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn is the frame-level surface shared by both legs of the console proxy.
// Both the upgraded client connection and the dialed cluster connection
// satisfy it.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetPingHandler(h func(appData string) error)
	SetPongHandler(h func(appData string) error)
	SetCloseHandler(h func(code int, text string) error)
	Close() error
}

// ConsoleProxy bridges a client websocket to the VNC stream of the VM. The
// proxy is a stateless pass-through: frames are relayed 1:1 in both
// directions with no interpretation of payload bytes, and the session ends as
// soon as either side closes.
func (ctrl *Controller) ConsoleProxy(c *gin.Context) {
	ctx := c.Request.Context()

	userID, isAdmin, ok := principalFromContext(c)
	if !ok {
		utils.JSON401(c, "Unauthorized: user_id not found")
		return
	}

	vm := ctrl.loadVM(c)
	if vm == nil {
		return
	}

	client, err := consoleUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Console] Upgrade failed for VM %s: %v", vm.Name, err)
		return
	}
	defer client.Close()

	if !CanAccessVM(vm, userID, isAdmin) {
		message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "not authorized for this VM")
		_ = client.WriteControl(websocket.CloseMessage, message, time.Now().Add(controlWriteWait))
		return
	}

	remote, err := ctrl.Infra.Kubevirt.DialConsole(vm.Namespace, vm.Name)
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Console] Failed to reach VNC stream of %s: %v", vm.Name, err)
		message := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "console unavailable")
		_ = client.WriteControl(websocket.CloseMessage, message, time.Now().Add(controlWriteWait))
		return
	}
	defer remote.Close()

	// Session presence is recorded for operators; concurrent viewers are not
	// excluded.
	sessionKey := "console:sessions:" + vm.ID.String()
	ctrl.Infra.Redis.Client.Set(ctx, sessionKey, userID.String(), consoleSessionTTL)
	defer ctrl.Infra.Redis.Client.Del(context.Background(), sessionKey)

	ctrl.Infra.Logger.InfoWithContextf(ctx, "[Console] Session opened for VM %s by user %s", vm.Name, userID)
	proxyConsole(ctx, client, remote)
	ctrl.Infra.Logger.InfoWithContextf(ctx, "[Console] Session closed for VM %s", vm.Name)
}

// proxyConsole runs the two relay directions concurrently. The first loop to
// observe a close or a disconnect tears down both connections, which unblocks
// the other loop.
func proxyConsole(ctx context.Context, client, remote wsConn) {
	teardown := func() {
		_ = client.Close()
		_ = remote.Close()
	}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer teardown()
		return relayFrames(client, remote)
	})
	g.Go(func() error {
		defer teardown()
		return relayFrames(remote, client)
	})
	_ = g.Wait()
}

// relayFrames forwards frames from src to dst until src closes or errors.
// Data frames keep their type; ping, pong and close frames are mirrored as
// control frames on the other side.
func relayFrames(src, dst wsConn) error {
	src.SetPingHandler(func(appData string) error {
		return dst.WriteControl(websocket.PingMessage, []byte(appData), time.Now().Add(controlWriteWait))
	})
	src.SetPongHandler(func(appData string) error {
		return dst.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(controlWriteWait))
	})
	src.SetCloseHandler(func(code int, text string) error {
		message := []byte{}
		if code != websocket.CloseNoStatusReceived {
			message = websocket.FormatCloseMessage(code, text)
		}
		_ = dst.WriteControl(websocket.CloseMessage, message, time.Now().Add(controlWriteWait))
		return nil
	})

	for {
		messageType, data, err := src.ReadMessage()
		if err != nil {
			return err
		}
		switch messageType {
		case websocket.TextMessage, websocket.BinaryMessage:
			if err := dst.WriteMessage(messageType, data); err != nil {
				return err
			}
		default:
			// Unknown frame kinds are dropped.
		}
	}
}
