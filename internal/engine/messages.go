package engine

import (
	"market_sync/internal/domain"
	"market_sync/internal/event"
)

// message is anything the loop processes. The set is closed.
type message interface {
	isMessage()
}

type startCmd struct {
	reply chan<- error
}

type submitCmd struct {
	intent domain.TradeIntent
	reply  chan<- submitResult
}

type submitResult struct {
	intent domain.TradeIntent
	err    error
}

type logoutCmd struct {
	done chan struct{}
}

type inspectCmd struct {
	fn   func()
	done chan struct{}
}

type connectedMsg struct {
	gen  uint64
	conn Conn
}

type dialFailedMsg struct {
	gen uint64
	err error
}

type inboundMsg struct {
	connID uint64
	ev     event.Inbound
}

type decodeErrMsg struct {
	connID uint64
	err    error
}

type closedMsg struct {
	connID uint64
	err    error
}

type timeoutMsg struct {
	intentID string
}

func (startCmd) isMessage()      {}
func (submitCmd) isMessage()     {}
func (logoutCmd) isMessage()     {}
func (inspectCmd) isMessage()    {}
func (connectedMsg) isMessage()  {}
func (dialFailedMsg) isMessage() {}
func (inboundMsg) isMessage()    {}
func (decodeErrMsg) isMessage()  {}
func (closedMsg) isMessage()     {}
func (timeoutMsg) isMessage()    {}

// connHandler forwards transport callbacks into the inbox.
type connHandler struct {
	e *Engine
}

func (h connHandler) HandleEvent(connID uint64, ev event.Inbound) {
	h.e.post(inboundMsg{connID: connID, ev: ev})
}

func (h connHandler) HandleDecodeError(connID uint64, err error) {
	h.e.post(decodeErrMsg{connID: connID, err: err})
}

func (h connHandler) HandleClose(connID uint64, err error) {
	h.e.post(closedMsg{connID: connID, err: err})
}
