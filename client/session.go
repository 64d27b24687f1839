// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package client

import (
	"errors"
	"fmt"
	"io"

	"github.com/blinklabs-io/payfile/frame"
	"github.com/blinklabs-io/payfile/paychan"
	"github.com/blinklabs-io/payfile/protocol"
	"github.com/btcsuite/btcd/btcutil"
)

type operationKind uint32

const (
	operationNone operationKind = iota
	operationQuery
	operationDownload
	operationSettle
)

// operation is the ticket for one QueryFiles, DownloadFile or
// SettlePaymentChannel call
type operation struct {
	kind       operationKind
	resultChan chan error
	done       bool
	// awaiting is set while a request sent for this operation has no reply
	awaiting bool
	files    []*File
	download *download
}

func newOperation(kind operationKind) *operation {
	return &operation{
		kind:       kind,
		resultChan: make(chan error, 1),
	}
}

// download is the state of one file transfer
type download struct {
	file            *File
	sink            io.WriteCloser
	nextChunkId     int64
	bytesDownloaded int64
}

// channelRef identifies the channel a callback belongs to
type channelRef struct {
	handle *paychan.Handle
}

func (c *Client) actorLoop() {
	defer c.waitGroup.Done()
	var err error
	for err == nil {
		select {
		case <-c.closeChan:
			err = ErrClosed
		case payload, ok := <-c.conn.RecvChan():
			if !ok {
				err = c.connError()
				break
			}
			c.handlePayload(payload)
		case <-c.queueSignal:
			c.runQueue()
		}
	}
	c.shutdown(err)
}

func (c *Client) connError() error {
	select {
	case err := <-c.conn.ErrorChan():
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: connection closed by server", ErrClosed)
		}
		if frame.IsFramingError(err) {
			return fmt.Errorf("%w: %w", ErrProtocolViolation, err)
		}
		return fmt.Errorf("%w: %w", ErrClosed, err)
	default:
		return ErrClosed
	}
}

func (c *Client) runQueue() {
	c.queueMutex.Lock()
	queue := c.queue
	c.queue = nil
	c.queueMutex.Unlock()
	for _, fn := range queue {
		fn()
	}
}

func (c *Client) shutdown(err error) {
	c.logger.Debug("session ended", "error", err)
	c.shutdownErr = err
	c.queueMutex.Lock()
	c.queueClosed = true
	queue := c.queue
	c.queue = nil
	c.queueMutex.Unlock()
	c.failPending(err)
	for _, fn := range queue {
		fn()
	}
	if c.channel != nil {
		// ClosedFunc can't be queued any more, so the handle is dropped here
		if closeErr := c.paychan.ConnectionClosed(c.channel); closeErr != nil {
			c.logger.Warn("failed to settle payment channel", "error", closeErr)
		}
		c.channel = nil
		c.channelReady = false
		c.closeWhenReady = false
	}
	c.signalCloseWaiters()
	close(c.doneChan)
}

func (c *Client) setPending(op *operation) {
	c.pending = op
	if op == nil {
		c.activeOp.Store(uint32(operationNone))
		return
	}
	c.activeOp.Store(uint32(op.kind))
}

// complete finishes op. A reply still owed for an abandoned request is
// discarded when it arrives.
func (c *Client) complete(op *operation, err error) {
	if op.done {
		return
	}
	op.done = true
	if op.awaiting {
		op.awaiting = false
		switch op.kind {
		case operationQuery:
			c.staleManifests++
		case operationDownload:
			c.staleResponses[op.download.file.Handle]++
		}
	}
	if d := op.download; d != nil {
		if closeErr := d.sink.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	if c.pending == op {
		c.setPending(nil)
		c.state = protocol.StateIdle
	}
	op.resultChan <- err
}

func (c *Client) failPending(err error) {
	if c.pending != nil {
		c.complete(c.pending, err)
	}
}

func (c *Client) cancelOperation(op *operation, err error) {
	if op.done {
		return
	}
	c.logger.Debug("operation cancelled", "error", err)
	c.complete(op, err)
}

// violation fails the pending operation and closes the session
func (c *Client) violation(err error) {
	c.logger.Warn("protocol violation", "error", err)
	c.failPending(err)
	if c.closing {
		return
	}
	c.closing = true
	go func() {
		_ = c.Close()
	}()
}

func (c *Client) checkStart() error {
	if c.shutdownErr != nil {
		return c.shutdownErr
	}
	if c.closing {
		return ErrClosed
	}
	if c.pending != nil {
		return ErrOperationInProgress
	}
	return nil
}

func (c *Client) beginQuery(op *operation) error {
	if err := c.checkStart(); err != nil {
		return err
	}
	if err := c.send(protocol.NewMsgQueryFiles(c.userAgent, c.network.Id)); err != nil {
		return err
	}
	op.awaiting = true
	c.setPending(op)
	c.state = protocol.StateQueryInFlight
	return nil
}

func (c *Client) beginDownload(op *operation, file *File, sink io.WriteCloser) error {
	if c.pending != nil && c.pending.download != nil &&
		c.pending.download.file.Handle == file.Handle {
		return ErrAlreadyDownloading
	}
	if err := c.checkStart(); err != nil {
		return err
	}
	if c.files == nil {
		return ErrNotQueried
	}
	known := c.lookupFile(file.Handle)
	if known == nil {
		return fmt.Errorf("%w: handle %d", ErrUnknownFile, file.Handle)
	}
	file = known
	price := file.Price()
	if price > 0 {
		spendable, err := c.spendable()
		if err != nil {
			return err
		}
		if price > spendable {
			return fmt.Errorf(
				"%w: %s needs %s but only %s is available",
				ErrInsufficientFunds,
				file.FileName,
				price,
				spendable,
			)
		}
		if c.channel == nil {
			if err := c.openChannel(); err != nil {
				return err
			}
		}
	}
	op.download = &download{
		file: file,
		sink: sink,
	}
	c.setPending(op)
	c.logger.Debug(
		"starting download",
		"handle", file.Handle,
		"file", file.FileName,
		"size", file.Size,
		"price", price,
	)
	if file.PricePerChunk <= 0 || c.channelReady {
		c.state = protocol.StateDownloading
		c.requestNextChunk()
		return nil
	}
	c.state = protocol.StatePaymentInit
	return nil
}

func (c *Client) beginSettle(op *operation) error {
	if err := c.checkStart(); err != nil {
		return err
	}
	if c.paychan == nil {
		return ErrNoPaymentChannel
	}
	// A channel has to be negotiated before it can be closed
	if c.channel == nil {
		if err := c.openChannel(); err != nil {
			return err
		}
	}
	c.setPending(op)
	c.state = protocol.StateSettling
	c.closeChannel()
	return nil
}

func (c *Client) beginClose(settled chan struct{}) {
	if c.shutdownErr != nil {
		close(settled)
		return
	}
	c.closing = true
	c.failPending(ErrClosed)
	if c.channel == nil {
		close(settled)
		return
	}
	c.closeWaiters = append(c.closeWaiters, settled)
	c.closeChannel()
}

func (c *Client) signalCloseWaiters() {
	for _, waiter := range c.closeWaiters {
		close(waiter)
	}
	c.closeWaiters = nil
}

func (c *Client) lookupFile(handle int) *File {
	for _, f := range c.files {
		if f.Handle == handle {
			return f
		}
	}
	return nil
}

func (c *Client) spendable() (btcutil.Amount, error) {
	return c.RemainingBalance()
}

// openChannel opens a channel with the server holding the whole spendable
// balance less the network transaction fee
func (c *Client) openChannel() error {
	if c.paychan == nil {
		return ErrNoPaymentChannel
	}
	spendable, err := c.spendable()
	if err != nil {
		return err
	}
	value := spendable - c.network.TxFee
	if value <= 0 {
		return fmt.Errorf(
			"%w: balance %s does not cover the transaction fee %s",
			ErrInsufficientFunds,
			spendable,
			c.network.TxFee,
		)
	}
	ref := &channelRef{}
	handle, err := c.paychan.Open(
		c.counterparty,
		value,
		paychan.Callbacks{
			SendFunc: func(data []byte) error {
				return c.send(protocol.NewMsgPayment(data))
			},
			ReadyFunc: func() {
				_ = c.enqueue(func() { c.handleChannelReady(ref) })
			},
			ClosedFunc: func(reason paychan.CloseReason) {
				_ = c.enqueue(func() { c.handleChannelClosed(ref, reason) })
			},
			ValueRejectedFunc: func(required btcutil.Amount) {
				_ = c.enqueue(func() { c.handleValueRejected(ref, required) })
			},
		},
	)
	if err != nil {
		if errors.Is(err, paychan.ErrInsufficientValue) {
			return fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
		}
		return err
	}
	ref.handle = handle
	c.channel = handle
	c.channelReady = false
	c.closeWhenReady = false
	c.logger.Debug("opening payment channel", "value", value)
	return nil
}

// closeChannel asks the payment channel to settle, or defers that until the
// channel is ready
func (c *Client) closeChannel() {
	if c.channel == nil {
		return
	}
	if !c.channelReady {
		c.closeWhenReady = true
		return
	}
	if err := c.paychan.Close(c.channel); err != nil {
		c.logger.Warn("failed to close payment channel", "error", err)
		c.signalCloseWaiters()
		if op := c.pending; op != nil && op.kind == operationSettle {
			c.complete(op, err)
		}
	}
}

func (c *Client) handleChannelReady(ref *channelRef) {
	if ref.handle == nil || c.channel != ref.handle {
		return
	}
	c.logger.Debug("payment channel ready")
	c.channelReady = true
	if c.closeWhenReady {
		c.closeWhenReady = false
		c.closeChannel()
		return
	}
	op := c.pending
	if op != nil && op.kind == operationDownload && c.state == protocol.StatePaymentInit {
		c.state = protocol.StateDownloading
		c.requestNextChunk()
	}
}

func (c *Client) handleValueRejected(ref *channelRef, required btcutil.Amount) {
	if ref.handle == nil || c.channel != ref.handle {
		return
	}
	c.logger.Warn(
		"server rejected payment channel value",
		"offered", ref.handle.Value,
		"required", required,
	)
	c.requiredValue = required
}

func (c *Client) handleChannelClosed(ref *channelRef, reason paychan.CloseReason) {
	if ref.handle == nil || c.channel != ref.handle {
		return
	}
	c.logger.Debug("payment channel closed", "reason", reason.String())
	c.channel = nil
	c.channelReady = false
	c.closeWhenReady = false
	c.signalCloseWaiters()
	op := c.pending
	if op == nil || op.kind == operationQuery {
		return
	}
	if op.kind == operationDownload && op.download.file.PricePerChunk <= 0 {
		return
	}
	switch reason {
	case paychan.CloseReasonClientRequested:
		if op.kind == operationSettle {
			c.complete(op, nil)
			return
		}
		c.complete(op, fmt.Errorf("%w: %s", ErrChannelClosed, reason))
	case paychan.CloseReasonServerRequestedTooMuchValue:
		c.complete(
			op,
			fmt.Errorf(
				"%w: server requires a channel value of at least %s",
				ErrInsufficientFunds,
				c.requiredValue,
			),
		)
	default:
		c.complete(op, fmt.Errorf("%w: %s", ErrChannelClosed, reason))
	}
}

// requestNextChunk pays for and requests the next chunk of the pending
// download
func (c *Client) requestNextChunk() {
	op := c.pending
	d := op.download
	if price := d.file.PricePerChunk; price > 0 {
		if err := c.paychan.Increment(c.channel, price); err != nil {
			if errors.Is(err, paychan.ErrInsufficientValue) {
				err = fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
			}
			c.complete(op, fmt.Errorf("pay for chunk %d: %w", d.nextChunkId, err))
			return
		}
	}
	err := c.send(protocol.NewMsgDownloadChunk(d.file.Handle, d.nextChunkId, 1))
	if err != nil {
		c.complete(op, err)
		return
	}
	op.awaiting = true
	d.nextChunkId++
}

func (c *Client) handlePayload(payload []byte) {
	msg, err := protocol.DecodeMessage(payload)
	if err != nil {
		c.violation(fmt.Errorf("%w: %w", ErrProtocolViolation, err))
		return
	}
	if c.discardStale(msg) {
		return
	}
	newState, ok := protocol.ClientStateMap.Transition(c.state, msg.Type())
	if !ok {
		c.violation(
			fmt.Errorf(
				"%w: unexpected %s message in state %s",
				ErrProtocolViolation,
				protocol.MessageTypeName(msg.Type()),
				c.state,
			),
		)
		return
	}
	c.state = newState
	switch m := msg.(type) {
	case *protocol.MsgManifest:
		c.handleManifest(m)
	case *protocol.MsgData:
		c.handleData(m)
	case *protocol.MsgPayment:
		c.handlePayment(m)
	case *protocol.MsgError:
		c.handleError(m)
	}
}

// discardStale drops the reply to a request whose operation was cancelled
func (c *Client) discardStale(msg protocol.Message) bool {
	switch m := msg.(type) {
	case *protocol.MsgManifest:
		if c.staleManifests > 0 {
			c.staleManifests--
			c.logger.Debug("discarding stale manifest")
			return true
		}
	case *protocol.MsgData:
		if c.staleResponses[m.Handle] > 0 {
			c.staleResponses[m.Handle]--
			if c.staleResponses[m.Handle] == 0 {
				delete(c.staleResponses, m.Handle)
			}
			c.logger.Debug("discarding stale data", "handle", m.Handle, "chunk_id", m.ChunkId)
			return true
		}
	}
	return false
}

func (c *Client) handleManifest(msg *protocol.MsgManifest) {
	op := c.pending
	op.awaiting = false
	if msg.ChunkSize == 0 {
		c.violation(fmt.Errorf("%w: manifest chunk size is zero", ErrProtocolViolation))
		return
	}
	files, err := newFiles(msg)
	if err != nil {
		c.complete(op, err)
		return
	}
	c.logger.Debug("received manifest", "files", len(files), "chunk_size", msg.ChunkSize)
	c.files = files
	op.files = files
	c.complete(op, nil)
}

func (c *Client) handleData(msg *protocol.MsgData) {
	op := c.pending
	d := op.download
	if msg.Handle != d.file.Handle || !op.awaiting {
		c.violation(
			fmt.Errorf(
				"%w: unrequested data for handle %d",
				ErrProtocolViolation,
				msg.Handle,
			),
		)
		return
	}
	op.awaiting = false
	if msg.ChunkId != d.nextChunkId-1 {
		c.violation(
			fmt.Errorf(
				"%w: server sent chunk %d, expected %d",
				ErrProtocolViolation,
				msg.ChunkId,
				d.nextChunkId-1,
			),
		)
		return
	}
	if _, err := d.sink.Write(msg.Data); err != nil {
		c.complete(op, fmt.Errorf("write chunk %d: %w", msg.ChunkId, err))
		return
	}
	d.bytesDownloaded += int64(len(msg.Data))
	if c.progressFunc != nil {
		c.progressFunc(d.file, d.bytesDownloaded)
	}
	if (msg.ChunkId+1)*int64(d.file.ChunkSize()) >= d.file.Size {
		c.logger.Debug(
			"download complete",
			"handle", d.file.Handle,
			"bytes", d.bytesDownloaded,
		)
		c.complete(op, nil)
		return
	}
	if len(msg.Data) == 0 {
		c.violation(
			fmt.Errorf(
				"%w: empty chunk %d before end of file",
				ErrProtocolViolation,
				msg.ChunkId,
			),
		)
		return
	}
	c.requestNextChunk()
}

func (c *Client) handlePayment(msg *protocol.MsgPayment) {
	if c.channel == nil {
		c.logger.Debug("dropping payment message without an open channel")
		return
	}
	if err := c.paychan.DeliverIncoming(c.channel, msg.Payload); err != nil {
		c.logger.Warn("payment channel error", "error", err)
	}
}

func (c *Client) handleError(msg *protocol.MsgError) {
	err := msg.Err()
	c.logger.Debug("received error", "code", err.Code.String(), "explanation", err.Explanation)
	op := c.pending
	if op == nil {
		c.logger.Warn("server reported an error", "error", err)
		return
	}
	op.awaiting = false
	c.complete(op, err)
}
