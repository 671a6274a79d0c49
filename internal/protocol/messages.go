// Package protocol is the big-endian binary wire format spoken between the
// gateway and its clients. Requests are a 2 byte type followed by a fixed
// size body; reports are described in reports.go.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"matchbook/internal/common"
)

var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrMessageTooShort    = errors.New("message too short")
)

type MessageType uint16

const (
	Heartbeat MessageType = iota
	NewOrder
	CancelOrder
	ModifyOrder
	GetLevels
)

func (t MessageType) String() string {
	switch t {
	case Heartbeat:
		return "heartbeat"
	case NewOrder:
		return "new_order"
	case CancelOrder:
		return "cancel_order"
	case ModifyOrder:
		return "modify_order"
	case GetLevels:
		return "get_levels"
	}
	return fmt.Sprintf("MessageType(%d)", uint16(t))
}

// Message format constants
const (
	BaseMessageHeaderLen      = 2
	NewOrderMessageBodyLen    = 2 + 1 + 8 + 8 + 8
	CancelOrderMessageBodyLen = 8
	ModifyOrderMessageBodyLen = 8 + 1 + 8 + 8
)

var bodyLen = map[MessageType]int{
	Heartbeat:   0,
	NewOrder:    NewOrderMessageBodyLen,
	CancelOrder: CancelOrderMessageBodyLen,
	ModifyOrder: ModifyOrderMessageBodyLen,
	GetLevels:   0,
}

type Message interface {
	GetType() MessageType
	// Encode returns the full frame, header included.
	Encode() []byte
}

// Generic message type.
type BaseMessage struct {
	TypeOf MessageType // 2 bytes
}

func (m BaseMessage) GetType() MessageType {
	return m.TypeOf
}

func (m BaseMessage) Encode() []byte {
	return header(m.TypeOf, 0)
}

func header(typeOf MessageType, n int) []byte {
	buf := make([]byte, BaseMessageHeaderLen+n)
	binary.BigEndian.PutUint16(buf[0:2], uint16(typeOf))
	return buf
}

// ReadMessage reads exactly one frame from r.
func ReadMessage(r io.Reader) (Message, error) {
	head := make([]byte, BaseMessageHeaderLen)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, err
	}
	typeOf := MessageType(binary.BigEndian.Uint16(head))
	n, ok := bodyLen[typeOf]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMessageType, uint16(typeOf))
	}

	frame := make([]byte, BaseMessageHeaderLen+n)
	copy(frame, head)
	if _, err := io.ReadFull(r, frame[BaseMessageHeaderLen:]); err != nil {
		return nil, fmt.Errorf("reading %v body: %w", typeOf, err)
	}
	return ParseMessage(frame)
}

// ParseMessage decodes a complete frame.
func ParseMessage(msg []byte) (Message, error) {
	if len(msg) < BaseMessageHeaderLen {
		return nil, fmt.Errorf("%w: missing header", ErrMessageTooShort)
	}

	typeOf := MessageType(binary.BigEndian.Uint16(msg[0:2]))
	n, ok := bodyLen[typeOf]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMessageType, uint16(typeOf))
	}
	msg = msg[BaseMessageHeaderLen:]
	if len(msg) < n {
		return nil, fmt.Errorf("%w: %v needs %d bytes, got %d", ErrMessageTooShort, typeOf, n, len(msg))
	}

	switch typeOf {
	case NewOrder:
		return parseNewOrder(msg), nil
	case CancelOrder:
		return parseCancelOrder(msg), nil
	case ModifyOrder:
		return parseModifyOrder(msg), nil
	default:
		return BaseMessage{TypeOf: typeOf}, nil
	}
}

type NewOrderMessage struct {
	BaseMessage
	OrderType common.OrderType // 2 bytes
	Side      common.Side      // 1 byte
	Price     common.Price     // 8 bytes, ignored for market orders
	Quantity  common.Quantity  // 8 bytes
	OrderID   common.OrderID   // 8 bytes
}

// Order validates the message and builds the order it describes.
func (m NewOrderMessage) Order() (*common.Order, error) {
	if m.OrderType == common.Market {
		return common.NewMarketOrder(m.OrderID, m.Side, m.Quantity)
	}
	return common.NewOrder(m.OrderType, m.OrderID, m.Side, m.Price, m.Quantity)
}

func (m NewOrderMessage) Encode() []byte {
	buf := header(NewOrder, NewOrderMessageBodyLen)
	body := buf[BaseMessageHeaderLen:]
	binary.BigEndian.PutUint16(body[0:2], uint16(m.OrderType))
	body[2] = byte(m.Side)
	binary.BigEndian.PutUint64(body[3:11], uint64(m.Price))
	binary.BigEndian.PutUint64(body[11:19], m.Quantity)
	binary.BigEndian.PutUint64(body[19:27], m.OrderID)
	return buf
}

func parseNewOrder(msg []byte) NewOrderMessage {
	return NewOrderMessage{
		BaseMessage: BaseMessage{TypeOf: NewOrder},
		OrderType:   common.OrderType(binary.BigEndian.Uint16(msg[0:2])),
		Side:        common.Side(msg[2]),
		Price:       common.Price(binary.BigEndian.Uint64(msg[3:11])),
		Quantity:    binary.BigEndian.Uint64(msg[11:19]),
		OrderID:     binary.BigEndian.Uint64(msg[19:27]),
	}
}

type CancelOrderMessage struct {
	BaseMessage
	OrderID common.OrderID // 8 bytes
}

func (m CancelOrderMessage) Encode() []byte {
	buf := header(CancelOrder, CancelOrderMessageBodyLen)
	binary.BigEndian.PutUint64(buf[BaseMessageHeaderLen:], m.OrderID)
	return buf
}

func parseCancelOrder(msg []byte) CancelOrderMessage {
	return CancelOrderMessage{
		BaseMessage: BaseMessage{TypeOf: CancelOrder},
		OrderID:     binary.BigEndian.Uint64(msg[0:8]),
	}
}

type ModifyOrderMessage struct {
	BaseMessage
	OrderID  common.OrderID  // 8 bytes
	Side     common.Side     // 1 byte
	Price    common.Price    // 8 bytes
	Quantity common.Quantity // 8 bytes
}

func (m ModifyOrderMessage) Modify() common.OrderModify {
	return common.OrderModify{
		ID:       m.OrderID,
		Side:     m.Side,
		Price:    m.Price,
		Quantity: m.Quantity,
	}
}

func (m ModifyOrderMessage) Encode() []byte {
	buf := header(ModifyOrder, ModifyOrderMessageBodyLen)
	body := buf[BaseMessageHeaderLen:]
	binary.BigEndian.PutUint64(body[0:8], m.OrderID)
	body[8] = byte(m.Side)
	binary.BigEndian.PutUint64(body[9:17], uint64(m.Price))
	binary.BigEndian.PutUint64(body[17:25], m.Quantity)
	return buf
}

func parseModifyOrder(msg []byte) ModifyOrderMessage {
	return ModifyOrderMessage{
		BaseMessage: BaseMessage{TypeOf: ModifyOrder},
		OrderID:     binary.BigEndian.Uint64(msg[0:8]),
		Side:        common.Side(msg[8]),
		Price:       common.Price(binary.BigEndian.Uint64(msg[9:17])),
		Quantity:    binary.BigEndian.Uint64(msg[17:25]),
	}
}
