package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"matchbook/internal/common"

	"github.com/google/uuid"
)

type ReportType uint8

const (
	AckReport ReportType = iota
	ExecutionReport
	LevelsReport
	ErrorReport
)

func (t ReportType) String() string {
	switch t {
	case AckReport:
		return "ack"
	case ExecutionReport:
		return "execution"
	case LevelsReport:
		return "levels"
	case ErrorReport:
		return "error"
	}
	return fmt.Sprintf("ReportType(%d)", uint8(t))
}

// Report format constants
const (
	reportHeaderLen    = 1 + 16 + 8
	ackBodyLen         = 8 + 1 + 8
	executionBodyLen   = 8 + 8 + 1 + 8 + 8
	levelsBodyFixedLen = 2 + 2
	levelLen           = 8 + 8
	errorBodyFixedLen  = 2
	maxLevels          = math.MaxUint16
	maxErrLen          = math.MaxUint16
)

// Report is sent from the gateway to a client. Only the fields belonging to
// MessageType are carried on the wire.
type Report struct {
	MessageType ReportType // 1 byte
	ExecID      uuid.UUID  // 16 bytes
	Timestamp   uint64     // 8 bytes, unix nanoseconds

	// Ack and execution
	OrderID common.OrderID // 8 bytes

	// Ack
	Accepted bool            // 1 byte
	Resting  common.Quantity // 8 bytes

	// Execution
	CounterpartyID common.OrderID  // 8 bytes
	Side           common.Side     // 1 byte
	Price          common.Price    // 8 bytes
	Quantity       common.Quantity // 8 bytes

	// Levels: 2 byte counts then (price, quantity) pairs
	Levels common.OrderBookLevels

	// Error: 2 byte length then text
	Err string
}

func newReport(typeOf ReportType) Report {
	return Report{
		MessageType: typeOf,
		ExecID:      uuid.New(),
		Timestamp:   uint64(time.Now().UnixNano()),
	}
}

// NewAckReport acknowledges an order admission or modification.
func NewAckReport(id common.OrderID, accepted bool, resting common.Quantity) Report {
	r := newReport(AckReport)
	r.OrderID = id
	r.Accepted = accepted
	r.Resting = resting
	return r
}

// NewExecutionReports generates both execution reports for a trade, one
// addressed to each side.
func NewExecutionReports(trade common.Trade) (bid Report, ask Report) {
	createReport := func(side common.Side, party, counterParty common.TradeInfo) Report {
		r := newReport(ExecutionReport)
		r.OrderID = party.OrderID
		r.CounterpartyID = counterParty.OrderID
		r.Side = side
		r.Price = party.Price
		r.Quantity = party.Quantity
		return r
	}
	return createReport(common.Buy, trade.Bid, trade.Ask), createReport(common.Sell, trade.Ask, trade.Bid)
}

func NewLevelsReport(levels common.OrderBookLevels) Report {
	r := newReport(LevelsReport)
	r.Levels = levels
	return r
}

func NewErrorReport(err error) Report {
	r := newReport(ErrorReport)
	r.Err = err.Error()
	return r
}

// Serialize converts the report to be sent on the wire.
func (r *Report) Serialize() ([]byte, error) {
	var body []byte
	switch r.MessageType {
	case AckReport:
		body = make([]byte, ackBodyLen)
		binary.BigEndian.PutUint64(body[0:8], r.OrderID)
		if r.Accepted {
			body[8] = 1
		}
		binary.BigEndian.PutUint64(body[9:17], r.Resting)
	case ExecutionReport:
		body = make([]byte, executionBodyLen)
		binary.BigEndian.PutUint64(body[0:8], r.OrderID)
		binary.BigEndian.PutUint64(body[8:16], r.CounterpartyID)
		body[16] = byte(r.Side)
		binary.BigEndian.PutUint64(body[17:25], uint64(r.Price))
		binary.BigEndian.PutUint64(body[25:33], r.Quantity)
	case LevelsReport:
		// Deep books are truncated to what the counts can address.
		bids := r.Levels.Bids[:min(len(r.Levels.Bids), maxLevels)]
		asks := r.Levels.Asks[:min(len(r.Levels.Asks), maxLevels)]
		body = make([]byte, levelsBodyFixedLen+levelLen*(len(bids)+len(asks)))
		binary.BigEndian.PutUint16(body[0:2], uint16(len(bids)))
		binary.BigEndian.PutUint16(body[2:4], uint16(len(asks)))
		offset := levelsBodyFixedLen
		for _, level := range append(append(common.LevelInfos{}, bids...), asks...) {
			binary.BigEndian.PutUint64(body[offset:offset+8], uint64(level.Price))
			binary.BigEndian.PutUint64(body[offset+8:offset+16], level.Quantity)
			offset += levelLen
		}
	case ErrorReport:
		errStr := r.Err[:min(len(r.Err), maxErrLen)]
		body = make([]byte, errorBodyFixedLen+len(errStr))
		binary.BigEndian.PutUint16(body[0:2], uint16(len(errStr)))
		copy(body[errorBodyFixedLen:], errStr)
	default:
		return nil, fmt.Errorf("%w: report %d", ErrInvalidMessageType, uint8(r.MessageType))
	}

	buf := make([]byte, reportHeaderLen, reportHeaderLen+len(body))
	buf[0] = byte(r.MessageType)
	copy(buf[1:17], r.ExecID[:])
	binary.BigEndian.PutUint64(buf[17:25], r.Timestamp)
	return append(buf, body...), nil
}

// ReadReport reads exactly one report from r.
func ReadReport(r io.Reader) (Report, error) {
	head := make([]byte, reportHeaderLen)
	if _, err := io.ReadFull(r, head); err != nil {
		return Report{}, err
	}

	report := Report{
		MessageType: ReportType(head[0]),
		Timestamp:   binary.BigEndian.Uint64(head[17:25]),
	}
	copy(report.ExecID[:], head[1:17])

	readBody := func(n int) ([]byte, error) {
		body := make([]byte, n)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, fmt.Errorf("reading %v report body: %w", report.MessageType, err)
		}
		return body, nil
	}

	switch report.MessageType {
	case AckReport:
		body, err := readBody(ackBodyLen)
		if err != nil {
			return Report{}, err
		}
		report.OrderID = binary.BigEndian.Uint64(body[0:8])
		report.Accepted = body[8] == 1
		report.Resting = binary.BigEndian.Uint64(body[9:17])
	case ExecutionReport:
		body, err := readBody(executionBodyLen)
		if err != nil {
			return Report{}, err
		}
		report.OrderID = binary.BigEndian.Uint64(body[0:8])
		report.CounterpartyID = binary.BigEndian.Uint64(body[8:16])
		report.Side = common.Side(body[16])
		report.Price = common.Price(binary.BigEndian.Uint64(body[17:25]))
		report.Quantity = binary.BigEndian.Uint64(body[25:33])
	case LevelsReport:
		counts, err := readBody(levelsBodyFixedLen)
		if err != nil {
			return Report{}, err
		}
		nBids := int(binary.BigEndian.Uint16(counts[0:2]))
		nAsks := int(binary.BigEndian.Uint16(counts[2:4]))
		body, err := readBody(levelLen * (nBids + nAsks))
		if err != nil {
			return Report{}, err
		}
		levels := make(common.LevelInfos, nBids+nAsks)
		for i := range levels {
			offset := i * levelLen
			levels[i] = common.LevelInfo{
				Price:    common.Price(binary.BigEndian.Uint64(body[offset : offset+8])),
				Quantity: binary.BigEndian.Uint64(body[offset+8 : offset+16]),
			}
		}
		report.Levels = common.OrderBookLevels{Bids: levels[:nBids:nBids], Asks: levels[nBids:]}
	case ErrorReport:
		length, err := readBody(errorBodyFixedLen)
		if err != nil {
			return Report{}, err
		}
		text, err := readBody(int(binary.BigEndian.Uint16(length)))
		if err != nil {
			return Report{}, err
		}
		report.Err = string(text)
	default:
		return Report{}, fmt.Errorf("%w: report %d", ErrInvalidMessageType, uint8(report.MessageType))
	}
	return report, nil
}
