package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"matchbook/internal/common"
	"matchbook/internal/protocol"
)

func main() {
	// 1. CLI Parameter Parsing
	serverAddr := flag.String("server", "127.0.0.1:9001", "Address of the matching server")
	action := flag.String("action", "place", "Action to perform: ['place', 'cancel', 'modify', 'levels']")

	// Order Parameters
	id := flag.Uint64("id", 1, "Order id; with several quantities, ids count up from here")
	sideStr := flag.String("side", "buy", "Order side: 'buy' or 'sell'")
	typeStr := flag.String("type", "gtc", "Order type: 'gtc', 'fak' or 'market'")
	price := flag.Int64("price", 100, "Limit price in ticks (ignored for market orders)")
	qtyStr := flag.String("qty", "10", "Quantity or comma-separated list (e.g. 10,20,50)")

	wait := flag.Duration("wait", 2*time.Second, "How long to listen for reports before exiting")

	flag.Parse()

	side, err := parseSide(*sideStr)
	if err != nil {
		log.Fatal(err)
	}
	orderType, err := parseOrderType(*typeStr)
	if err != nil {
		log.Fatal(err)
	}

	// Connect to Server
	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("Failed to connect to server at %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("Connected to %s\n", *serverAddr)

	// Start Listening for Reports (Async)
	go readReports(conn)

	// Execute Action
	var msgs []protocol.Message
	switch strings.ToLower(*action) {
	case "place":
		for i, q := range parseQuantities(*qtyStr) {
			msgs = append(msgs, protocol.NewOrderMessage{
				OrderType: orderType,
				Side:      side,
				Price:     *price,
				Quantity:  q,
				OrderID:   *id + uint64(i),
			})
		}
	case "cancel":
		msgs = append(msgs, protocol.CancelOrderMessage{OrderID: *id})
	case "modify":
		quantities := parseQuantities(*qtyStr)
		if len(quantities) != 1 {
			log.Fatal("Error: -qty must be a single quantity for modify")
		}
		msgs = append(msgs, protocol.ModifyOrderMessage{
			OrderID:  *id,
			Side:     side,
			Price:    *price,
			Quantity: quantities[0],
		})
	case "levels":
		msgs = append(msgs, protocol.BaseMessage{TypeOf: protocol.GetLevels})
	default:
		log.Fatalf("Unknown action: %s", *action)
	}

	for _, msg := range msgs {
		if _, err := conn.Write(msg.Encode()); err != nil {
			log.Printf("Failed to send %v: %v", msg.GetType(), err)
			continue
		}
		fmt.Printf("-> Sent %v\n", msg.GetType())
	}

	// Keep the client alive to receive reports
	time.Sleep(*wait)
}

func parseSide(s string) (common.Side, error) {
	switch strings.ToLower(s) {
	case "buy":
		return common.Buy, nil
	case "sell":
		return common.Sell, nil
	}
	return 0, fmt.Errorf("unknown side %q", s)
}

func parseOrderType(s string) (common.OrderType, error) {
	switch strings.ToLower(s) {
	case "gtc":
		return common.GoodTillCancel, nil
	case "fak":
		return common.FillAndKill, nil
	case "market":
		return common.Market, nil
	}
	return 0, fmt.Errorf("unknown order type %q", s)
}

// parseQuantities splits a comma-separated string into a slice of quantities
func parseQuantities(input string) []common.Quantity {
	parts := strings.Split(input, ",")
	var result []common.Quantity
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if val, err := strconv.ParseUint(p, 10, 64); err == nil {
			result = append(result, val)
		} else {
			log.Printf("Warning: Invalid quantity '%s', skipping.", p)
		}
	}
	return result
}

// readReports continuously reads and prints reports from the server
func readReports(conn net.Conn) {
	for {
		report, err := protocol.ReadReport(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Printf("Connection lost: %v", err)
			}
			os.Exit(0)
		}

		switch report.MessageType {
		case protocol.AckReport:
			fmt.Printf("[ACK] Order: %d | Accepted: %t | Resting: %d\n",
				report.OrderID, report.Accepted, report.Resting)
		case protocol.ExecutionReport:
			fmt.Printf("[EXECUTION] Order: %d %v | Qty: %d | Price: %d | vs: %d | ExecID: %s\n",
				report.OrderID, report.Side, report.Quantity, report.Price, report.CounterpartyID, report.ExecID)
		case protocol.LevelsReport:
			fmt.Println("[LEVELS]")
			for i := len(report.Levels.Asks) - 1; i >= 0; i-- {
				level := report.Levels.Asks[i]
				fmt.Printf("  ASK %8d x %d\n", level.Price, level.Quantity)
			}
			for _, level := range report.Levels.Bids {
				fmt.Printf("  BID %8d x %d\n", level.Price, level.Quantity)
			}
		case protocol.ErrorReport:
			fmt.Printf("[SERVER ERROR] %s\n", report.Err)
		}
	}
}
