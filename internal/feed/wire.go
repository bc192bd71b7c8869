// Package feed consumes the venue's streaming orderbook channel.
package feed

import (
	"encoding/json"
	"fmt"

	"margin_maker/internal/core"

	"github.com/shopspring/decimal"
)

// subscription is the orderbook channel (un)subscribe request.
type subscription struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	ID      string `json:"id"`
}

func subscribeRequest(pair string) subscription {
	return subscription{Type: "subscribe", Channel: "orderbook", ID: pair}
}

func unsubscribeRequest(pair string) subscription {
	return subscription{Type: "unsubscribe", Channel: "orderbook", ID: pair}
}

type envelope struct {
	Type      string          `json:"type"`
	MessageID int64           `json:"message_id"`
	Contents  json.RawMessage `json:"contents"`
}

type wireLevel struct {
	ID     string `json:"id"`
	Price  string `json:"price"`
	Amount string `json:"amount"`
}

type wireUpdate struct {
	Side   string  `json:"side"`
	Type   string  `json:"type"`
	ID     string  `json:"id"`
	Price  *string `json:"price,omitempty"`
	Amount *string `json:"amount,omitempty"`
}

type wireContents struct {
	Bids    []wireLevel  `json:"bids"`
	Asks    []wireLevel  `json:"asks"`
	Updates []wireUpdate `json:"updates"`
}

// parseBookMessage decodes one channel frame. Frames without contents
// (connection and subscription acks) decode to nil.
func parseBookMessage(raw []byte) (*core.BookMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed channel frame: %w", err)
	}
	if len(env.Contents) == 0 {
		return nil, nil
	}

	var contents wireContents
	if err := json.Unmarshal(env.Contents, &contents); err != nil {
		return nil, fmt.Errorf("malformed channel contents: %w", err)
	}

	msg := &core.BookMessage{MessageID: env.MessageID}

	if contents.Updates == nil {
		snap := &core.BookSnapshot{}
		var err error
		if snap.Bids, err = parseLevels(contents.Bids); err != nil {
			return nil, err
		}
		if snap.Asks, err = parseLevels(contents.Asks); err != nil {
			return nil, err
		}
		msg.Snapshot = snap
		return msg, nil
	}

	for _, u := range contents.Updates {
		ev := core.DiffEvent{
			Side: core.Side(u.Side),
			Kind: core.DiffKind(u.Type),
			ID:   u.ID,
		}
		if u.Price != nil {
			p, err := decimal.NewFromString(*u.Price)
			if err != nil {
				return nil, fmt.Errorf("malformed update price %q: %w", *u.Price, err)
			}
			ev.Price = &p
		}
		if u.Amount != nil {
			q, err := decimal.NewFromString(*u.Amount)
			if err != nil {
				return nil, fmt.Errorf("malformed update amount %q: %w", *u.Amount, err)
			}
			ev.Quantity = &q
		}
		msg.Updates = append(msg.Updates, ev)
	}
	return msg, nil
}

func parseLevels(levels []wireLevel) ([]core.PriceLevel, error) {
	out := make([]core.PriceLevel, 0, len(levels))
	for _, l := range levels {
		price, err := decimal.NewFromString(l.Price)
		if err != nil {
			return nil, fmt.Errorf("malformed level price %q: %w", l.Price, err)
		}
		qty, err := decimal.NewFromString(l.Amount)
		if err != nil {
			return nil, fmt.Errorf("malformed level amount %q: %w", l.Amount, err)
		}
		out = append(out, core.PriceLevel{ID: l.ID, Price: price, Quantity: qty})
	}
	return out, nil
}
