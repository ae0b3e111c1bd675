package etransfer

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"golang.org/x/net/html"
)

// payment is what the poller extracts from a transfer notice: which refill
// the sender addressed and how much money actually arrived.
type payment struct {
	refillID string
	amount   int64 // minor units
}

// extractPayment pulls the refill id and the transferred amount out of the
// notice HTML. The refill id lives in the sender supplied memo while the
// amount is printed by the bank, so the two must come from different nodes.
// A memo that carries both is someone trying to dictate their own amount.
func extractPayment(htmlBody string) (payment, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlBody))
	if err != nil {
		return payment{}, fmt.Errorf("parse html: %w", err)
	}

	var refillNode, amountNode *html.Node
	var refillID string
	var amount int64

	var walkErr error
	doc.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := ownText(s)

		if refillNode == nil {
			if id, ok := parseRefillID(text); ok {
				refillNode = s.Get(0)
				refillID = id
			}
		}
		if amountNode == nil {
			if cents, ok, err := parseAmount(text); err != nil {
				walkErr = err
				return false
			} else if ok {
				amountNode = s.Get(0)
				amount = cents
			}
		}
		return refillNode == nil || amountNode == nil
	})
	if walkErr != nil {
		return payment{}, walkErr
	}

	if refillNode == nil {
		return payment{}, fmt.Errorf("no refill id found in notice")
	}
	if amountNode == nil {
		return payment{}, fmt.Errorf("no amount found in notice")
	}
	if refillNode == amountNode {
		return payment{}, fmt.Errorf("refill id and amount share a node, refusing to trust the amount")
	}

	return payment{refillID: refillID, amount: amount}, nil
}

// ownText is the text directly under the node, without descendant text
func ownText(s *goquery.Selection) string {
	var b strings.Builder
	for _, node := range s.Nodes {
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			if child.Type == html.TextNode {
				b.WriteString(child.Data)
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// parseRefillID looks for "refill" in any casing followed by ':' or '&' and
// takes the token after the delimiter.
func parseRefillID(text string) (string, bool) {
	lower := strings.ToLower(text)
	idx := strings.Index(lower, "refill")
	if idx < 0 {
		return "", false
	}

	rest := strings.TrimSpace(text[idx+len("refill"):])
	if rest == "" || (rest[0] != ':' && rest[0] != '&') {
		return "", false
	}

	id := strings.TrimSpace(rest[1:])
	if fields := strings.Fields(id); len(fields) > 0 {
		id = fields[0]
	}
	if id == "" {
		return "", false
	}
	return id, true
}

// parseAmount reads the bank printed dollar figure, "$25.00 (CAD)" style,
// and converts it to minor units.
func parseAmount(text string) (int64, bool, error) {
	start := strings.Index(text, "$")
	if start < 0 {
		return 0, false, nil
	}
	end := strings.Index(text, "(CAD")
	if end < 0 || end < start {
		return 0, false, nil
	}

	figure := strings.TrimSpace(text[start+1 : end])
	figure = strings.ReplaceAll(figure, ",", "")

	d, err := decimal.NewFromString(figure)
	if err != nil {
		return 0, false, fmt.Errorf("parse amount %q: %w", figure, err)
	}

	cents := d.Shift(2)
	if !cents.IsInteger() {
		return 0, false, fmt.Errorf("amount %q has sub-cent precision", figure)
	}
	return cents.IntPart(), true, nil
}
