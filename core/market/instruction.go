package market

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"deliverynet/native/orders"
)

const (
	TagPlaceOrder      = "place_order"
	TagApproveProposal = "approve_proposal"

	instructionSeparator = "|"
)

// Instruction is the parsed form of a funds-received message. The set of
// implementations is closed: PlaceOrderInstruction, ApproveProposalInstruction
// and UnknownInstruction.
type Instruction interface {
	Tag() string
	isInstruction()
}

// PlaceOrderInstruction pays for a cart.
type PlaceOrderInstruction struct {
	Cart Cart
}

func (PlaceOrderInstruction) Tag() string { return TagPlaceOrder }
func (PlaceOrderInstruction) isInstruction() {}

// ApproveProposalInstruction pays a courier's proposal.
type ApproveProposalInstruction struct {
	Approval Approval
}

func (ApproveProposalInstruction) Tag() string { return TagApproveProposal }
func (ApproveProposalInstruction) isInstruction() {}

// UnknownInstruction carries a tag the engine does not handle.
type UnknownInstruction struct {
	Name string
}

func (u UnknownInstruction) Tag() string { return u.Name }
func (UnknownInstruction) isInstruction() {}

// Cart is the place_order payload.
type Cart struct {
	Seller              string            `json:"seller"`
	Location            orders.Coordinate `json:"location"`
	PercentageInsurance uint8             `json:"percentage_insurance"`
	ListForBidding      bool              `json:"list_for_bidding"`
	Items               []CartItem        `json:"items"`
}

// CartItem is a cart line with a decimal price in whole token units.
type CartItem struct {
	Name      string      `json:"name"`
	Serial    string      `json:"serial"`
	Price     json.Number `json:"price"`
	Quantity  uint16      `json:"quantity"`
	Reference string      `json:"reference"`
}

// Approval is the approve_proposal payload.
type Approval struct {
	OrderID   string `json:"order_id"`
	CourierID string `json:"courier_id"`
}

const cartSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["seller", "location", "items"],
  "properties": {
    "seller": { "type": "string", "minLength": 1 },
    "location": {
      "type": "object",
      "required": ["lat", "lon"],
      "properties": {
        "lat": { "type": "integer" },
        "lon": { "type": "integer" }
      }
    },
    "percentage_insurance": { "type": "integer", "minimum": 0, "maximum": 100 },
    "list_for_bidding": { "type": "boolean" },
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "price", "quantity"],
        "properties": {
          "name": { "type": "string" },
          "serial": { "type": "string" },
          "price": { "type": "number", "minimum": 0 },
          "quantity": { "type": "integer", "minimum": 0, "maximum": 65535 },
          "reference": { "type": "string" }
        }
      }
    }
  }
}`

const approvalSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["order_id", "courier_id"],
  "properties": {
    "order_id": { "type": "string", "minLength": 1 },
    "courier_id": { "type": "string", "minLength": 1 }
  }
}`

var (
	cartSchemaLoader     = gojsonschema.NewStringLoader(cartSchema)
	approvalSchemaLoader = gojsonschema.NewStringLoader(approvalSchema)
)

func validatePayload(schema gojsonschema.JSONLoader, body []byte) error {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if !result.Valid() {
		var sb strings.Builder
		for i, e := range result.Errors() {
			if i > 0 {
				sb.WriteString("; ")
			}
			sb.WriteString(e.String())
		}
		return fmt.Errorf("%w: %s", ErrMalformedPayload, sb.String())
	}
	return nil
}

// ParseCart validates and decodes a place_order payload.
func ParseCart(body []byte) (Cart, error) {
	var cart Cart
	if err := validatePayload(cartSchemaLoader, body); err != nil {
		return cart, err
	}
	if err := json.Unmarshal(body, &cart); err != nil {
		return cart, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return cart, nil
}

// ParseApproval validates and decodes an approve_proposal payload.
func ParseApproval(body []byte) (Approval, error) {
	var approval Approval
	if err := validatePayload(approvalSchemaLoader, body); err != nil {
		return approval, err
	}
	if err := json.Unmarshal(body, &approval); err != nil {
		return approval, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return approval, nil
}

// ParseInstruction splits msg at the first "|" into a tag and a JSON body.
// Unknown tags yield an UnknownInstruction without inspecting the body.
func ParseInstruction(msg string) (Instruction, error) {
	tag, body, found := strings.Cut(msg, instructionSeparator)
	if !found {
		return nil, fmt.Errorf("%w: missing %q separator", ErrMalformedPayload, instructionSeparator)
	}
	tag = strings.TrimSpace(tag)
	switch tag {
	case TagPlaceOrder:
		cart, err := ParseCart([]byte(body))
		if err != nil {
			return nil, err
		}
		return PlaceOrderInstruction{Cart: cart}, nil
	case TagApproveProposal:
		approval, err := ParseApproval([]byte(body))
		if err != nil {
			return nil, err
		}
		return ApproveProposalInstruction{Approval: approval}, nil
	default:
		return UnknownInstruction{Name: tag}, nil
	}
}
