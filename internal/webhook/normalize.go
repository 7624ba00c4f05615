// Package webhook ingests order events pushed by external delivery
// platforms. Each platform sends a structurally different payload; one
// normalizer per platform maps it onto the canonical external-order record,
// and a single handler drives signature verification, idempotent order
// creation, and status updates.
package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"chowline/internal/model"
	"chowline/internal/money"
)

// ErrUnknownPlatform is returned when no normalizer exists for a platform.
var ErrUnknownPlatform = errors.New("unknown platform")

// ExternalOrder is the canonical record every normalizer produces.
type ExternalOrder struct {
	ExternalOrderID string
	Platform        model.Platform
	CustomerName    string
	CustomerPhone   string
	CustomerEmail   *string
	DeliveryAddress string
	DeliveryType    model.DeliveryType
	PaymentMethod   string
	TotalMinor      int64
	Items           []ExternalItem
	Notes           string
}

// ExternalItem is one line of an external order. Unit prices are minor units.
type ExternalItem struct {
	Name           string
	UnitPriceMinor int64
	Quantity       int
	Notes          string
}

// Payload pairs the platform's event name with the normalized order.
type Payload struct {
	Event string
	Order ExternalOrder
}

// Normalize dispatches to the platform's normalizer.
func Normalize(platform model.Platform, raw []byte, logf func(string, ...any)) (Payload, error) {
	switch platform {
	case model.PlatformIfood:
		return NormalizeIfood(raw, logf)
	case model.PlatformUberEats:
		return NormalizeUberEats(raw, logf)
	case model.PlatformQuero:
		return NormalizeQuero(raw, logf)
	case model.PlatformGeneric:
		return NormalizeGeneric(raw, logf)
	default:
		return Payload{}, fmt.Errorf("%w: %q", ErrUnknownPlatform, platform)
	}
}

// wireAmount decodes a monetary value that platforms send either as a
// decimal number (45.90) or a decimal string ("45.90") into minor units.
type wireAmount int64

func (a *wireAmount) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*a = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		v, err := money.ParseDecimal(str)
		if err != nil {
			return err
		}
		*a = wireAmount(v)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*a = wireAmount(money.FromFloat(f))
	return nil
}

// NormalizeIfood maps an iFood webhook body onto the canonical record.
func NormalizeIfood(raw []byte, logf func(string, ...any)) (Payload, error) {
	var body struct {
		Event string `json:"event"`
		Order struct {
			ID       string `json:"id"`
			Customer struct {
				Name  string `json:"name"`
				Phone string `json:"phone"`
				Email string `json:"email"`
			} `json:"customer"`
			DeliveryAddress struct {
				FormattedAddress string `json:"formattedAddress"`
			} `json:"deliveryAddress"`
			OrderType     string      `json:"orderType"`
			PaymentMethod string      `json:"paymentMethod"`
			Total         *wireAmount `json:"total"`
			Items         []struct {
				Name         string      `json:"name"`
				Quantity     int         `json:"quantity"`
				UnitPrice    *wireAmount `json:"unitPrice"`
				Observations string      `json:"observations"`
			} `json:"items"`
			Notes string `json:"notes"`
		} `json:"order"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return Payload{}, fmt.Errorf("decode ifood payload: %w", err)
	}

	out := ExternalOrder{
		ExternalOrderID: body.Order.ID,
		Platform:        model.PlatformIfood,
		CustomerName:    body.Order.Customer.Name,
		CustomerPhone:   body.Order.Customer.Phone,
		CustomerEmail:   optionalString(body.Order.Customer.Email),
		DeliveryAddress: body.Order.DeliveryAddress.FormattedAddress,
		DeliveryType:    deliveryType(body.Order.OrderType),
		PaymentMethod:   body.Order.PaymentMethod,
		TotalMinor:      totalOrZero(body.Order.Total, model.PlatformIfood, body.Order.ID, logf),
		Notes:           body.Order.Notes,
	}
	for _, it := range body.Order.Items {
		out.Items = append(out.Items, ExternalItem{
			Name:           it.Name,
			UnitPriceMinor: amountOrZero(it.UnitPrice),
			Quantity:       it.Quantity,
			Notes:          it.Observations,
		})
	}
	applyDefaults(&out)
	return Payload{Event: body.Event, Order: out}, nil
}

// NormalizeUberEats maps an Uber Eats webhook body onto the canonical record.
func NormalizeUberEats(raw []byte, logf func(string, ...any)) (Payload, error) {
	var body struct {
		EventType string `json:"event_type"`
		Meta      struct {
			ResourceID string `json:"resource_id"`
		} `json:"meta"`
		Order struct {
			DisplayID string `json:"display_id"`
			Eater     struct {
				FirstName string `json:"first_name"`
				LastName  string `json:"last_name"`
				Phone     string `json:"phone"`
				Email     string `json:"email"`
			} `json:"eater"`
			Dropoff struct {
				Address string `json:"address"`
				Type    string `json:"type"`
			} `json:"dropoff"`
			Charges struct {
				Total *wireAmount `json:"total"`
			} `json:"charges"`
			Cart struct {
				Items []struct {
					Title    string      `json:"title"`
					Quantity int         `json:"quantity"`
					Price    *wireAmount `json:"price"`
					Note     string      `json:"special_instructions"`
				} `json:"items"`
			} `json:"cart"`
		} `json:"order"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return Payload{}, fmt.Errorf("decode ubereats payload: %w", err)
	}

	externalID := body.Order.DisplayID
	if externalID == "" {
		externalID = body.Meta.ResourceID
	}
	name := strings.TrimSpace(body.Order.Eater.FirstName + " " + body.Order.Eater.LastName)
	out := ExternalOrder{
		ExternalOrderID: externalID,
		Platform:        model.PlatformUberEats,
		CustomerName:    name,
		CustomerPhone:   body.Order.Eater.Phone,
		CustomerEmail:   optionalString(body.Order.Eater.Email),
		DeliveryAddress: body.Order.Dropoff.Address,
		DeliveryType:    deliveryType(body.Order.Dropoff.Type),
		PaymentMethod:   "online",
		TotalMinor:      totalOrZero(body.Order.Charges.Total, model.PlatformUberEats, externalID, logf),
	}
	for _, it := range body.Order.Cart.Items {
		out.Items = append(out.Items, ExternalItem{
			Name:           it.Title,
			UnitPriceMinor: amountOrZero(it.Price),
			Quantity:       it.Quantity,
			Notes:          it.Note,
		})
	}
	applyDefaults(&out)
	return Payload{Event: body.EventType, Order: out}, nil
}

// NormalizeQuero maps a Quero Delivery webhook body onto the canonical record.
func NormalizeQuero(raw []byte, logf func(string, ...any)) (Payload, error) {
	var body struct {
		Evento string `json:"evento"`
		Pedido struct {
			Codigo  string `json:"codigo"`
			Cliente struct {
				Nome     string `json:"nome"`
				Telefone string `json:"telefone"`
				Email    string `json:"email"`
			} `json:"cliente"`
			Endereco       string      `json:"endereco"`
			TipoEntrega    string      `json:"tipoEntrega"`
			FormaPagamento string      `json:"formaPagamento"`
			ValorTotal     *wireAmount `json:"valorTotal"`
			Itens          []struct {
				Nome          string      `json:"nome"`
				Quantidade    int         `json:"quantidade"`
				ValorUnitario *wireAmount `json:"valorUnitario"`
				Observacao    string      `json:"observacao"`
			} `json:"itens"`
			Observacao string `json:"observacao"`
		} `json:"pedido"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return Payload{}, fmt.Errorf("decode quero payload: %w", err)
	}

	out := ExternalOrder{
		ExternalOrderID: body.Pedido.Codigo,
		Platform:        model.PlatformQuero,
		CustomerName:    body.Pedido.Cliente.Nome,
		CustomerPhone:   body.Pedido.Cliente.Telefone,
		CustomerEmail:   optionalString(body.Pedido.Cliente.Email),
		DeliveryAddress: body.Pedido.Endereco,
		DeliveryType:    deliveryType(body.Pedido.TipoEntrega),
		PaymentMethod:   body.Pedido.FormaPagamento,
		TotalMinor:      totalOrZero(body.Pedido.ValorTotal, model.PlatformQuero, body.Pedido.Codigo, logf),
		Notes:           body.Pedido.Observacao,
	}
	for _, it := range body.Pedido.Itens {
		out.Items = append(out.Items, ExternalItem{
			Name:           it.Nome,
			UnitPriceMinor: amountOrZero(it.ValorUnitario),
			Quantity:       it.Quantidade,
			Notes:          it.Observacao,
		})
	}
	applyDefaults(&out)
	return Payload{Event: body.Evento, Order: out}, nil
}

// NormalizeGeneric maps the platform-agnostic payload shape, used by partners
// without a dedicated adapter.
func NormalizeGeneric(raw []byte, logf func(string, ...any)) (Payload, error) {
	var body struct {
		Event string `json:"event"`
		Order struct {
			ExternalID    string      `json:"external_id"`
			CustomerName  string      `json:"customer_name"`
			CustomerPhone string      `json:"customer_phone"`
			CustomerEmail string      `json:"customer_email"`
			Address       string      `json:"address"`
			DeliveryType  string      `json:"delivery_type"`
			PaymentMethod string      `json:"payment_method"`
			Total         *wireAmount `json:"total"`
			Items         []struct {
				Name      string      `json:"name"`
				Quantity  int         `json:"quantity"`
				UnitPrice *wireAmount `json:"unit_price"`
				Notes     string      `json:"notes"`
			} `json:"items"`
			Notes string `json:"notes"`
		} `json:"order"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return Payload{}, fmt.Errorf("decode generic payload: %w", err)
	}

	out := ExternalOrder{
		ExternalOrderID: body.Order.ExternalID,
		Platform:        model.PlatformGeneric,
		CustomerName:    body.Order.CustomerName,
		CustomerPhone:   body.Order.CustomerPhone,
		CustomerEmail:   optionalString(body.Order.CustomerEmail),
		DeliveryAddress: body.Order.Address,
		DeliveryType:    deliveryType(body.Order.DeliveryType),
		PaymentMethod:   body.Order.PaymentMethod,
		TotalMinor:      totalOrZero(body.Order.Total, model.PlatformGeneric, body.Order.ExternalID, logf),
		Notes:           body.Order.Notes,
	}
	for _, it := range body.Order.Items {
		out.Items = append(out.Items, ExternalItem{
			Name:           it.Name,
			UnitPriceMinor: amountOrZero(it.UnitPrice),
			Quantity:       it.Quantity,
			Notes:          it.Notes,
		})
	}
	applyDefaults(&out)
	return Payload{Event: body.Event, Order: out}, nil
}

// placeholderNames maps each platform to the customer-name fallback.
var placeholderNames = map[model.Platform]string{
	model.PlatformIfood:    "Customer via iFood",
	model.PlatformUberEats: "Customer via Uber Eats",
	model.PlatformQuero:    "Customer via Quero Delivery",
	model.PlatformGeneric:  "Customer via Webhook",
}

func applyDefaults(o *ExternalOrder) {
	if strings.TrimSpace(o.CustomerName) == "" {
		o.CustomerName = placeholderNames[o.Platform]
	}
	if o.PaymentMethod == "" {
		o.PaymentMethod = "online"
	}
	for i := range o.Items {
		if o.Items[i].Quantity <= 0 {
			o.Items[i].Quantity = 1
		}
	}
}

func totalOrZero(a *wireAmount, platform model.Platform, externalID string, logf func(string, ...any)) int64 {
	if a == nil {
		if logf != nil {
			logf("webhook: %s order %s arrived without a total, recording zero", platform, externalID)
		}
		return 0
	}
	return int64(*a)
}

func amountOrZero(a *wireAmount) int64 {
	if a == nil {
		return 0
	}
	return int64(*a)
}

func optionalString(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func deliveryType(raw string) model.DeliveryType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pickup", "takeout", "retirada":
		return model.DeliveryTypePickup
	default:
		return model.DeliveryTypeDelivery
	}
}
