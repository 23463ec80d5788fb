/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract. The movement
  DTO exposes the guid as the only identifier; storage-internal keys never
  cross this boundary.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Structural validation (parseable decimals, required fields) happens in
  handlers; business validation belongs to the engine.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/types.go: The domain model these mirror
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vivesbank/banking-engine/ledger"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// TransferRequest records a Transferencia.
type TransferRequest struct {
	Source      string          `json:"cuenta_origen"`
	Destination string          `json:"cuenta_destino"`
	Amount      decimal.Decimal `json:"cantidad"`
	Concept     string          `json:"concepto,omitempty"`
}

// PayrollRequest records an IngresoDeNomina.
type PayrollRequest struct {
	Destination string          `json:"cuenta_destino"`
	PayerID     string          `json:"cif_empresa"`
	Amount      decimal.Decimal `json:"cantidad"`
}

// CardPaymentRequest records a PagoConTarjeta.
type CardPaymentRequest struct {
	Card     string          `json:"tarjeta"`
	Merchant string          `json:"comercio"`
	Amount   decimal.Decimal `json:"cantidad"`
}

// DirectDebitRequest records a Domiciliacion.
type DirectDebitRequest struct {
	Source      string          `json:"cuenta_origen"`
	CreditorID  string          `json:"acreedor"`
	Amount      decimal.Decimal `json:"cantidad"`
	Periodicity string          `json:"periodicidad,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// MovementDTO is the persisted movement representation returned to
// clients.
type MovementDTO struct {
	GUID       string `json:"guid"`
	ClienteID  string `json:"cliente_id"`
	Tipo       string `json:"tipo"`
	Timestamp  string `json:"timestamp"`
	IsReversed bool   `json:"is_reversed"`

	CardPayment *CardPaymentDTO `json:"pago_con_tarjeta,omitempty"`
	Payroll     *PayrollDTO     `json:"ingreso_de_nomina,omitempty"`
	DirectDebit *DirectDebitDTO `json:"domiciliacion,omitempty"`
	Transfer    *TransferDTO    `json:"transferencia,omitempty"`
}

type CardPaymentDTO struct {
	Card     string          `json:"tarjeta"`
	Merchant string          `json:"comercio"`
	Amount   decimal.Decimal `json:"cantidad"`
}

type PayrollDTO struct {
	Destination string          `json:"cuenta_destino"`
	PayerID     string          `json:"cif_empresa"`
	Amount      decimal.Decimal `json:"cantidad"`
}

type DirectDebitDTO struct {
	Source        string          `json:"cuenta_origen"`
	CreditorID    string          `json:"acreedor"`
	Amount        decimal.Decimal `json:"cantidad"`
	Periodicity   string          `json:"periodicidad"`
	NextExecution string          `json:"proxima_ejecucion,omitempty"`
}

type TransferDTO struct {
	Source      string          `json:"cuenta_origen"`
	Destination string          `json:"cuenta_destino"`
	Amount      decimal.Decimal `json:"cantidad"`
	Concept     string          `json:"concepto,omitempty"`
}

// PageDTO wraps a page of movements with paging metadata.
type PageDTO struct {
	Content    []MovementDTO `json:"content"`
	Page       int           `json:"page"`
	Size       int           `json:"size"`
	TotalItems int           `json:"total_items"`
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// MAPPING
// =============================================================================

func toMovementDTO(mv *ledger.Movement) MovementDTO {
	dto := MovementDTO{
		GUID:       string(mv.GUID),
		ClienteID:  string(mv.ClientGUID),
		Tipo:       string(mv.Type),
		Timestamp:  mv.CreatedAt.Format(time.RFC3339),
		IsReversed: mv.IsReversed,
	}
	if p := mv.CardPayment; p != nil {
		dto.CardPayment = &CardPaymentDTO{
			Card:     string(p.Card),
			Merchant: p.Merchant,
			Amount:   p.Amount,
		}
	}
	if p := mv.Payroll; p != nil {
		dto.Payroll = &PayrollDTO{
			Destination: string(p.Destination),
			PayerID:     p.PayerID,
			Amount:      p.Amount,
		}
	}
	if p := mv.DirectDebit; p != nil {
		dd := &DirectDebitDTO{
			Source:      string(p.Source),
			CreditorID:  p.CreditorID,
			Amount:      p.Amount,
			Periodicity: string(p.Periodicity),
		}
		if !p.NextExecution.IsZero() {
			dd.NextExecution = p.NextExecution.Format(time.RFC3339)
		}
		dto.DirectDebit = dd
	}
	if p := mv.Transfer; p != nil {
		dto.Transfer = &TransferDTO{
			Source:      string(p.Source),
			Destination: string(p.Destination),
			Amount:      p.Amount,
			Concept:     p.Concept,
		}
	}
	return dto
}

func toPageDTO(page ledger.Page) PageDTO {
	content := make([]MovementDTO, len(page.Content))
	for i, mv := range page.Content {
		content[i] = toMovementDTO(mv)
	}
	return PageDTO{
		Content:    content,
		Page:       page.Page,
		Size:       page.Size,
		TotalItems: page.TotalItems,
	}
}
