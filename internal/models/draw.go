package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type DrawStatus string

const (
	DrawStatusOpen  DrawStatus = "open"
	DrawStatusDrawn DrawStatus = "drawn"
)

// Draw is a lottery event; tickets are purchases against it and the prize
// is credited to one winning ticket.
type Draw struct {
	ID              string          `json:"id" gorm:"primaryKey;size:64"`
	Name            string          `json:"name" gorm:"size:128;not null"`
	TicketPrice     decimal.Decimal `json:"ticket_price" gorm:"type:numeric(20,2);not null"`
	Prize           decimal.Decimal `json:"prize" gorm:"type:numeric(20,2);not null"`
	Status          DrawStatus      `json:"status" gorm:"size:16;not null"`
	WinningTicketID string          `json:"winning_ticket_id,omitempty" gorm:"size:64"`
	CreatedAt       time.Time       `json:"created_at"`
	DrawnAt         *time.Time      `json:"drawn_at,omitempty"`
}

type Ticket struct {
	ID            string    `json:"id" gorm:"primaryKey;size:64"`
	DrawID        string    `json:"draw_id" gorm:"size:64;not null;index"`
	UserID        string    `json:"user_id" gorm:"size:64;not null;index"`
	IsDemo        bool      `json:"is_demo" gorm:"not null"`
	TransactionID string    `json:"transaction_id" gorm:"size:64;not null"`
	CreatedAt     time.Time `json:"created_at"`
}

type CreateDrawRequest struct {
	Name        string          `json:"name" binding:"required"`
	TicketPrice decimal.Decimal `json:"ticket_price"`
	Prize       decimal.Decimal `json:"prize"`
}
