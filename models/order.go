package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order is a checkout of one or more source-code products by a buyer
type Order struct {
	ID             string          `gorm:"primaryKey;size:36" json:"id"`
	OrderNumber    string          `gorm:"uniqueIndex;size:32;not null" json:"orderNumber"` // human readable, generated at checkout
	BuyerID        string          `gorm:"size:36;not null;index" json:"buyerId"`
	Buyer          *User           `gorm:"foreignKey:BuyerID" json:"buyer,omitempty"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"totalAmount"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"discountAmount"`
	TaxAmount      decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"taxAmount"`
	Status         OrderStatus     `gorm:"size:16;not null;index" json:"status"`
	PaymentMethod  PaymentMethod   `gorm:"size:32;not null" json:"paymentMethod"`
	PaymentStatus  PaymentStatus   `gorm:"size:16;not null;index" json:"paymentStatus"`
	PaymentID      *string         `gorm:"size:128" json:"paymentId"` // external gateway reference
	Notes          *string         `gorm:"type:text" json:"notes"`
	Items          []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
	BuyerName      string          `gorm:"-" json:"buyerName,omitempty"`
	BuyerEmail     string          `gorm:"-" json:"buyerEmail,omitempty"`
	ItemCount      int             `gorm:"-" json:"itemCount"`
	CreatedAt      time.Time       `gorm:"index" json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	DeletedAt      gorm.DeletedAt  `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Order model
func (Order) TableName() string {
	return "orders"
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}

func (o Order) RowID() string     { return o.ID }
func (o Order) RowStatus() string { return string(o.Status) }

// OrderItem is a line of an order. Title and price are copied from the
// product at purchase time so later product edits don't rewrite history.
type OrderItem struct {
	ID           string          `gorm:"primaryKey;size:36" json:"id"`
	OrderID      string          `gorm:"size:36;not null;index" json:"orderId"`
	ProductID    string          `gorm:"size:36;not null;index" json:"productId"`
	ProductTitle string          `gorm:"size:255;not null" json:"productTitle"`
	ProductPrice decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"productPrice"`
	SnapshotKey  *string         `gorm:"size:512" json:"snapshotKey,omitempty"` // S3 key of the preview image
	SnapshotURL  *string         `gorm:"-" json:"snapshotUrl,omitempty"`        // computed, presigned URL for the snapshot
	CreatedAt    time.Time       `json:"createdAt"`
}

// TableName specifies the table name for the OrderItem model
func (OrderItem) TableName() string {
	return "order_items"
}

func (i *OrderItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}
