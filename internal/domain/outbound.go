package domain

import "time"

// Outbound message delivery statuses. A row starts pending, and the batch
// runner moves it to sent or failed exactly once.
const (
	OutboundPending = "pending"
	OutboundSent    = "sent"
	OutboundFailed  = "failed"
)

// Send batch lifecycle statuses.
const (
	BatchPending = "pending"
	BatchRunning = "running"
	BatchDone    = "done"
)

// SendBatch groups the rows of one uploaded WhatsApp bulk-send spreadsheet.
//
// Fields:
//   - ID: UUID primary key.
//   - FileName: original upload name, kept for the report.
//   - Status: pending → running → done.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type SendBatch struct {
	ID        string    `json:"id"         gorm:"type:TEXT NOT NULL;primaryKey"`
	FileName  string    `json:"file_name"  gorm:"type:TEXT NOT NULL"`
	Status    string    `json:"status"     gorm:"type:TEXT NOT NULL;default:'pending';check:status IN ('pending','running','done')"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for SendBatch.
func (SendBatch) TableName() string { return "send_batches" }

// OutboundMessage is one row of a bulk WhatsApp send: a normalized phone
// number, the message body, and the delivery outcome reported by the
// gateway.
//
// Fields:
//   - ID: UUID primary key.
//   - BatchID: foreign key to the owning batch (indexed).
//   - Phone: destination number after country-prefix normalization.
//   - Body: message text exactly as imported.
//   - Status: pending | sent | failed.
//   - Error: gateway error text when Status is failed.
//   - SentAt: delivery attempt completion time (nil while pending).
type OutboundMessage struct {
	ID        string     `json:"id"       gorm:"type:TEXT NOT NULL;primaryKey"`
	BatchID   string     `json:"batch_id" gorm:"type:TEXT NOT NULL;index:idx_batch_msgs"`
	Phone     string     `json:"phone"    gorm:"type:TEXT NOT NULL"`
	Body      string     `json:"body"     gorm:"type:TEXT NOT NULL"`
	Status    string     `json:"status"   gorm:"type:TEXT NOT NULL;default:'pending';check:status IN ('pending','sent','failed')"`
	Error     string     `json:"error,omitempty" gorm:"type:TEXT"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`

	// Batch is the owning upload. Rows are cascade-deleted with their batch.
	Batch SendBatch `json:"-" gorm:"foreignKey:BatchID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for OutboundMessage.
func (OutboundMessage) TableName() string { return "outbound_messages" }
