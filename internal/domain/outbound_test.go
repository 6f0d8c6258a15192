package domain

import (
	"testing"
	"time"
)

func TestOutboundTableNames(t *testing.T) {
	if (SendBatch{}).TableName() != "send_batches" {
		t.Fatalf("SendBatch.TableName() = %q; want %q", (SendBatch{}).TableName(), "send_batches")
	}
	if (OutboundMessage{}).TableName() != "outbound_messages" {
		t.Fatalf("OutboundMessage.TableName() = %q; want %q", (OutboundMessage{}).TableName(), "outbound_messages")
	}
}

func TestOutboundMigrations_Indexes_AndCascades(t *testing.T) {
	db := newTestDB(t)
	db.Exec("PRAGMA foreign_keys=ON;")

	if err := db.AutoMigrate(&SendBatch{}, &OutboundMessage{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()

	for _, tbl := range []any{&SendBatch{}, &OutboundMessage{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}
	if !m.HasIndex(&OutboundMessage{}, "idx_batch_msgs") {
		t.Fatalf("expected index idx_batch_msgs on outbound_messages")
	}

	now := time.Now().UTC()
	b := &SendBatch{ID: "b1", FileName: "bulk.xlsx", Status: BatchPending, CreatedAt: now, UpdatedAt: now}
	if err := db.Create(b).Error; err != nil {
		t.Fatalf("insert batch: %v", err)
	}

	r1 := &OutboundMessage{ID: "o1", BatchID: "b1", Phone: "573112223344", Body: "hola", Status: OutboundPending, CreatedAt: now}
	r2 := &OutboundMessage{ID: "o2", BatchID: "b1", Phone: "573201234567", Body: "recuerda tu cita", Status: OutboundPending, CreatedAt: now}
	for _, r := range []*OutboundMessage{r1, r2} {
		if err := db.Create(r).Error; err != nil {
			t.Fatalf("insert row %s: %v", r.ID, err)
		}
	}

	// CASCADE: deleting the batch removes its rows.
	if err := db.Unscoped().Delete(&SendBatch{}, "id = ?", "b1").Error; err != nil {
		t.Fatalf("delete batch: %v", err)
	}
	var cnt int64
	if err := db.Model(&OutboundMessage{}).Where("batch_id = ?", "b1").Count(&cnt).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if cnt != 0 {
		t.Fatalf("expected cascade delete of outbound rows, still have %d", cnt)
	}
}
