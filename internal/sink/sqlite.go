// Package sink implements the Document sink (spec.md §6, out-of-scope
// collaborator named only for its interface), grounded on the teacher's
// internal/adapters/storage.SQLiteAdapter: gorm + sqlite, WAL mode,
// clause.OnConflict upserts, opentelemetry tracing plugin.
package sink

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/wisp-sensor/wisp/internal/domain"
	"github.com/wisp-sensor/wisp/internal/ports"
)

// DeviceModel is the devices collection (spec.md §6): unique mac_address,
// secondary index on last_seen.
type DeviceModel struct {
	MACAddress  string `gorm:"column:mac_address;primaryKey"`
	FirstSeen   time.Time
	LastSeen    time.Time `gorm:"index"`
	RSSIValues  string    // JSON-encoded []int, newest last
	ProbeSSIDs  string    // JSON-encoded []string
	PacketCount uint64
	Vendor      string
}

func (DeviceModel) TableName() string { return "devices" }

// AccessPointModel is the access_points collection: unique bssid,
// secondary index on last_seen.
type AccessPointModel struct {
	BSSID       string `gorm:"column:bssid;primaryKey"`
	SSID        string
	Channel     int
	FirstSeen   time.Time
	LastSeen    time.Time `gorm:"index"`
	RSSIValues  string
	BeaconCount uint64
	Encryption  string
}

func (AccessPointModel) TableName() string { return "access_points" }

// EventModel is the events collection: descending timestamp, secondary
// mac_address index.
type EventModel struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	EventType string `gorm:"column:event_type"`
	Timestamp time.Time `gorm:"index:idx_events_timestamp,sort:desc"`
	MAC       string    `gorm:"column:mac_address;index"`
	RSSI      *int
	Vendor    string
	SSID      string
	Channel   *int
}

func (EventModel) TableName() string { return "events" }

// SQLiteSink implements ports.Sink using GORM and SQLite.
type SQLiteSink struct {
	db *gorm.DB
}

func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&DeviceModel{}, &AccessPointModel{}, &EventModel{}); err != nil {
		return nil, err
	}

	if err := db.Use(tracing.NewPlugin()); err != nil {
		return nil, err
	}

	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA busy_timeout=5000;")
	db.Exec("PRAGMA synchronous=NORMAL;")

	db.Exec("CREATE INDEX IF NOT EXISTS idx_devices_last_seen ON devices(last_seen)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_access_points_last_seen ON access_points(last_seen)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp DESC)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_events_mac ON events(mac_address)")

	return &SQLiteSink{db: db}, nil
}

// UpsertDevice sets first_seen on insert. On update it overwrites
// last_seen, rssi_values, probe_ssids and packet_count with the snapshot's
// values, and vendor only when the snapshot carries a non-empty one. The
// snapshot holds every probe SSID and the newest RSSI samples seen by this
// process; SSIDs and samples stored by an earlier process are not merged in.
func (s *SQLiteSink) UpsertDevice(ctx context.Context, d domain.Device) error {
	model := DeviceModel{
		MACAddress:  d.MAC.String(),
		FirstSeen:   d.FirstSeen,
		LastSeen:    d.LastSeen,
		RSSIValues:  encodeInts(d.RSSIValues),
		ProbeSSIDs:  encodeStrings(probeSSIDSlice(d.ProbeSSIDs)),
		PacketCount: d.PacketCount,
		Vendor:      d.Vendor,
	}
	updates := []string{"last_seen", "rssi_values", "probe_ssids", "packet_count"}
	if d.Vendor != "" {
		updates = append(updates, "vendor")
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "mac_address"}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(&model).Error
}

// UpsertAccessPoint overwrites ssid/channel/encryption per §6.
func (s *SQLiteSink) UpsertAccessPoint(ctx context.Context, a domain.AccessPoint) error {
	model := AccessPointModel{
		BSSID:       a.BSSID.String(),
		SSID:        a.SSID,
		Channel:     a.Channel,
		FirstSeen:   a.FirstSeen,
		LastSeen:    a.LastSeen,
		RSSIValues:  encodeInts(a.RSSIValues),
		BeaconCount: a.BeaconCount,
		Encryption:  a.Encryption.String(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "bssid"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"ssid", "channel", "last_seen", "rssi_values", "beacon_count", "encryption",
		}),
	}).Create(&model).Error
}

func (s *SQLiteSink) RecordEvent(ctx context.Context, e ports.Event) error {
	ts, err := time.Parse(time.RFC3339, e.Timestamp)
	if err != nil {
		ts = time.Now().UTC()
	}
	model := EventModel{
		EventType: e.Type,
		Timestamp: ts,
		MAC:       e.MAC,
		RSSI:      e.RSSI,
		Vendor:    e.Vendor,
		SSID:      e.SSID,
		Channel:   e.Channel,
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

func (s *SQLiteSink) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func encodeInts(v []int) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func encodeStrings(v []string) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func probeSSIDSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}

var _ ports.Sink = (*SQLiteSink)(nil)
