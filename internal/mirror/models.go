package mirror

import "time"

// FightRow is one fight at one position of a card. The whole sequence is
// replaced on every save.
type FightRow struct {
	CardSlug string `gorm:"column:card_slug;primaryKey;size:64"`
	Position int    `gorm:"column:position;primaryKey;autoIncrement:false"`
	FightID  int    `gorm:"column:fight_id;not null"`
	A        string `gorm:"column:fighter_a;size:200;not null"`
	B        string `gorm:"column:fighter_b;size:200;not null"`
	Weight   string `gorm:"column:weight_class;size:100"`
	Klass    string `gorm:"column:division;size:100"`
	AGym     string `gorm:"column:gym_a;size:200"`
	BGym     string `gorm:"column:gym_b;size:200"`
	Winner   string `gorm:"column:winner;size:8"`
	Method   string `gorm:"column:method;size:200"`
}

// TableName provides the explicit table binding for GORM.
func (FightRow) TableName() string {
	return "card_fights"
}

// MetaRow holds one scalar of the card state as JSON text, so new state fields
// need no migration.
type MetaRow struct {
	CardSlug  string    `gorm:"column:card_slug;primaryKey;size:64"`
	Key       string    `gorm:"column:meta_key;primaryKey;size:64"`
	Value     string    `gorm:"column:value;type:text;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName provides the explicit table binding for GORM.
func (MetaRow) TableName() string {
	return "card_metadata"
}

type CardRow struct {
	Slug      string     `gorm:"column:slug;primaryKey;size:64"`
	ClubName  string     `gorm:"column:club_name;size:200"`
	Email     string     `gorm:"column:email;size:320"`
	CreatedAt time.Time  `gorm:"column:created_at;not null"`
	ExpiresAt *time.Time `gorm:"column:expires_at;index"`
}

// TableName provides the explicit table binding for GORM.
func (CardRow) TableName() string {
	return "cards"
}

// AuditRow is an append-only log of committed admin mutations.
type AuditRow struct {
	ID        uint      `gorm:"column:id;primaryKey"`
	CardSlug  string    `gorm:"column:card_slug;size:64;index"`
	Actor     string    `gorm:"column:actor;size:64;not null"`
	Action    string    `gorm:"column:action;size:64;not null"`
	RequestID string    `gorm:"column:request_id;size:128"`
	Details   string    `gorm:"column:details;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (AuditRow) TableName() string {
	return "card_audit"
}
