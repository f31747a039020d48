package models

import "time"

// Owner is a dashboard account allowed to advance order status.
type Owner struct {
	Username     string     `gorm:"type:varchar(100);primaryKey" json:"username"`
	Name         string     `gorm:"type:varchar(255)" json:"name,omitempty"`
	PasswordHash string     `gorm:"type:varchar(255);not null" json:"-"`
	IsPrimary    bool       `gorm:"default:false" json:"is_primary"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// TableName pins the gorm table name.
func (Owner) TableName() string {
	return "owners"
}

// ToMap renders the account for the dashboard without the hash.
func (o *Owner) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"username":   o.Username,
		"name":       o.Name,
		"is_primary": o.IsPrimary,
		"created_at": o.CreatedAt.Format(time.RFC3339),
	}
	if o.LastLoginAt != nil {
		m["last_login_at"] = o.LastLoginAt.Format(time.RFC3339)
	}
	return m
}
