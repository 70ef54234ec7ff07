// internal/models/user.go
package models

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// User accounts are managed by an external identity service; this model only
// carries what ownership checks and auth claims need.
type User struct {
	BaseModel
	Email        string     `json:"email" gorm:"uniqueIndex;size:255;not null"`
	FullName     string     `json:"full_name" gorm:"size:255"`
	PasswordHash string     `json:"-" gorm:"size:255;not null"`
	Role         UserRole   `json:"role" gorm:"type:varchar(20);default:'umkm';index"`
	Status       UserStatus `json:"status" gorm:"type:varchar(20);default:'active'"`
	LastLoginAt  *time.Time `json:"last_login_at"`

	// Relationships
	BusinessProfile *BusinessProfile `json:"business_profile,omitempty" gorm:"foreignKey:UserID"`
}

func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hashedPassword)
	return nil
}

func (u *User) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
}

// BusinessProfile ties a UMKM user to the products they own. Profile CRUD
// lives outside this service.
type BusinessProfile struct {
	BaseModel
	UserID       uuid.UUID `json:"user_id" gorm:"type:uuid;uniqueIndex;not null"`
	BusinessName string    `json:"business_name" gorm:"size:255;not null"`
	BusinessType string    `json:"business_type" gorm:"size:50"`
	Province     string    `json:"province" gorm:"size:100"`
	RegencyCity  string    `json:"regency_city" gorm:"size:100"`

	// Relationships
	Products []Product `json:"products,omitempty" gorm:"foreignKey:BusinessProfileID"`
}
