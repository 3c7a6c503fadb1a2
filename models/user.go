package models

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleManager UserRole = "MANAGER"
	RoleSeller  UserRole = "SELLER"
	RoleCashier UserRole = "CASHIER"
)

type User struct {
	Id          string    `json:"id" gorm:"primaryKey;size:36"`
	TenantID    string    `json:"tenant_id" gorm:"size:36;not null;uniqueIndex:idx_users_tenant_email,priority:1"`
	FirstName   string    `json:"first_name" gorm:"not null"`
	LastName    string    `json:"last_name" gorm:"not null"`
	Password    []byte    `json:"-" gorm:"not null"`
	Email       string    `json:"email" gorm:"not null;uniqueIndex:idx_users_tenant_email,priority:2"`
	Role        UserRole  `json:"role" gorm:"type:varchar(20);not null;default:SELLER"`
	WarehouseID *string   `json:"warehouse_id" gorm:"size:36"`
	CreatedAt   time.Time `json:"created_at"`
}

func (user *User) BeforeCreate(tx *gorm.DB) (err error) {
	if user.Id == "" {
		user.Id = uuid.NewString()
	}
	return
}

func (user *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return err
	}
	user.Password = hashedPassword
	return nil
}

func (user *User) ComparePassword(password string) error {
	return bcrypt.CompareHashAndPassword(user.Password, []byte(password))
}

// IsAdmin reports whether the user may write to any warehouse of the tenant.
func (user *User) IsAdmin() bool {
	return user.Role == RoleAdmin
}
