package controllers

import (
	"errors"
	"net/mail"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"bizledger-backend/middlewares"
	"bizledger-backend/models"
)

type AuthController struct {
	db *gorm.DB
}

func NewAuthController(db *gorm.DB) *AuthController {
	return &AuthController{db: db}
}

type loginRequest struct {
	TenantID string `json:"tenant_id" validate:"required"`
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (ac *AuthController) Login(c *fiber.Ctx) error {
	var data loginRequest
	if err := middlewares.BindAndValidate(c, &data); err != nil {
		return err
	}

	if _, err := mail.ParseAddress(data.Email); err != nil {
		c.Status(fiber.StatusBadRequest)
		return c.JSON(fiber.Map{
			"message": "Invalid email format",
		})
	}

	var user models.User
	err := ac.db.WithContext(c.UserContext()).
		Where("tenant_id = ? AND email = ?", data.TenantID, data.Email).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid credentials")
	}
	if err != nil {
		return err
	}

	if err := user.ComparePassword(data.Password); err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid credentials")
	}

	token, err := middlewares.GenerateJWT(user.Id, user.TenantID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"token":     token,
		"tenant_id": user.TenantID,
		"user": fiber.Map{
			"id":    user.Id,
			"name":  user.FirstName + " " + user.LastName,
			"email": user.Email,
			"role":  user.Role,
		},
	})
}

func (ac *AuthController) Logout(c *fiber.Ctx) error {
	cookie := fiber.Cookie{
		Name:     "jwt",
		Value:    "",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
	}
	c.Cookie(&cookie)
	return c.JSON(fiber.Map{
		"message": "success",
	})
}
