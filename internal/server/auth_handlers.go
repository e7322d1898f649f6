package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"playbook/internal/auth"
	"playbook/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// signup registers a new account and mails a verification code. An existing
// but unverified account may sign up again; its credentials are overwritten.
func (s *Server) signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if req.Username == "" || email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "username and email are required"})
		return
	}
	if err := auth.ValidateEmail(email); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid email address"})
		return
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("Failed to hash password", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
		return
	}

	var user models.User
	err = s.db.WithContext(c.Request.Context()).Where("email = ?", email).First(&user).Error
	switch {
	case err == nil:
		if user.IsVerified {
			c.JSON(http.StatusBadRequest, gin.H{"message": "User already exists"})
			return
		}
		user.Username = req.Username
		user.PasswordHash = hash
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = models.User{Username: req.Username, Email: email, PasswordHash: hash}
	default:
		s.logger.Error("Signup lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
		return
	}

	otp, err := auth.GenerateOTP()
	if err != nil {
		s.logger.Error("Failed to generate OTP", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
		return
	}
	expires := time.Now().Add(s.cfg.Auth.OTPTTL)
	user.OTP = otp
	user.OTPExpires = &expires

	if email == strings.ToLower(s.cfg.Auth.AdminEmail) {
		user.Role = models.RoleAdmin
	}

	if err := s.db.WithContext(c.Request.Context()).Save(&user).Error; err != nil {
		s.logger.Error("Failed to save user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
		return
	}

	go s.sendOTPMail(email, otp, "Verify your Playbook Account", "Welcome to Playbook!")

	c.JSON(http.StatusCreated, gin.H{"message": "OTP sent to email for verification"})
}

type verifyRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

func (s *Server) verifySignup(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}

	user, ok := s.consumeOTP(c, req.Email, req.OTP)
	if !ok {
		return
	}

	user.IsVerified = true
	if err := s.db.WithContext(c.Request.Context()).Save(user).Error; err != nil {
		s.logger.Error("Failed to verify user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Account verified successfully"})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}

	var user models.User
	err := s.db.WithContext(c.Request.Context()).
		Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).
		First(&user).Error
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Account not found"})
		return
	}

	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid credentials"})
		return
	}
	if !user.IsVerified {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Your account is not verified. Please verify using the OTP sent to your email or try signing up again."})
		return
	}

	token, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		s.logger.Error("Failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user": gin.H{
			"id":       user.ID,
			"username": user.Username,
			"email":    user.Email,
			"role":     user.Role,
		},
	})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (s *Server) forgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	var user models.User
	if err := s.db.WithContext(c.Request.Context()).Where("email = ?", email).First(&user).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "User not found"})
		return
	}

	otp, err := auth.GenerateOTP()
	if err != nil {
		s.logger.Error("Failed to generate OTP", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
		return
	}
	expires := time.Now().Add(s.cfg.Auth.OTPTTL)
	user.OTP = otp
	user.OTPExpires = &expires

	if err := s.db.WithContext(c.Request.Context()).Save(&user).Error; err != nil {
		s.logger.Error("Failed to save OTP", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
		return
	}

	go s.sendOTPMail(email, otp, "Your Playbook OTP", "Reset Password")

	c.JSON(http.StatusOK, gin.H{"message": "OTP sent to email"})
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

func (s *Server) resetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}

	if err := auth.ValidatePassword(req.NewPassword); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	user, ok := s.consumeOTP(c, req.Email, req.OTP)
	if !ok {
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		s.logger.Error("Failed to hash password", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
		return
	}

	user.PasswordHash = hash
	if err := s.db.WithContext(c.Request.Context()).Save(user).Error; err != nil {
		s.logger.Error("Failed to reset password", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password reset successful"})
}

// consumeOTP looks the user up by email and checks the code inside its
// validity window. On success the stored code is cleared (single use) and
// the loaded user is returned for further mutation. On failure it writes
// the 400 response and returns ok=false.
func (s *Server) consumeOTP(c *gin.Context, email, otp string) (*models.User, bool) {
	var user models.User
	err := s.db.WithContext(c.Request.Context()).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error
	if err != nil ||
		otp == "" ||
		user.OTP != otp ||
		user.OTPExpires == nil ||
		user.OTPExpires.Before(time.Now()) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid or expired OTP"})
		return nil, false
	}

	user.OTP = ""
	user.OTPExpires = nil
	return &user, true
}

// sendOTPMail delivers a one-time code. Detached from the request path.
func (s *Server) sendOTPMail(email, otp, subject, title string) {
	html := fmt.Sprintf(`
<h2 style="color:#ffffff;text-align:center;">%s</h2>
<div style="text-align:center;margin:30px 0;">
  <span style="font-size:36px;font-weight:800;letter-spacing:8px;background:#222222;padding:15px 25px;border-radius:12px;color:#00f2fe;border:1px solid #333;">%s</span>
</div>
<p style="text-align:center;color:#888888;font-size:13px;">This code will expire in %s.</p>`,
		subject, otp, s.cfg.Auth.OTPTTL)

	if err := s.mail.Send([]string{email}, subject, fmt.Sprintf("Your one-time code is: %s", otp), html, title); err != nil {
		s.logger.Error("Failed to send OTP email", zap.String("email", email), zap.Error(err))
	}
}
