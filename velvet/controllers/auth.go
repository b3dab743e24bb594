// velvet/controllers/auth.go
package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"velvet/velvet/config"
	"velvet/velvet/sources/psql/dao"
	"velvet/velvet/sources/psql/models"
	"velvet/velvet/utils/errs"
	"velvet/velvet/utils/jsonutils"
	"velvet/velvet/utils/logging"
	"velvet/velvet/utils/types"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthController struct {
	userDAO *dao.UserDAO
	secret  []byte
	expiry  time.Duration
}

func NewAuthController(db *gorm.DB, cfg config.Config) *AuthController {
	expiry := cfg.JWTExpiry()
	if expiry <= 0 {
		expiry = 7 * 24 * time.Hour
	}
	return &AuthController{
		userDAO: dao.NewUserDAO(db),
		secret:  []byte(cfg.JWTSecret),
		expiry:  expiry,
	}
}

func validateRegister(req *types.RegisterRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Email, validation.Required, is.EmailFormat),
		validation.Field(&req.Password, validation.Required, validation.RuneLength(6, 128)),
		validation.Field(&req.Name, validation.Required, validation.RuneLength(1, 100)),
	)
}

func (c *AuthController) Register(ctx context.Context, req types.RegisterRequest) (string, uuid.UUID, error) {
	const op = "auth.register"
	defer logging.LogDuration(ctx, "auth_register")()

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if err := validateRegister(&req); err != nil {
		return "", uuid.Nil, errs.InvalidArgument(op, err.Error())
	}

	existing, err := c.userDAO.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return "", uuid.Nil, errs.Unavailable(op, err)
	}
	if existing != nil {
		return "", uuid.Nil, errs.Conflict(op, "email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return "", uuid.Nil, errs.Internal(op, err)
	}
	user := &models.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		Name:         req.Name,
		Preferences:  jsonutils.FromMap(nil),
	}
	if err := c.userDAO.CreateUser(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return "", uuid.Nil, errs.Conflict(op, "email already registered")
		}
		return "", uuid.Nil, errs.Unavailable(op, err)
	}

	token, err := c.GenerateToken(user.ID)
	if err != nil {
		return "", uuid.Nil, errs.Internal(op, err)
	}
	logging.AppLogger.Info("User registered", zap.String("user_id", user.ID.String()))
	return token, user.ID, nil
}

func (c *AuthController) Login(ctx context.Context, req types.LoginRequest) (string, error) {
	const op = "auth.login"
	defer logging.LogDuration(ctx, "auth_login")()

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return "", errs.InvalidArgument(op, "email and password are required")
	}

	user, err := c.userDAO.GetUserByEmail(ctx, email)
	if err != nil {
		return "", errs.Unavailable(op, err)
	}
	if user == nil || !user.IsActive {
		return "", errs.Unauthenticated(op, "invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return "", errs.Unauthenticated(op, "invalid credentials")
	}

	if err := c.userDAO.TouchUser(ctx, user.ID); err != nil {
		logging.ErrorLogger.Error("Login touch failed", zap.String("user_id", user.ID.String()), zap.Error(err))
	}
	return c.GenerateToken(user.ID)
}

// GenerateToken signs an HS256 token carrying user_id, iat and exp.
func (c *AuthController) GenerateToken(userID uuid.UUID) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID.String(),
		"iat":     now.Unix(),
		"exp":     now.Add(c.expiry).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// VerifyToken checks signature, expiry and the user_id claim, and that the
// user still exists and is active.
func (c *AuthController) VerifyToken(ctx context.Context, tokenStr string) (uuid.UUID, error) {
	const op = "auth.verify"

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return uuid.Nil, errs.Unauthenticated(op, "invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, errs.Unauthenticated(op, "invalid token")
	}
	raw, ok := claims["user_id"].(string)
	if !ok {
		return uuid.Nil, errs.Unauthenticated(op, "invalid token")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errs.Unauthenticated(op, "invalid token")
	}

	user, err := c.userDAO.GetUserByID(ctx, userID)
	if err != nil {
		return uuid.Nil, errs.Unavailable(op, err)
	}
	if user == nil || !user.IsActive {
		return uuid.Nil, errs.Unauthenticated(op, "invalid token")
	}
	return userID, nil
}

func (c *AuthController) GetProfile(ctx context.Context, userID uuid.UUID) (*types.UserProfile, error) {
	const op = "auth.profile"

	user, err := c.userDAO.GetUserByID(ctx, userID)
	if err != nil {
		return nil, errs.Unavailable(op, err)
	}
	if user == nil || !user.IsActive {
		return nil, errs.NotFound(op, "user not found")
	}
	out := toProfile(*user)
	return &out, nil
}

func (c *AuthController) UpdateProfile(ctx context.Context, userID uuid.UUID, req types.UpdateProfileRequest) (*types.UserProfile, error) {
	const op = "auth.update_profile"

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	err := validation.ValidateStruct(&req,
		validation.Field(&req.Name, validation.Required, validation.RuneLength(1, 100)),
		validation.Field(&req.Email, validation.Required, is.EmailFormat),
		validation.Field(&req.AvatarURL, validation.NilOrNotEmpty, is.URL),
	)
	if err != nil {
		return nil, errs.InvalidArgument(op, err.Error())
	}

	user, err := c.userDAO.GetUserByID(ctx, userID)
	if err != nil {
		return nil, errs.Unavailable(op, err)
	}
	if user == nil || !user.IsActive {
		return nil, errs.NotFound(op, "user not found")
	}

	if req.Email != user.Email {
		other, err := c.userDAO.GetUserByEmail(ctx, req.Email)
		if err != nil {
			return nil, errs.Unavailable(op, err)
		}
		if other != nil {
			return nil, errs.Conflict(op, "email already registered")
		}
	}

	updates := map[string]interface{}{
		"name":       req.Name,
		"email":      req.Email,
		"avatar_url": req.AvatarURL,
	}
	if req.Preferences != nil {
		updates["preferences"] = jsonutils.FromMap(req.Preferences)
	}
	if err := c.userDAO.UpdateUser(ctx, userID, updates); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errs.Conflict(op, "email already registered")
		}
		return nil, errs.Unavailable(op, err)
	}
	return c.GetProfile(ctx, userID)
}
