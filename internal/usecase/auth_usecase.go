package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/repository"

	"github.com/sirupsen/logrus"
)

// usecaseがValidatorInterfaceに依存する約束
type AuthValidator interface {
	ValidateRequestCode(email string) error
	ValidateVerifyCode(email string, code string) error
	ValidateAdminLogin(email string, password string) error
}

type UserDTO struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	LastLoginAt *time.Time `json:"last_login_at"`
}

type SessionResult struct {
	User      UserDTO
	Token     string
	ExpiresAt time.Time
}

type AdminLoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type AuthDeps struct {
	Otps      repository.OtpRepository
	Users     repository.UserRepository
	Admins    repository.AdminRepository
	Tokens    TokenIssuer
	Notifier  Notifier
	Hasher    PasswordHasher
	Validator AuthValidator
	IDs       IDGenerator
	Clock     Clock
	Codes     CodeGenerator
	Log       logrus.FieldLogger

	OtpTTL         time.Duration
	OtpMaxAttempts int
}

type AuthUsecase struct {
	otps      repository.OtpRepository
	users     repository.UserRepository
	admins    repository.AdminRepository
	tokens    TokenIssuer
	notifier  Notifier
	hasher    PasswordHasher
	validator AuthValidator
	ids       IDGenerator
	clock     Clock
	codes     CodeGenerator
	log       logrus.FieldLogger

	otpTTL         time.Duration
	otpMaxAttempts int

	// 存在しない管理者でも同じだけ比較する
	dummyOnce sync.Once
	dummyHash string
}

func NewAuthUsecase(d AuthDeps) *AuthUsecase {
	u := &AuthUsecase{
		otps:           d.Otps,
		users:          d.Users,
		admins:         d.Admins,
		tokens:         d.Tokens,
		notifier:       d.Notifier,
		hasher:         d.Hasher,
		validator:      d.Validator,
		ids:            d.IDs,
		clock:          d.Clock,
		codes:          d.Codes,
		log:            d.Log,
		otpTTL:         d.OtpTTL,
		otpMaxAttempts: d.OtpMaxAttempts,
	}
	if u.ids == nil {
		u.ids = UUIDGenerator{}
	}
	if u.clock == nil {
		u.clock = SystemClock{}
	}
	if u.codes == nil {
		u.codes = RandomCode
	}
	if u.hasher == nil {
		u.hasher = BcryptHasher{}
	}
	if u.otpTTL <= 0 {
		u.otpTTL = 10 * time.Minute
	}
	if u.otpMaxAttempts <= 0 {
		u.otpMaxAttempts = 5
	}
	return u
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// コードはメールと混ぜてハッシュで保存する（平文は残さない）
func hashCode(email string, code string) string {
	sum := sha256.Sum256([]byte(email + ":" + code))
	return hex.EncodeToString(sum[:])
}

// RequestCode は新しいコードを発行して前のコードを無効にする。
// アカウントの有無は呼び出し側に見せない。
func (u *AuthUsecase) RequestCode(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := u.validator.ValidateRequestCode(email); err != nil {
		return badRequest("invalid email")
	}

	code, err := u.codes()
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	now := u.clock.Now()
	if err := u.otps.Save(ctx, model.OneTimeCode{
		Email:     email,
		CodeHash:  hashCode(email, code),
		IssuedAt:  now,
		ExpiresAt: now.Add(u.otpTTL),
	}); err != nil {
		return storageError(err)
	}

	sendNotification(ctx, u.notifier, u.log, Notification{Kind: NotificationOTP, Email: email, Code: code, At: now})
	return nil
}

// VerifyCode はコードを使用済みにして顧客のセッションを発行する。顧客がいなければ作る。
func (u *AuthUsecase) VerifyCode(ctx context.Context, email string, code string) (SessionResult, error) {
	email = normalizeEmail(email)
	code = strings.TrimSpace(code)
	if err := u.validator.ValidateVerifyCode(email, code); err != nil {
		return SessionResult{}, ErrAuthenticationFailure
	}

	now := u.clock.Now()
	ok, err := u.otps.Consume(ctx, email, hashCode(email, code), now, u.otpMaxAttempts)
	if err != nil {
		return SessionResult{}, storageError(err)
	}
	if !ok {
		return SessionResult{}, ErrAuthenticationFailure
	}

	user, err := u.findOrCreateUser(ctx, email, now)
	if err != nil {
		return SessionResult{}, err
	}

	user.LastLoginAt = &now
	user.UpdatedAt = now
	if err := u.users.Update(ctx, user); err != nil {
		return SessionResult{}, storageError(err)
	}

	token, exp, err := u.tokens.Issue(model.Principal{
		SubjectID: user.ID,
		Kind:      model.PrincipalCustomer,
		IssuedAt:  now,
	})
	if err != nil {
		return SessionResult{}, NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return SessionResult{
		User:      toUserDTO(*user),
		Token:     token,
		ExpiresAt: exp,
	}, nil
}

func (u *AuthUsecase) findOrCreateUser(ctx context.Context, email string, now time.Time) (*model.User, error) {
	user, err := u.users.FindByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, storageError(err)
	}

	user = &model.User{
		ID:        u.ids.NewID(),
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := u.users.Create(ctx, user); err != nil {
		//同時に作られた場合はそちらを使う
		existing, ferr := u.users.FindByEmail(ctx, email)
		if ferr == nil {
			return existing, nil
		}
		return nil, storageError(err)
	}
	return user, nil
}

// AdminLogin はメール+パスワードで管理者トークンを発行する
func (u *AuthUsecase) AdminLogin(ctx context.Context, email string, password string) (AdminLoginResponse, error) {
	email = normalizeEmail(email)
	if err := u.validator.ValidateAdminLogin(email, password); err != nil {
		return AdminLoginResponse{}, ErrAuthenticationFailure
	}

	admin, err := u.admins.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		u.hasher.Compare(u.dummyPasswordHash(), password)
		return AdminLoginResponse{}, ErrAuthenticationFailure
	}
	if err != nil {
		return AdminLoginResponse{}, storageError(err)
	}
	matched := u.hasher.Compare(admin.PasswordHash, password)
	if !matched || !admin.IsActive {
		return AdminLoginResponse{}, ErrAuthenticationFailure
	}

	now := u.clock.Now()
	token, exp, err := u.tokens.Issue(model.Principal{
		SubjectID: admin.ID,
		Kind:      model.PrincipalAdmin,
		IssuedAt:  now,
	})
	if err != nil {
		return AdminLoginResponse{}, NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	admin.LastLoginAt = &now
	admin.UpdatedAt = now
	if err := u.admins.Update(ctx, admin); err != nil {
		//ログイン自体は成功させる
		u.log.WithError(err).WithField("admin_id", admin.ID).Warn("failed to record admin login")
	}

	return AdminLoginResponse{
		AccessToken: token,
		ExpiresIn:   int(exp.Sub(now).Seconds()),
	}, nil
}

func (u *AuthUsecase) dummyPasswordHash() string {
	u.dummyOnce.Do(func() {
		h, err := u.hasher.Hash(u.ids.NewID())
		if err != nil {
			u.log.WithError(err).Warn("failed to prepare dummy password hash")
			return
		}
		u.dummyHash = h
	})
	return u.dummyHash
}

// EnsureAdmin は起動時に初期管理者を作る（既にいれば何もしない）
func (u *AuthUsecase) EnsureAdmin(ctx context.Context, email string, password string) error {
	email = normalizeEmail(email)
	if err := u.validator.ValidateAdminLogin(email, password); err != nil {
		return badRequest("invalid admin credentials")
	}

	_, err := u.admins.FindByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return storageError(err)
	}

	hash, err := u.hasher.Hash(password)
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	now := u.clock.Now()
	if err := u.admins.Create(ctx, &model.Admin{
		ID:           u.ids.NewID(),
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}); err != nil {
		return storageError(err)
	}

	u.log.WithField("email", email).Info("bootstrap admin created")
	return nil
}

func toUserDTO(u model.User) UserDTO {
	return UserDTO{ID: u.ID, Email: u.Email, LastLoginAt: u.LastLoginAt}
}
