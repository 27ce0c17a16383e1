package token

import (
	"errors"
	"time"

	"storefront/internal/domain/model"

	"github.com/golang-jwt/jwt/v4"
)

// どのチェックで落ちたかは外に出さない
var ErrInvalidToken = errors.New("invalid token")

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type kindConfig struct {
	secret []byte
	ttl    time.Duration
}

// Service は管理者用・顧客用の2系統のトークンを発行/検証する。
type Service struct {
	kinds map[model.PrincipalKind]kindConfig
	clock Clock
}

type Options struct {
	AdminSecret    string
	AdminTTL       time.Duration
	CustomerSecret string
	CustomerTTL    time.Duration
	Clock          Clock
}

func NewService(opts Options) (*Service, error) {
	if opts.AdminSecret == "" || opts.CustomerSecret == "" {
		return nil, errors.New("token secrets are required")
	}
	if opts.AdminSecret == opts.CustomerSecret {
		return nil, errors.New("admin and customer secrets must differ")
	}
	clock := opts.Clock
	if clock == nil {
		clock = realClock{}
	}
	return &Service{
		kinds: map[model.PrincipalKind]kindConfig{
			model.PrincipalAdmin:    {secret: []byte(opts.AdminSecret), ttl: opts.AdminTTL},
			model.PrincipalCustomer: {secret: []byte(opts.CustomerSecret), ttl: opts.CustomerTTL},
		},
		clock: clock,
	}, nil
}

// Issue は subject と kind を埋め込んで署名する。
func (s *Service) Issue(p model.Principal) (string, time.Time, error) {
	kc, ok := s.kinds[p.Kind]
	if !ok || p.SubjectID == "" {
		return "", time.Time{}, ErrInvalidToken
	}

	now := s.clock.Now()
	expiresAt := now.Add(kc.ttl)

	claims := jwt.MapClaims{
		"sub":  p.SubjectID,
		"kind": string(p.Kind),
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(kc.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate は expected の鍵で検証し、kind・期限も確認する。失敗はすべて ErrInvalidToken。
func (s *Service) Validate(raw string, expected model.PrincipalKind) (model.Principal, error) {
	kc, ok := s.kinds[expected]
	if !ok || raw == "" {
		return model.Principal{}, ErrInvalidToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	claims := jwt.MapClaims{}
	tok, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return kc.secret, nil
	})
	if err != nil || tok == nil || !tok.Valid {
		return model.Principal{}, ErrInvalidToken
	}

	//期限は自前の時計で見る
	now := s.clock.Now().Unix()
	if !claims.VerifyExpiresAt(now, true) || !claims.VerifyIssuedAt(now, true) {
		return model.Principal{}, ErrInvalidToken
	}

	kind, _ := claims["kind"].(string)
	if model.PrincipalKind(kind) != expected {
		return model.Principal{}, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return model.Principal{}, ErrInvalidToken
	}

	iat, _ := claims["iat"].(float64)
	exp, _ := claims["exp"].(float64)
	return model.Principal{
		SubjectID: sub,
		Kind:      expected,
		IssuedAt:  time.Unix(int64(iat), 0),
		ExpiresAt: time.Unix(int64(exp), 0),
	}, nil
}
