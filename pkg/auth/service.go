package auth

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/lrcom/signal-core/pkg/apperr"
	scrypto "github.com/lrcom/signal-core/pkg/crypto"
	"github.com/lrcom/signal-core/pkg/models"
	"github.com/lrcom/signal-core/pkg/store"
)

const maxVaultBytes = 100 * 1024

// Service wires the Storage Gateway to the challenge and session registries
// to implement the full Identity & Session Registry component.
type Service struct {
	store      *store.Store
	Sessions   *SessionRegistry
	challenges *ChallengeRegistry
	logger     *slog.Logger
}

func NewService(st *store.Store, sessions *SessionRegistry, challenges *ChallengeRegistry, logger *slog.Logger) *Service {
	return &Service{store: st, Sessions: sessions, challenges: challenges, logger: logger}
}

func validateUsername(name string) error {
	n := len([]rune(name))
	if n < 3 || n > 64 {
		return apperr.New(apperr.KindValidation, "username must be 3-64 characters")
	}
	for _, r := range name {
		if unicode.IsControl(r) || r == '<' || r == '>' {
			return apperr.New(apperr.KindValidation, "username contains an invalid character")
		}
	}
	return nil
}

// Register implements register(username, publicKey, removeDate, vault). The
// second return value carries any sessions evicted by issuing this one (only
// possible in practice if a prior account somehow shares the cap, which
// cannot happen for a brand new user, but Issue's signature always reports
// it so callers have one fan-out path for every session-issuing operation).
func (s *Service) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, []*models.Session, error) {
	if err := validateUsername(req.Username); err != nil {
		return nil, nil, err
	}
	canonical, err := scrypto.CanonicalJWK(req.PublicKey)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.KindValidation, "invalid public key", err)
	}
	if len(req.Vault) > maxVaultBytes {
		return nil, nil, apperr.New(apperr.KindPayloadTooLarge, "vault exceeds 100KB")
	}
	removeDate, err := time.Parse(time.RFC3339, req.RemoveDate)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.KindValidation, "invalid removeDate", err)
	}

	u := &models.User{
		ID:           store.NewID(),
		Username:     req.Username,
		PublicKeyJWK: canonical,
		Vault:        req.Vault,
		RemoveDate:   removeDate,
		CreatedAt:    time.Now(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, nil, err
	}

	sess, evicted, err := s.Sessions.Issue(u.ID)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.KindTransientDB, "issue session", err)
	}
	return &models.AuthResponse{
		Token:         sess.Token,
		ExpiresAt:     sess.ExpiresAt,
		UserID:        u.ID,
		Username:      u.Username,
		HiddenMode:    u.Hidden,
		IntrovertMode: u.Introvert,
	}, evicted, nil
}

// LoginInit implements the first half of challenge-response login.
func (s *Service) LoginInit(ctx context.Context, req models.LoginInitRequest) (*models.LoginInitResponse, error) {
	u, err := s.store.GetUserByUsername(ctx, req.Username)
	if err != nil {
		return nil, err // already KindNotFound -> 404, client offers account recreation
	}
	canonical, err := scrypto.CanonicalJWK(req.PublicKey)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "invalid public key", err)
	}
	if canonical != u.PublicKeyJWK {
		return nil, apperr.New(apperr.KindUnauthorized, "public key does not match")
	}

	challengeID, nonce, err := s.challenges.New(u.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransientDB, "create challenge", err)
	}
	encrypted, err := scrypto.EncryptChallenge(u.PublicKeyJWK, nonce)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransientDB, "encrypt challenge", err)
	}
	return &models.LoginInitResponse{ChallengeID: challengeID, EncryptedChallengeB64: encrypted}, nil
}

// LoginFinal implements the second half: consume the challenge, compare in
// constant time, issue a session on success.
func (s *Service) LoginFinal(ctx context.Context, req models.LoginFinalRequest) (*models.AuthResponse, []*models.Session, error) {
	c, ok := s.challenges.Consume(req.ChallengeID)
	if !ok {
		return nil, nil, apperr.New(apperr.KindUnauthorized, "challenge expired or missing")
	}
	response, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(req.Response, "="))
	if err != nil {
		if response, err = base64.StdEncoding.DecodeString(req.Response); err != nil {
			return nil, nil, apperr.New(apperr.KindUnauthorized, "malformed challenge response")
		}
	}
	if !scrypto.ConstantTimeEqual(response, c.Nonce) {
		return nil, nil, apperr.New(apperr.KindUnauthorized, "challenge response mismatch")
	}

	u, err := s.store.GetUserByID(ctx, c.UserID)
	if err != nil {
		return nil, nil, err
	}
	sess, evicted, err := s.Sessions.Issue(u.ID)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.KindTransientDB, "issue session", err)
	}
	return &models.AuthResponse{
		Token:         sess.Token,
		ExpiresAt:     sess.ExpiresAt,
		UserID:        u.ID,
		Username:      u.Username,
		HiddenMode:    u.Hidden,
		IntrovertMode: u.Introvert,
		Vault:         u.Vault,
	}, evicted, nil
}

func (s *Service) CheckUsername(ctx context.Context, username string) (bool, error) {
	return s.store.CheckUsernameExists(ctx, username)
}
