package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wichigo/Motium-sub012/internal/common"
	"github.com/wichigo/Motium-sub012/internal/dbx"
	"github.com/wichigo/Motium-sub012/internal/server/auth"
	"github.com/wichigo/Motium-sub012/internal/server/config"
	"github.com/wichigo/Motium-sub012/internal/server/repositories/repomanager"
	"github.com/wichigo/Motium-sub012/internal/timex"
)

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

type TokenService struct {
	tx                           dbx.TxRunner
	repomanager                  repomanager.RepositoryManager
	clock                        timex.Clock
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
}

func NewTokenService(tx dbx.TxRunner, m repomanager.RepositoryManager, cfg *config.Config, clock timex.Clock) *TokenService {
	if clock == nil {
		clock = timex.SystemClock{}
	}
	return &TokenService{
		tx:                           tx,
		repomanager:                  m,
		clock:                        clock,
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
	}
}

// Issue creates a fresh token pair for userID. Identity is established
// outside this server; Issue is what the operator runs on its behalf.
func (s *TokenService) Issue(ctx context.Context, userID string) (*TokenPair, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: empty user id", common.ErrValidation)
	}

	var pair *TokenPair
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		pair, err = s.generateTokenPair(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// RefreshToken rotates refreshToken: the presented token is consumed and a
// new pair is returned. Unknown tokens yield common.ErrInvalidToken and
// expired ones common.ErrRefreshTokenExpired.
func (s *TokenService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, common.ErrInvalidToken
	}

	var (
		pair    *TokenPair
		expired bool
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.RefreshTokens(tx)

		token, err := repo.Find(ctx, refreshToken)
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrInvalidToken
		}
		if err != nil {
			return fmt.Errorf("error searching refresh token: %w", err)
		}

		if err := repo.Delete(ctx, refreshToken); err != nil {
			return fmt.Errorf("error deleting refresh token: %w", err)
		}

		if token.Expires.Before(s.clock.Now()) {
			// commit the delete, report after
			expired = true
			return nil
		}

		pair, err = s.generateTokenPair(ctx, tx, token.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, common.ErrRefreshTokenExpired
	}
	return pair, nil
}

// UserID verifies an access token and returns the user it was issued to.
func (s *TokenService) UserID(accessToken string) (string, error) {
	return auth.GetUserIDFromToken(accessToken, s.jwtSecret)
}

func (s *TokenService) generateTokenPair(ctx context.Context, tx dbx.DBTX, userID string) (*TokenPair, error) {
	accessToken, err := auth.GenerateToken(userID, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, fmt.Errorf("error generating access token: %w", err)
	}

	refreshToken, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, fmt.Errorf("error generating refresh token: %w", err)
	}

	expires := s.clock.Now().Add(s.refreshTokenValidityDuration)
	if err := s.repomanager.RefreshTokens(tx).Create(ctx, userID, refreshToken, expires); err != nil {
		return nil, fmt.Errorf("error storing refresh token: %w", err)
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}
