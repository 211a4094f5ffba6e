package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/deviceauth-go/internal/credstore"
	apperrors "github.com/openclaw/deviceauth-go/internal/errors"
	"github.com/openclaw/deviceauth-go/internal/model"
)

const minPollInterval = time.Second

// Presenter shows the pairing code to the human at the terminal.
type Presenter interface {
	ShowPairing(start *model.PairingStart)
}

type LoginOptions struct {
	API   PairingAPI
	Store credstore.Store
	// Presenter may be nil.
	Presenter Presenter
	// OpenBrowser is tried once with the complete verification URL. Failures are ignored.
	OpenBrowser func(url string) error
	// Sleep waits between polls. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// Login pairs this device and stores the issued credential. It polls at the
// server's interval for at most ceil(expiresIn/interval) attempts; transient
// failures use up attempts too. Running out of attempts is CLIENT_TIMEOUT,
// distinct from the server reporting EXPIRED.
func Login(ctx context.Context, opts LoginOptions) (*model.StoredCredential, error) {
	if opts.API == nil {
		return nil, fmt.Errorf("login: API client is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("login: credential store is required")
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	start, err := opts.API.BeginPairing(ctx)
	if err != nil {
		return nil, err
	}

	if opts.Presenter != nil {
		opts.Presenter.ShowPairing(start)
	}
	if opts.OpenBrowser != nil {
		target := start.VerificationURLComplete
		if target == "" {
			target = start.VerificationURL
		}
		if err := opts.OpenBrowser(target); err != nil {
			log.Debug().Err(err).Msg("could not open browser")
		}
	}

	interval := time.Duration(start.Interval) * time.Second
	if interval < minPollInterval {
		interval = minPollInterval
	}
	attempts := pollAttempts(time.Duration(start.ExpiresIn)*time.Second, interval)

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := sleep(ctx, interval); err != nil {
			return nil, err
		}

		result, err := opts.API.Redeem(ctx, start.DeviceID)
		if err != nil {
			if errors.Is(err, ErrTransient) {
				log.Debug().Err(err).Int("attempt", attempt).Msg("redeem failed, will retry")
				continue
			}
			return nil, err
		}

		switch result.Outcome {
		case model.OutcomePending:
			continue
		case model.OutcomeDenied:
			return nil, apperrors.AccessDenied()
		case model.OutcomeExpired:
			return nil, apperrors.Expired()
		case model.OutcomeIssued:
			if result.Credential == nil {
				return nil, fmt.Errorf("server issued an empty credential")
			}
			stored := &model.StoredCredential{
				Credential: result.Credential.Credential,
				Account:    result.Credential.Account,
				Workspaces: result.Credential.Workspaces,
				IssuedAt:   now(),
			}
			if err := opts.Store.Write(ctx, stored); err != nil {
				return nil, fmt.Errorf("saving credential: %w", err)
			}
			return stored, nil
		default:
			return nil, fmt.Errorf("unexpected redeem outcome %q", result.Outcome)
		}
	}

	return nil, apperrors.ClientTimeout()
}

func pollAttempts(expiresIn, interval time.Duration) int {
	if expiresIn <= 0 {
		return 1
	}
	n := int((expiresIn + interval - 1) / interval)
	if n < 1 {
		n = 1
	}
	return n
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
