package engine

import (
	"context"
	"errors"

	"golang.org/x/sync/singleflight"

	"govline/internal/domain"
	"govline/internal/repo"
)

var profileFlight singleflight.Group

// EnsureProfile returns the profile for a user, creating it on first sight.
// Concurrent calls for the same user collapse into a single lookup, and each
// round-trip is bounded by the configured remote-call timeout. The very first
// profile in an empty database becomes an active admin so the instance can be
// administered at all.
func (e Engine) EnsureProfile(ctx context.Context, userID, fullName string) (domain.Profile, error) {
	if userID == "" {
		return domain.Profile{}, errors.New("user id is required")
	}
	v, err, _ := profileFlight.Do(userID, func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.Config.RemoteCallTimeout())
		defer cancel()

		p, err := e.Repo.GetProfile(callCtx, userID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return domain.Profile{}, err
		}

		existing, err := e.Repo.ListProfiles(callCtx, false)
		if err != nil {
			return domain.Profile{}, err
		}
		p = domain.Profile{
			UserID:    userID,
			FullName:  fullName,
			Role:      "viewer",
			Active:    false,
			CreatedAt: e.nowRFC3339(),
		}
		if len(existing) == 0 {
			p.Role = "admin"
			p.Active = true
		}
		if p.FullName == "" {
			p.FullName = userID
		}
		if _, err := e.Repo.InsertProfileIfAbsent(callCtx, p); err != nil {
			return domain.Profile{}, err
		}
		// Re-read in case a concurrent bootstrap won the insert.
		return e.Repo.GetProfile(callCtx, userID)
	})
	if err != nil {
		return domain.Profile{}, err
	}
	return v.(domain.Profile), nil
}

// SetProfileRole updates a user's role and activation.
func (e Engine) SetProfileRole(ctx context.Context, userID, role string, active *bool, actorID string) (domain.Profile, error) {
	switch role {
	case "admin", "director", "owner", "viewer":
	default:
		return domain.Profile{}, errors.New("unknown role " + role)
	}
	if err := e.Repo.UpdateProfile(ctx, userID, nil, &role, active); err != nil {
		return domain.Profile{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Profile{}, err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, "profile.role_changed", "profile", userID, actorID, map[string]any{"role": role}); err != nil {
		return domain.Profile{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Profile{}, err
	}
	return e.Repo.GetProfile(ctx, userID)
}
