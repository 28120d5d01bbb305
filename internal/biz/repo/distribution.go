package repo

import (
	"context"

	"github.com/mottobotto/testflight-bot/internal/biz/domain"
)

// DistributionRepo is the beta distribution API. Failures are returned
// as *domain.DistributionError.
type DistributionRepo interface {
	// FindBetaTesters finds testers by email within an app, or across
	// every app when app is nil
	FindBetaTesters(ctx context.Context, email string, app *domain.App) ([]domain.BetaTester, error)

	// CreateBetaTester creates a tester in the app's beta group
	CreateBetaTester(ctx context.Context, app *domain.App, email, givenName, familyName string) error

	// RemoveFromBetaGroup removes a tester from the app's beta group
	RemoveFromBetaGroup(ctx context.Context, app *domain.App, testerID string) error

	// DeleteBetaTester deletes a tester from every group of the app's provider
	DeleteBetaTester(ctx context.Context, app *domain.App, testerID string) error
}
