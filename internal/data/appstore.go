package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/mottobotto/testflight-bot/internal/biz/domain"
	"github.com/mottobotto/testflight-bot/internal/biz/repo"
	"github.com/mottobotto/testflight-bot/internal/infra/appstoreconnect"
)

// appStoreRepo implements DistributionRepo on App Store Connect
type appStoreRepo struct {
	client *appstoreconnect.Client
	keys   repo.KeyRepo
	// defaultKeyID is used for searches not scoped to an app
	defaultKeyID string
}

// NewAppStoreRepo creates the distribution repository
func NewAppStoreRepo(client *appstoreconnect.Client, keys repo.KeyRepo, defaultKeyID string) repo.DistributionRepo {
	return &appStoreRepo{client: client, keys: keys, defaultKeyID: defaultKeyID}
}

func (r *appStoreRepo) credentials(ctx context.Context, keyID, appName string) (appstoreconnect.Credentials, error) {
	notConfigured := &domain.DistributionError{Kind: domain.DistributionErrorCredentialsNotConfigured, AppName: appName}
	if keyID == "" {
		return appstoreconnect.Credentials{}, notConfigured
	}
	key, err := r.keys.GetDistributionKey(ctx, keyID)
	if err != nil {
		return appstoreconnect.Credentials{}, &domain.DistributionError{AppName: appName, Err: err}
	}
	if key == nil {
		return appstoreconnect.Credentials{}, notConfigured
	}
	return appstoreconnect.Credentials{
		IssuerID:   key.IssuerID,
		KeyID:      key.KeyID,
		PrivateKey: key.PrivateKey,
	}, nil
}

func (r *appStoreRepo) appCredentials(ctx context.Context, app *domain.App, needGroup bool) (appstoreconnect.Credentials, error) {
	creds, err := r.credentials(ctx, app.DistributionKeyID, app.Name)
	if err != nil {
		return creds, err
	}
	if needGroup && app.BetaGroupID == "" {
		return creds, &domain.DistributionError{Kind: domain.DistributionErrorGroupNotConfigured, AppName: app.Name}
	}
	return creds, nil
}

func classify(err error, appName string) error {
	if err == nil {
		return nil
	}
	var apiErr *appstoreconnect.APIError
	if errors.As(err, &apiErr) {
		if attr, ok := apiErr.InvalidAttribute(); ok {
			return &domain.DistributionError{
				Kind:    domain.DistributionErrorInvalidAttribute,
				AppName: appName,
				Details: attr,
				Err:     err,
			}
		}
	}
	return &domain.DistributionError{AppName: appName, Err: err}
}

func (r *appStoreRepo) FindBetaTesters(ctx context.Context, email string, app *domain.App) ([]domain.BetaTester, error) {
	var (
		creds   appstoreconnect.Credentials
		appID   string
		appName string
		err     error
	)
	if app == nil {
		creds, err = r.credentials(ctx, r.defaultKeyID, "")
	} else {
		appID, appName = app.ID, app.Name
		creds, err = r.appCredentials(ctx, app, false)
	}
	if err != nil {
		return nil, err
	}

	found, err := r.client.FindBetaTesters(ctx, creds, email, appID)
	if err != nil {
		return nil, classify(fmt.Errorf("find beta testers: %w", err), appName)
	}
	testers := make([]domain.BetaTester, 0, len(found))
	for _, t := range found {
		testers = append(testers, domain.BetaTester{ID: t.ID, Email: t.Email, BetaGroupIDs: t.BetaGroupIDs})
	}
	return testers, nil
}

func (r *appStoreRepo) CreateBetaTester(ctx context.Context, app *domain.App, email, givenName, familyName string) error {
	creds, err := r.appCredentials(ctx, app, true)
	if err != nil {
		return err
	}
	return classify(r.client.CreateBetaTester(ctx, creds, app.BetaGroupID, email, givenName, familyName), app.Name)
}

func (r *appStoreRepo) RemoveFromBetaGroup(ctx context.Context, app *domain.App, testerID string) error {
	creds, err := r.appCredentials(ctx, app, true)
	if err != nil {
		return err
	}
	return classify(r.client.RemoveFromBetaGroup(ctx, creds, app.BetaGroupID, testerID), app.Name)
}

func (r *appStoreRepo) DeleteBetaTester(ctx context.Context, app *domain.App, testerID string) error {
	creds, err := r.appCredentials(ctx, app, false)
	if err != nil {
		return err
	}
	return classify(r.client.DeleteBetaTester(ctx, creds, testerID), app.Name)
}
